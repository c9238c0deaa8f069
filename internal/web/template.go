package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/operant-box/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Operant Box {{.Config.Box}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
</style>
</head>
<body>
<h1>Operant Box {{.Config.Box}}</h1>

<h2>Session</h2>
<table>
<tr><th>Running</th><td class="{{if .Session.Context.Running}}on{{else}}off{{end}}">{{if .Session.Context.Running}}yes{{else}}no{{end}}</td></tr>
{{if .Session.Context.ID}}<tr><th>ID</th><td>{{.Session.Context.ID}}</td></tr>{{end}}
<tr><th>Elapsed</th><td>{{.Elapsed}}</td></tr>
{{if .Session.Context.StopReason}}<tr><th>Stopped by</th><td>{{.Session.Context.StopReason}}</td></tr>{{end}}
<tr><th>Timeout</th><td>{{if .Session.InTimeout}}yes{{else}}no{{end}}</td></tr>
</table>
<form method="post" action="/session/start"><button>Start</button></form>
<form method="post" action="/session/stop"><button>Stop</button></form>

<h2>Hardware</h2>
<table>
{{range $name, $pressed := .Session.Levers}}<tr><th>Lever {{$name}}</th><td class="{{if $pressed}}on{{else}}off{{end}}">{{if $pressed}}pressed{{else}}released{{end}}</td></tr>
{{end}}<tr><th>Cue</th><td class="{{if .Session.CueOn}}on{{else}}off{{end}}">{{onOff .Session.CueOn}}</td></tr>
<tr><th>Pump</th><td class="{{if .Session.Dispensing}}on{{else}}off{{end}}">{{onOff .Session.Dispensing}}</td></tr>
<tr><th>Laser</th><td class="{{if .Session.Stimulating}}on{{else}}off{{end}}">{{onOff .Session.Stimulating}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Active presses</th><td>{{.Session.Counts.ActivePresses}}</td></tr>
<tr><th>Inactive presses</th><td>{{.Session.Counts.InactivePresses}}</td></tr>
<tr><th>Timeout presses</th><td>{{.Session.Counts.TimeoutPresses}}</td></tr>
<tr><th>Rewards</th><td>{{.Session.Counts.Reinforcers}}</td></tr>
<tr><th>Pump rejected</th><td>{{.Session.Counts.PumpRejected}}</td></tr>
<tr><th>Laser trains</th><td>{{.Session.Counts.LaserTrains}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Host</th><td class="{{if .Session.Linked}}connected{{else}}disconnected{{end}}">{{if .Session.Linked}}linked{{else}}unlinked{{end}}</td></tr>
<tr><th>Serial</th><td>{{.Config.Serial}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Contingency</th><td>{{.Config.Trigger}} FR{{.Config.Ratio}}{{if .Config.TimeoutMs}}, {{.Config.TimeoutMs}}ms timeout{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Elapsed time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Elapsed:  snap.Session.Context.Elapsed.Duration().Truncate(time.Second),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Warn().Err(err).Msg("web: render index")
	}
}
