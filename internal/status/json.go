package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Box           string          `json:"box"`
	Session       SessionJSON     `json:"session"`
	Linked        bool            `json:"linked"`
	Actuators     ActuatorsJSON   `json:"actuators"`
	Levers        map[string]bool `json:"levers"`
	Counts        CountsJSON      `json:"counts"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	HostLink      HostLinkJSON    `json:"host_link"`
	Config        ConfigJSON      `json:"config"`
}

// SessionJSON reports the session context.
type SessionJSON struct {
	Running    bool   `json:"running"`
	ID         string `json:"id,omitempty"`
	ElapsedMs  uint32 `json:"elapsed_ms"`
	StopReason string `json:"stop_reason,omitempty"`
	InTimeout  bool   `json:"in_timeout"`
}

// ActuatorsJSON reports output states.
type ActuatorsJSON struct {
	Cue   bool `json:"cue"`
	Pump  bool `json:"pump"`
	Laser bool `json:"laser"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// HostLinkJSON reports host link counters.
type HostLinkJSON struct {
	Serial  string `json:"serial"`
	Sent    int64  `json:"sent"`
	Dropped int64  `json:"dropped"`
	Unknown int64  `json:"unknown"`
}

// CountsJSON is the JSON representation of session counts.
type CountsJSON struct {
	ActivePresses   int `json:"active_presses"`
	InactivePresses int `json:"inactive_presses"`
	TimeoutPresses  int `json:"timeout_presses"`
	Reinforcers     int `json:"reinforcers"`
	PumpDeliveries  int `json:"pump_deliveries"`
	PumpRejected    int `json:"pump_rejected"`
	LaserTrains     int `json:"laser_trains"`
	LaserRejected   int `json:"laser_rejected"`
	Pings           int `json:"pings"`
	OutputErrors    int `json:"output_errors"`
	SensorErrors    int `json:"sensor_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64  `json:"poll_ms"`
	DebounceMs     int64  `json:"debounce_ms"`
	PingIntervalMs int64  `json:"ping_interval_ms"`
	Trigger        string `json:"trigger"`
	Ratio          int    `json:"ratio"`
	TimeoutMs      int64  `json:"timeout_ms"`
	Broker         string `json:"broker"`
	HTTPAddr       string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	s := snap.Session
	c := s.Counts
	levers := s.Levers
	if levers == nil {
		levers = map[string]bool{}
	}

	return StatusInner{
		Box: snap.Config.Box,
		Session: SessionJSON{
			Running:    s.Context.Running,
			ID:         s.Context.ID,
			ElapsedMs:  uint32(s.Context.Elapsed),
			StopReason: s.Context.StopReason,
			InTimeout:  s.InTimeout,
		},
		Linked:    s.Linked,
		Actuators: ActuatorsJSON{Cue: s.CueOn, Pump: s.Dispensing, Laser: s.Stimulating},
		Levers:    levers,
		Counts: CountsJSON{
			ActivePresses:   c.ActivePresses,
			InactivePresses: c.InactivePresses,
			TimeoutPresses:  c.TimeoutPresses,
			Reinforcers:     c.Reinforcers,
			PumpDeliveries:  c.PumpDeliveries,
			PumpRejected:    c.PumpRejected,
			LaserTrains:     c.LaserTrains,
			LaserRejected:   c.LaserRejected,
			Pings:           c.Pings,
			OutputErrors:    c.OutputErrors,
			SensorErrors:    c.SensorErrors,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		HostLink: HostLinkJSON{
			Serial:  snap.Config.Serial,
			Sent:    snap.HostLink.Sent,
			Dropped: snap.HostLink.Dropped,
			Unknown: snap.HostLink.Unknown,
		},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			DebounceMs:     snap.Config.DebounceMs,
			PingIntervalMs: snap.Config.PingIntervalMs,
			Trigger:        snap.Config.Trigger,
			Ratio:          snap.Config.Ratio,
			TimeoutMs:      snap.Config.TimeoutMs,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
