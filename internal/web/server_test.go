package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/operant-box/internal/session"
	"github.com/sweeney/operant-box/internal/status"
)

func newTestServer(t *testing.T, queue int) (*httptest.Server, *status.Tracker, chan Command) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Box:        "box1",
		PollMs:     1,
		DebounceMs: 20,
		Trigger:    "press",
		Ratio:      5,
		TimeoutMs:  20000,
		Broker:     "tcp://192.168.1.200:1883",
		HTTPAddr:   ":8080",
		Serial:     "/dev/ttyACM0",
	}
	tr := status.NewTracker(start, cfg)
	cmds := make(chan Command, queue)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# metrics\n")
	})
	srv := New(":0", tr, cmds, metrics)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, cmds
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t, 1)
	tr.Update(session.Snapshot{
		Context: session.Context{Running: true, ID: "abc"},
		Counts:  session.Counts{ActivePresses: 7, Reinforcers: 1},
		Levers:  map[string]bool{"left": true},
	})
	tr.SetMQTTConnected(true)

	resp, body := get(t, ts.URL+"/index.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal([]byte(body), &sj))
	assert.True(t, sj.Status.Session.Running)
	assert.Equal(t, "abc", sj.Status.Session.ID)
	assert.Equal(t, 7, sj.Status.Counts.ActivePresses)
	assert.True(t, sj.Status.Levers["left"])
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, 5, sj.Status.Config.Ratio)
}

func TestIndexHTML(t *testing.T) {
	ts, tr, _ := newTestServer(t, 1)
	tr.Update(session.Snapshot{
		Context:    session.Context{Running: true, ID: "abc", Elapsed: 65_000},
		Dispensing: true,
		Linked:     true,
		Levers:     map[string]bool{"left": true, "right": false},
	})

	for _, path := range []string{"/", "/index.html"} {
		resp, body := get(t, ts.URL+path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Contains(t, body, "Operant Box box1")
		assert.Contains(t, body, "1m5s")
		assert.Contains(t, body, "Lever left")
		assert.Contains(t, body, "pressed")
		assert.Contains(t, body, "linked")
		assert.Contains(t, body, "press FR5, 20000ms timeout")
		assert.Contains(t, body, `action="/session/start"`)
	}
}

func TestUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t, 1)
	resp, _ := get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsMounted(t *testing.T) {
	ts, _, _ := newTestServer(t, 1)
	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "# metrics\n", body)
}

func TestSessionCommandsQueued(t *testing.T) {
	ts, _, cmds := newTestServer(t, 2)

	for _, path := range []string{"/session/start", "/session/stop"} {
		resp, err := http.Post(ts.URL+path, "", nil)
		require.NoError(t, err)
		var cr CommandResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
		resp.Body.Close()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.True(t, cr.Accepted)
	}

	assert.Equal(t, CommandStart, <-cmds)
	assert.Equal(t, CommandStop, <-cmds)
}

func TestSessionCommandQueueFull(t *testing.T) {
	ts, _, cmds := newTestServer(t, 1)
	cmds <- CommandStart

	resp, err := http.Post(ts.URL+"/session/stop", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "queue full"))
}

func TestSessionCommandRequiresPost(t *testing.T) {
	ts, _, cmds := newTestServer(t, 1)

	resp, _ := get(t, ts.URL+"/session/start")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
	assert.Empty(t, cmds)
}

func TestUptimeFormat(t *testing.T) {
	var b strings.Builder
	renderHTML(&b, status.Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	assert.Contains(t, b.String(), "1d 3h 4m 5s")
}
