package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/operant-box/internal/session"
)

func sampleSession() session.Snapshot {
	return session.Snapshot{
		Context: session.Context{Running: true, ID: "abc", Elapsed: 61_500},
		Counts: session.Counts{
			ActivePresses:   12,
			InactivePresses: 3,
			TimeoutPresses:  2,
			Reinforcers:     10,
			PumpDeliveries:  9,
			PumpRejected:    1,
			Pings:           61,
		},
		Linked:     true,
		CueOn:      true,
		Dispensing: true,
		InTimeout:  true,
		Levers:     map[string]bool{"left": true, "right": false},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{Box: "box1", PollMs: 1, HTTPAddr: ":8080"})

	snap := tr.Snapshot()
	assert.True(t, snap.StartTime.Equal(start))
	assert.Equal(t, "box1", snap.Config.Box)
	assert.False(t, snap.Session.Context.Running)
	assert.False(t, snap.MQTTConnected)
	assert.True(t, snap.Now.After(start))
}

func TestUpdateCopiesLevers(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	s := sampleSession()
	tr.Update(s)

	s.Levers["left"] = false
	snap := tr.Snapshot()
	assert.True(t, snap.Session.Levers["left"], "tracker holds its own copy")
	assert.Equal(t, 10, snap.Session.Counts.Reinforcers)
}

func TestSetters(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetMQTTConnected(true)
	tr.SetHostLink(HostLink{Sent: 5, Dropped: 1})

	snap := tr.Snapshot()
	assert.True(t, snap.MQTTConnected)
	assert.Equal(t, HostLink{Sent: 5, Dropped: 1}, snap.HostLink)
}

func TestUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(90 * time.Minute)}
	assert.Equal(t, 90*time.Minute, snap.Uptime())
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Update(sampleSession())
				tr.SetMQTTConnected(j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Session:       sampleSession(),
		StartTime:     start,
		Now:           start.Add(125*time.Second + 400*time.Millisecond),
		MQTTConnected: true,
		HostLink:      HostLink{Sent: 70},
		Config: Config{
			Box:     "box1",
			Trigger: "press",
			Ratio:   1,
			Broker:  "tcp://localhost:1883",
			Serial:  "/dev/ttyACM0",
		},
	}

	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(snap), &parsed))
	s := parsed.Status

	assert.Empty(t, s.Event)
	assert.Equal(t, "box1", s.Box)
	assert.True(t, s.Session.Running)
	assert.Equal(t, "abc", s.Session.ID)
	assert.Equal(t, uint32(61_500), s.Session.ElapsedMs)
	assert.True(t, s.Session.InTimeout)
	assert.True(t, s.Linked)
	assert.Equal(t, ActuatorsJSON{Cue: true, Pump: true}, s.Actuators)
	assert.Equal(t, map[string]bool{"left": true, "right": false}, s.Levers)
	assert.Equal(t, 12, s.Counts.ActivePresses)
	assert.Equal(t, 1, s.Counts.PumpRejected)
	assert.Equal(t, int64(125), s.UptimeSeconds)
	assert.Equal(t, "2026-01-01T00:00:00Z", s.StartTime)
	assert.Equal(t, MQTTStatus{Connected: true, Broker: "tcp://localhost:1883"}, s.MQTT)
	assert.Equal(t, "/dev/ttyACM0", s.HostLink.Serial)
	assert.Equal(t, int64(70), s.HostLink.Sent)
}

func TestFormatJSONEmptyLevers(t *testing.T) {
	data := FormatJSON(Snapshot{})
	assert.Contains(t, string(data), `"levers": {}`)
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{Session: sampleSession(), Config: Config{Box: "box1"}}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")
	assert.NotContains(t, string(data), "\n", "compact for MQTT")

	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "SHUTDOWN", parsed.Status.Event)
	assert.Equal(t, "SIGTERM", parsed.Status.Reason)
	assert.Equal(t, "box1", parsed.Status.Box)
}
