// Package status provides a thread-safe status tracker for the operant-box
// daemon. The control loop writes it; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/operant-box/internal/session"
)

// Config contains daemon configuration for display.
type Config struct {
	Box            string
	PollMs         int64
	DebounceMs     int64
	PingIntervalMs int64
	Trigger        string
	Ratio          int
	TimeoutMs      int64
	Broker         string
	HTTPAddr       string
	Serial         string
}

// HostLink holds host link counters.
type HostLink struct {
	Sent    int64
	Dropped int64
	Unknown int64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Session       session.Snapshot
	HostLink      HostLink
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the session state. Called from runLoop after every tick.
// The lever map is copied so the caller may reuse it.
func (t *Tracker) Update(s session.Snapshot) {
	levers := make(map[string]bool, len(s.Levers))
	for k, v := range s.Levers {
		levers[k] = v
	}
	s.Levers = levers

	t.mu.Lock()
	t.snap.Session = s
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetHostLink sets the host link counters.
func (t *Tracker) SetHostLink(h HostLink) {
	t.mu.Lock()
	t.snap.HostLink = h
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
