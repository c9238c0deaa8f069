// Package link tracks liveness of the monitoring host.
//
// The device pings the host at a fixed interval. Every acknowledgement marks
// the link up and clears the count of outstanding pings; when more than
// MaxMissed pings go unanswered the link is marked down. Link loss never
// stops a session.
package link

import "github.com/sweeney/operant-box/internal/clock"

// Config configures the heartbeat.
type Config struct {
	// PingInterval is the time between pings.
	PingInterval clock.Millis
	// MaxMissed is how many unanswered pings are tolerated before the link
	// is considered lost.
	MaxMissed int
}

// DefaultConfig returns a 1s ping with three missed pings tolerated.
func DefaultConfig() Config {
	return Config{
		PingInterval: 1000,
		MaxMissed:    3,
	}
}

// Indicator presents a link-state change to the operator.
type Indicator interface {
	Announce(linked bool, now clock.Millis)
}

// Manager is the heartbeat state machine.
type Manager struct {
	cfg            Config
	linked         bool
	lastPingSentAt clock.Millis
	pending        int
	announced      bool
	pings          int
}

// New creates a manager whose first ping is due one interval after now.
func New(cfg Config, now clock.Millis) *Manager {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}
	if cfg.MaxMissed <= 0 {
		cfg.MaxMissed = DefaultConfig().MaxMissed
	}
	return &Manager{
		cfg:            cfg,
		lastPingSentAt: now,
	}
}

// MaybePing reports whether a ping is due at now. lastPingSentAt only moves
// when a ping is actually sent, so polling frequency does not change the
// ping rate.
func (m *Manager) MaybePing(now clock.Millis) bool {
	if !clock.Reached(m.lastPingSentAt, now, m.cfg.PingInterval) {
		return false
	}
	m.lastPingSentAt = now
	m.pings++
	m.pending++
	if m.pending > m.cfg.MaxMissed {
		m.linked = false
	}
	return true
}

// Acknowledge records a reply from the host.
func (m *Manager) Acknowledge() {
	m.pending = 0
	m.linked = true
}

// Disconnect marks the link down, e.g. when the host says goodbye.
func (m *Manager) Disconnect() {
	m.pending = 0
	m.linked = false
}

// ConnectionJingle announces the link state through ind, but only when it
// has changed since the last announcement. It returns whether an
// announcement was made.
func (m *Manager) ConnectionJingle(ind Indicator, now clock.Millis) bool {
	if m.linked == m.announced {
		return false
	}
	m.announced = m.linked
	if ind != nil {
		ind.Announce(m.linked, now)
	}
	return true
}

// Linked reports the current link state.
func (m *Manager) Linked() bool {
	return m.linked
}

// LastPingSentAt returns the time of the most recent ping.
func (m *Manager) LastPingSentAt() clock.Millis {
	return m.lastPingSentAt
}

// Pending returns the number of unanswered pings.
func (m *Manager) Pending() int {
	return m.pending
}

// Pings returns the number of pings sent.
func (m *Manager) Pings() int {
	return m.pings
}
