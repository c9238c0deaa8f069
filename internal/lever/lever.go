// Package lever turns raw lever samples into debounced press events.
// This package has no I/O; time is always passed in as clock.Millis.
package lever

import "github.com/sweeney/operant-box/internal/clock"

// State is the debounce state of a lever.
type State int

const (
	// StateReleased: debounced up, raw up.
	StateReleased State = iota
	// StatePressPending: debounced up, raw down for less than the debounce window.
	StatePressPending
	// StatePressed: debounced down, raw down.
	StatePressed
	// StateReleasePending: debounced down, raw up for less than the debounce window.
	StateReleasePending
)

func (s State) String() string {
	switch s {
	case StateReleased:
		return "RELEASED"
	case StatePressPending:
		return "PRESS_PENDING"
	case StatePressed:
		return "PRESSED"
	case StateReleasePending:
		return "RELEASE_PENDING"
	}
	return "UNKNOWN"
}

// Kind is the type of event returned by Poll.
type Kind int

const (
	None Kind = iota
	PressStarted
	PressOngoing
	Released
)

func (k Kind) String() string {
	switch k {
	case None:
		return "NONE"
	case PressStarted:
		return "PRESS_STARTED"
	case PressOngoing:
		return "PRESS_ONGOING"
	case Released:
		return "RELEASED"
	}
	return "UNKNOWN"
}

// Event is the result of one Poll.
type Event struct {
	Kind Kind
	// StartedAt is the confirmed press time. Zero for None.
	StartedAt clock.Millis
	// Held is the press duration so far (PressOngoing) or in total (Released).
	Held clock.Millis
}

// Monitor debounces a single lever.
type Monitor struct {
	debounce       clock.Millis
	state          State
	pendingSince   clock.Millis
	pressStartedAt clock.Millis
}

// NewMonitor creates a Monitor that accepts an edge once the raw level has
// been stable for debounce.
func NewMonitor(debounce clock.Millis) *Monitor {
	return &Monitor{debounce: debounce}
}

// Poll feeds one raw sample taken at now and returns the resulting event.
func (m *Monitor) Poll(raw bool, now clock.Millis) Event {
	switch m.state {
	case StateReleased:
		if !raw {
			return Event{}
		}
		m.state = StatePressPending
		m.pendingSince = now
		return m.confirmPress(now)

	case StatePressPending:
		if !raw {
			// Bounce: drop the pending edge.
			m.state = StateReleased
			return Event{}
		}
		return m.confirmPress(now)

	case StatePressed:
		if raw {
			return m.ongoing(now)
		}
		m.state = StateReleasePending
		m.pendingSince = now
		return m.confirmRelease(now)

	case StateReleasePending:
		if raw {
			m.state = StatePressed
			return m.ongoing(now)
		}
		return m.confirmRelease(now)
	}
	return Event{}
}

func (m *Monitor) confirmPress(now clock.Millis) Event {
	if !clock.Reached(m.pendingSince, now, m.debounce) {
		return Event{}
	}
	m.state = StatePressed
	m.pressStartedAt = now
	return Event{Kind: PressStarted, StartedAt: now}
}

// confirmRelease reports a pending release as still pressed, with Held
// stopped at the first raw release sample.
func (m *Monitor) confirmRelease(now clock.Millis) Event {
	if !clock.Reached(m.pendingSince, now, m.debounce) {
		return m.ongoing(m.pendingSince)
	}
	e := Event{
		Kind:      Released,
		StartedAt: m.pressStartedAt,
		Held:      clock.Elapsed(m.pressStartedAt, now),
	}
	m.state = StateReleased
	m.pressStartedAt = 0
	return e
}

func (m *Monitor) ongoing(now clock.Millis) Event {
	return Event{
		Kind:      PressOngoing,
		StartedAt: m.pressStartedAt,
		Held:      clock.Elapsed(m.pressStartedAt, now),
	}
}

// Pressed reports the debounced level.
func (m *Monitor) Pressed() bool {
	return m.state == StatePressed || m.state == StateReleasePending
}

// State returns the current debounce state.
func (m *Monitor) State() State {
	return m.state
}

// PressStartedAt returns the confirmed press time; ok is false when released.
func (m *Monitor) PressStartedAt() (at clock.Millis, ok bool) {
	if !m.Pressed() {
		return 0, false
	}
	return m.pressStartedAt, true
}

// Reset returns the monitor to released, discarding any press in progress.
func (m *Monitor) Reset() {
	m.state = StateReleased
	m.pendingSince = 0
	m.pressStartedAt = 0
}
