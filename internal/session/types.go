package session

import "github.com/sweeney/operant-box/internal/clock"

// Actuator drives physical outputs. The session never deals in pins.
type Actuator interface {
	SetOutput(channel string, level bool) error
}

// Sensor reads raw lever inputs.
type Sensor interface {
	ReadRaw(channel string) (bool, error)
}

// Context replaces the process-wide "program is running" flag and the
// derived session clock. Only Start, Stop and Tick write it.
type Context struct {
	Running bool
	// StartedAt is the counter value at session start.
	StartedAt clock.Millis
	// Elapsed is now - StartedAt as of the last tick.
	Elapsed clock.Millis
	// ID identifies the current (or last) session.
	ID         string
	StopReason string
}

// EventKind names a session event.
type EventKind string

const (
	EventSessionStart  EventKind = "session_start"
	EventSessionEnd    EventKind = "session_end"
	EventPress         EventKind = "press"
	EventRelease       EventKind = "release"
	EventTimeoutPress  EventKind = "timeout_press"
	EventCueOn         EventKind = "cue_on"
	EventCueOff        EventKind = "cue_off"
	EventPumpOn        EventKind = "pump_on"
	EventPumpOff       EventKind = "pump_off"
	EventPumpRejected  EventKind = "pump_rejected"
	EventLaserStart    EventKind = "laser_start"
	EventLaserEnd      EventKind = "laser_end"
	EventLaserRejected EventKind = "laser_rejected"
	EventPing          EventKind = "ping"
	EventLinkUp        EventKind = "link_up"
	EventLinkDown      EventKind = "link_down"
)

// Event is something the session did or observed during a tick.
type Event struct {
	Kind EventKind
	// At is the counter value of the tick that produced the event.
	At clock.Millis
	// SessionTime is ms since session start; zero outside a session.
	SessionTime clock.Millis
	SessionID   string
	// Lever is set for press, release and timeout_press.
	Lever string
	Role  Role
	// Duration is the hold time for release, the on time for cue_off,
	// pump_off and laser_end, and the session length for session_end.
	Duration clock.Millis
	Reason   string
}

// Counts are per-session tallies. They reset when a session starts.
type Counts struct {
	ActivePresses   int
	InactivePresses int
	TimeoutPresses  int
	Responses       int
	Reinforcers     int
	PumpDeliveries  int
	PumpRejected    int
	CueOnsets       int
	LaserTrains     int
	LaserRejected   int
	Pings           int
	OutputErrors    int
	SensorErrors    int
}

// Snapshot is a point-in-time copy of orchestrator state.
type Snapshot struct {
	Context     Context
	Counts      Counts
	Linked      bool
	CueOn       bool
	Dispensing  bool
	Stimulating bool
	InTimeout   bool
	Levers      map[string]bool
}
