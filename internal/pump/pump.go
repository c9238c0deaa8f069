// Package pump times reward deliveries.
//
// At most one dispense runs at a time. A trigger that arrives while a
// dispense is in progress is rejected, not queued, so rapid re-triggers can
// never double a dose. Tick must be called every loop iteration: it is the
// only thing that closes the valve.
package pump

import "github.com/sweeney/operant-box/internal/clock"

// State is the pump state.
type State int

const (
	StateIdle State = iota
	StateDispensing
)

func (s State) String() string {
	if s == StateDispensing {
		return "DISPENSING"
	}
	return "IDLE"
}

// Controller owns the reward-delivery window.
type Controller struct {
	duration  clock.Millis
	state     State
	startedAt clock.Millis
	accepted  int
	rejected  int
}

// New creates a controller that dispenses for duration per trigger.
func New(duration clock.Millis) *Controller {
	return &Controller{duration: duration}
}

// Trigger starts a dispense at now. It returns false, and changes nothing,
// if a dispense is already running.
func (c *Controller) Trigger(now clock.Millis) bool {
	if c.state == StateDispensing {
		c.rejected++
		return false
	}
	c.state = StateDispensing
	c.startedAt = now
	c.accepted++
	return true
}

// Tick reports whether the pump is dispensing at now, ending the dispense
// once duration has elapsed.
func (c *Controller) Tick(now clock.Millis) bool {
	if c.state != StateDispensing {
		return false
	}
	if clock.Reached(c.startedAt, now, c.duration) {
		c.state = StateIdle
		return false
	}
	return true
}

// Stop ends any dispense immediately.
func (c *Controller) Stop() {
	c.state = StateIdle
}

// Dispensing reports whether a dispense is in progress.
func (c *Controller) Dispensing() bool {
	return c.state == StateDispensing
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Accepted returns the number of accepted triggers.
func (c *Controller) Accepted() int {
	return c.accepted
}

// Rejected returns the number of triggers refused because a dispense was running.
func (c *Controller) Rejected() int {
	return c.rejected
}
