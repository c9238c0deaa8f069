// Package cue decides when the sensory cue (light/tone) is on.
// It never touches hardware; the session writes the output level.
package cue

import "github.com/sweeney/operant-box/internal/clock"

// State is the cue state.
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "ACTIVE"
	}
	return "IDLE"
}

// Controller owns the cue presentation window.
type Controller struct {
	duration    clock.Millis
	state       State
	activatedAt clock.Millis
	activations int
}

// New creates a controller presenting the cue for duration per activation.
func New(duration clock.Millis) *Controller {
	return &Controller{duration: duration}
}

// Activate starts the presentation window at now. Calling it while active
// restarts the window; it never stacks a second window.
func (c *Controller) Activate(now clock.Millis) {
	c.state = StateActive
	c.activatedAt = now
	c.activations++
}

// Tick reports whether the cue is still on at now. The cue turns off on the
// first tick at or after activatedAt+duration.
func (c *Controller) Tick(now clock.Millis) bool {
	if c.state != StateActive {
		return false
	}
	if clock.Reached(c.activatedAt, now, c.duration) {
		c.state = StateIdle
		return false
	}
	return true
}

// Deactivate forces the cue off.
func (c *Controller) Deactivate() {
	c.state = StateIdle
}

// Active reports whether the cue is in its presentation window.
func (c *Controller) Active() bool {
	return c.state == StateActive
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Activations returns the number of Activate calls.
func (c *Controller) Activations() int {
	return c.activations
}

// Duration returns the configured presentation window.
func (c *Controller) Duration() clock.Millis {
	return c.duration
}
