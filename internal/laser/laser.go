// Package laser sequences optogenetic stimulation pulse trains.
package laser

import (
	"fmt"
	"strings"

	"github.com/sweeney/operant-box/internal/clock"
	"github.com/sweeney/operant-box/internal/pattern"
)

// Retrigger decides what StartPattern does while a train is playing.
type Retrigger int

const (
	// RetriggerIgnore leaves the running train alone and reports rejection.
	RetriggerIgnore Retrigger = iota
	// RetriggerRestart restarts the train from step 0.
	RetriggerRestart
)

func (r Retrigger) String() string {
	switch r {
	case RetriggerIgnore:
		return "ignore"
	case RetriggerRestart:
		return "restart"
	}
	return "unknown"
}

// ParseRetrigger parses "ignore" or "restart".
func ParseRetrigger(s string) (Retrigger, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return RetriggerIgnore, nil
	case "restart":
		return RetriggerRestart, nil
	}
	return RetriggerIgnore, fmt.Errorf("unknown retrigger policy %q", s)
}

// Mode decides what starts stimulation.
type Mode int

const (
	// ModeContingent trains are started by the response contingency.
	ModeContingent Mode = iota
	// ModeIndependent trains start with the session, regardless of presses.
	ModeIndependent
)

func (m Mode) String() string {
	switch m {
	case ModeContingent:
		return "contingent"
	case ModeIndependent:
		return "independent"
	}
	return "unknown"
}

// ParseMode parses "contingent" or "independent".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "contingent":
		return ModeContingent, nil
	case "independent":
		return ModeIndependent, nil
	}
	return ModeContingent, fmt.Errorf("unknown laser mode %q", s)
}

// Controller owns the stimulation pulse train.
type Controller struct {
	player    *pattern.Player
	retrigger Retrigger
	mode      Mode
	trains    int
	rejected  int
}

// New creates a stimulation controller.
func New(train pattern.Train, retrigger Retrigger, mode Mode) *Controller {
	return &Controller{
		player:    pattern.NewPlayer(train),
		retrigger: retrigger,
		mode:      mode,
	}
}

// StartPattern starts the train at now. From idle the train always starts
// at index 0. While pulsing, the retrigger policy applies; the return value
// reports whether a train was (re)started.
func (c *Controller) StartPattern(now clock.Millis) bool {
	if c.player.Active() && c.retrigger == RetriggerIgnore {
		c.rejected++
		return false
	}
	c.player.Start(now)
	if !c.player.Active() {
		return false
	}
	c.trains++
	return true
}

// Tick advances the train and reports whether the laser is on at now.
func (c *Controller) Tick(now clock.Millis) bool {
	return c.player.Tick(now)
}

// Stop ends stimulation immediately.
func (c *Controller) Stop() {
	c.player.Stop()
}

// Stimulating reports whether a train is in progress.
func (c *Controller) Stimulating() bool {
	return c.player.Active()
}

// Index returns the current pulse-train entry.
func (c *Controller) Index() int {
	return c.player.Index()
}

// Mode returns the configured mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Trains returns the number of trains started.
func (c *Controller) Trains() int {
	return c.trains
}

// Rejected returns the number of StartPattern calls ignored while pulsing.
func (c *Controller) Rejected() int {
	return c.rejected
}
