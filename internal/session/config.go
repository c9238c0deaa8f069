package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/operant-box/internal/clock"
	"github.com/sweeney/operant-box/internal/laser"
	"github.com/sweeney/operant-box/internal/link"
	"github.com/sweeney/operant-box/internal/pattern"
)

// Output channel names understood by the Actuator.
const (
	ChannelCue   = "cue"
	ChannelPump  = "pump"
	ChannelLaser = "laser"
)

// Role says what a lever's presses do.
type Role int

const (
	// RoleActive presses are evaluated against the contingency.
	RoleActive Role = iota
	// RoleInactive presses are recorded only.
	RoleInactive
)

func (r Role) String() string {
	switch r {
	case RoleActive:
		return "active"
	case RoleInactive:
		return "inactive"
	}
	return "unknown"
}

// ParseRole parses "active" or "inactive".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return RoleActive, nil
	case "inactive":
		return RoleInactive, nil
	}
	return RoleActive, fmt.Errorf("unknown lever role %q", s)
}

// Trigger is the response that counts towards the contingency.
type Trigger int

const (
	// TriggerPress counts a press as soon as it is confirmed.
	TriggerPress Trigger = iota
	// TriggerHold counts a press once it has been held for MinHold.
	TriggerHold
)

func (t Trigger) String() string {
	switch t {
	case TriggerPress:
		return "press"
	case TriggerHold:
		return "hold"
	}
	return "unknown"
}

// ParseTrigger parses "press" or "hold".
func ParseTrigger(s string) (Trigger, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "press":
		return TriggerPress, nil
	case "hold":
		return TriggerHold, nil
	}
	return TriggerPress, fmt.Errorf("unknown trigger %q", s)
}

// Actions is the set of actuators fired by a reinforced response.
type Actions struct {
	Cue   bool
	Pump  bool
	Laser bool
}

// Contingency maps responses on the active lever to actuator actions.
type Contingency struct {
	Trigger Trigger
	// MinHold applies to TriggerHold.
	MinHold clock.Millis
	// Ratio is the fixed-ratio requirement: every Ratio-th response is
	// reinforced. 1 reinforces every response.
	Ratio int
	// Timeout is the refractory period after a reinforcement. Responses
	// inside it are recorded as timeout presses and do not count.
	Timeout clock.Millis
	Actions Actions
}

// Limits end a session automatically. Zero disables a limit.
type Limits struct {
	MaxDuration clock.Millis
	MaxRewards  int
}

// LeverConfig binds a lever to a sensor channel.
type LeverConfig struct {
	Name    string
	Channel string
	Role    Role
}

// Config is everything the orchestrator needs to run a session.
type Config struct {
	Debounce     clock.Millis
	CueDuration  clock.Millis
	PumpDuration clock.Millis

	Laser          pattern.Train
	LaserRetrigger laser.Retrigger
	LaserMode      laser.Mode

	Levers      []LeverConfig
	Contingency Contingency
	Limits      Limits
	Link        link.Config

	// Connection jingles; zero values fall back to the cue package defaults.
	ConnectedJingle    pattern.Train
	DisconnectedJingle pattern.Train
}

// Validate reports every problem with the config.
func (c Config) Validate() error {
	var errs []error
	if c.CueDuration == 0 && c.Contingency.Actions.Cue {
		errs = append(errs, errors.New("cue duration must be positive"))
	}
	if c.PumpDuration == 0 && c.Contingency.Actions.Pump {
		errs = append(errs, errors.New("pump duration must be positive"))
	}
	if c.Contingency.Actions.Laser || c.LaserMode == laser.ModeIndependent {
		if err := c.Laser.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("laser: %w", err))
		}
	}
	if c.Contingency.Ratio < 1 {
		errs = append(errs, fmt.Errorf("ratio must be at least 1, got %d", c.Contingency.Ratio))
	}
	if c.Contingency.Trigger == TriggerHold && c.Contingency.MinHold == 0 {
		errs = append(errs, errors.New("hold trigger needs a minimum hold time"))
	}

	active := 0
	seen := make(map[string]bool)
	for i, l := range c.Levers {
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("lever %d has no name", i))
		}
		if l.Channel == "" {
			errs = append(errs, fmt.Errorf("lever %q has no channel", l.Name))
		}
		if seen[l.Name] {
			errs = append(errs, fmt.Errorf("duplicate lever %q", l.Name))
		}
		seen[l.Name] = true
		if l.Role == RoleActive {
			active++
		}
	}
	if active != 1 {
		errs = append(errs, fmt.Errorf("exactly one active lever required, got %d", active))
	}
	return errors.Join(errs...)
}
