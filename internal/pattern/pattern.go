// Package pattern plays timed on/off pulse trains without blocking.
// A Player is advanced by Tick; all waiting is a comparison against the
// timestamp at which the current phase began.
package pattern

import (
	"errors"
	"fmt"

	"github.com/sweeney/operant-box/internal/clock"
)

// Step is one entry of a pulse train: On ms high followed by Off ms low.
type Step struct {
	On  clock.Millis `yaml:"on_ms" mapstructure:"on_ms"`
	Off clock.Millis `yaml:"off_ms" mapstructure:"off_ms"`
}

// Train is an ordered sequence of steps.
type Train struct {
	Steps []Step `yaml:"steps" mapstructure:"steps"`
	// Repeat wraps back to the first step instead of finishing.
	Repeat bool `yaml:"repeat" mapstructure:"repeat"`
}

// Pulses builds a train of n identical steps.
func Pulses(n int, on, off clock.Millis) Train {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{On: on, Off: off}
	}
	return Train{Steps: steps}
}

// Period is the total length of one pass through the train.
func (t Train) Period() clock.Millis {
	var total clock.Millis
	for _, s := range t.Steps {
		total += s.On + s.Off
	}
	return total
}

// Validate checks that the train can be played.
func (t Train) Validate() error {
	if len(t.Steps) == 0 {
		return errors.New("pattern: no steps")
	}
	for i, s := range t.Steps {
		if s.On == 0 && s.Off == 0 {
			return fmt.Errorf("pattern: step %d has zero length", i)
		}
	}
	return nil
}

// Phase is the state of a Player.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOn
	PhaseOff
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseOn:
		return "ON"
	case PhaseOff:
		return "OFF"
	}
	return "UNKNOWN"
}

// Player steps through a Train.
type Player struct {
	train      Train
	phase      Phase
	index      int
	phaseStart clock.Millis
	passes     int
}

// NewPlayer creates an idle player for train.
func NewPlayer(train Train) *Player {
	return &Player{train: train}
}

// Start begins the train at step 0.
func (p *Player) Start(now clock.Millis) {
	if len(p.train.Steps) == 0 {
		p.phase = PhaseIdle
		return
	}
	p.index = 0
	p.passes = 0
	p.phase = PhaseOn
	p.phaseStart = now
}

// Tick advances the player to now and reports whether the output is high.
// Several phase boundaries may be crossed in one call if ticks were late;
// each phase keeps its nominal start so the train does not drift.
func (p *Player) Tick(now clock.Millis) bool {
	// Bounded so a repeating train of zero-length phases cannot spin.
	for guard := 0; guard < 2*len(p.train.Steps)+2; guard++ {
		switch p.phase {
		case PhaseIdle:
			return false
		case PhaseOn:
			step := p.train.Steps[p.index]
			if !clock.Reached(p.phaseStart, now, step.On) {
				return true
			}
			p.phaseStart += step.On
			p.phase = PhaseOff
		case PhaseOff:
			step := p.train.Steps[p.index]
			if !clock.Reached(p.phaseStart, now, step.Off) {
				return false
			}
			p.phaseStart += step.Off
			p.advance()
		}
	}
	return p.phase == PhaseOn
}

func (p *Player) advance() {
	p.index++
	if p.index < len(p.train.Steps) {
		p.phase = PhaseOn
		return
	}
	p.passes++
	if p.train.Repeat {
		p.index = 0
		p.phase = PhaseOn
		return
	}
	p.index = 0
	p.phase = PhaseIdle
}

// Stop returns the player to idle.
func (p *Player) Stop() {
	p.phase = PhaseIdle
	p.index = 0
}

// Active reports whether a train is in progress.
func (p *Player) Active() bool {
	return p.phase != PhaseIdle
}

// Phase returns the current phase.
func (p *Player) Phase() Phase {
	return p.phase
}

// Index returns the current step index.
func (p *Player) Index() int {
	return p.index
}

// Passes returns how many complete passes the current run has made.
func (p *Player) Passes() int {
	return p.passes
}
