package cue

import (
	"github.com/sweeney/operant-box/internal/clock"
	"github.com/sweeney/operant-box/internal/pattern"
)

// Default connection jingles: three short chirps when the host links,
// one long tone when it is lost.
var (
	ConnectedJingle    = pattern.Pulses(3, 80, 60)
	DisconnectedJingle = pattern.Train{Steps: []pattern.Step{{On: 600}}}
)

// Jingle plays a connection-status pattern on the cue output.
type Jingle struct {
	connected    *pattern.Player
	disconnected *pattern.Player
	current      *pattern.Player
	played       int
}

// NewJingle creates a jingle with the given patterns.
func NewJingle(connected, disconnected pattern.Train) *Jingle {
	return &Jingle{
		connected:    pattern.NewPlayer(connected),
		disconnected: pattern.NewPlayer(disconnected),
	}
}

// Announce starts the jingle for the given link state, replacing any jingle
// still playing.
func (j *Jingle) Announce(linked bool, now clock.Millis) {
	if j.current != nil {
		j.current.Stop()
	}
	if linked {
		j.current = j.connected
	} else {
		j.current = j.disconnected
	}
	j.current.Start(now)
	j.played++
}

// Tick reports whether the jingle drives the cue output at now.
func (j *Jingle) Tick(now clock.Millis) bool {
	if j.current == nil {
		return false
	}
	on := j.current.Tick(now)
	if !j.current.Active() {
		j.current = nil
	}
	return on
}

// Stop silences the jingle.
func (j *Jingle) Stop() {
	if j.current != nil {
		j.current.Stop()
		j.current = nil
	}
}

// Playing reports whether a jingle is in progress.
func (j *Jingle) Playing() bool {
	return j.current != nil
}

// Played returns how many jingles have been started.
func (j *Jingle) Played() int {
	return j.played
}
