// Package session runs the operant control loop.
//
// The Orchestrator is ticked once per loop iteration. Each tick services the
// host heartbeat, polls the levers, fires the contingency, and then advances
// every actuator controller, whether or not a lever event occurred. Nothing
// in a tick blocks or sleeps; waiting is a comparison against a stored
// timestamp.
package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/operant-box/internal/clock"
	"github.com/sweeney/operant-box/internal/cue"
	"github.com/sweeney/operant-box/internal/laser"
	"github.com/sweeney/operant-box/internal/lever"
	"github.com/sweeney/operant-box/internal/link"
	"github.com/sweeney/operant-box/internal/pump"
)

type boundLever struct {
	cfg       LeverConfig
	monitor   *lever.Monitor
	lastRaw   bool
	holdFired bool
}

// Orchestrator owns every controller for one box.
type Orchestrator struct {
	cfg  Config
	act  Actuator
	sens Sensor

	ctx         Context
	wasRunning  bool
	sessionTick bool

	levers []*boundLever
	cue    *cue.Controller
	pump   *pump.Controller
	laser  *laser.Controller
	jingle *cue.Jingle
	link   *link.Manager

	ratioCount   int
	inTimeout    bool
	timeoutStart clock.Millis

	cueOn        bool
	cueOnAt      clock.Millis
	pumpOn       bool
	pumpOnAt     clock.Millis
	stimulating  bool
	stimOnAt     clock.Millis
	levels       map[string]bool
	failingWrite map[string]bool

	counts Counts
	events []Event
	newID  func() string
}

// New creates an orchestrator. now seeds the heartbeat timer.
func New(cfg Config, act Actuator, sens Sensor, now clock.Millis) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if len(cfg.ConnectedJingle.Steps) == 0 {
		cfg.ConnectedJingle = cue.ConnectedJingle
	}
	if len(cfg.DisconnectedJingle.Steps) == 0 {
		cfg.DisconnectedJingle = cue.DisconnectedJingle
	}

	o := &Orchestrator{
		cfg:          cfg,
		act:          act,
		sens:         sens,
		cue:          cue.New(cfg.CueDuration),
		pump:         pump.New(cfg.PumpDuration),
		laser:        laser.New(cfg.Laser, cfg.LaserRetrigger, cfg.LaserMode),
		jingle:       cue.NewJingle(cfg.ConnectedJingle, cfg.DisconnectedJingle),
		link:         link.New(cfg.Link, now),
		levels:       make(map[string]bool),
		failingWrite: make(map[string]bool),
		newID:        newSessionID,
	}
	for _, lc := range cfg.Levers {
		o.levers = append(o.levers, &boundLever{
			cfg:     lc,
			monitor: lever.NewMonitor(cfg.Debounce),
		})
	}
	return o, nil
}

func newSessionID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return ""
	}
	return id.String()
}

// Start requests a session starting at now. The session begins on the next
// Tick. It returns false if a session is running or the previous one has not
// been torn down yet.
func (o *Orchestrator) Start(now clock.Millis) bool {
	if o.ctx.Running || o.wasRunning {
		return false
	}
	o.ctx = Context{
		Running:   true,
		StartedAt: now,
		ID:        o.newID(),
	}
	return true
}

// Stop requests the session to end. Teardown happens on the next Tick.
// It returns false if no session is running.
func (o *Orchestrator) Stop(reason string) bool {
	if !o.ctx.Running {
		return false
	}
	o.ctx.Running = false
	o.ctx.StopReason = reason
	return true
}

// Acknowledge records a heartbeat reply from the host.
func (o *Orchestrator) Acknowledge() {
	o.link.Acknowledge()
}

// Disconnect marks the host link down.
func (o *Orchestrator) Disconnect() {
	o.link.Disconnect()
}

// Context returns the session context.
func (o *Orchestrator) Context() Context {
	return o.ctx
}

// Running reports whether a session is running.
func (o *Orchestrator) Running() bool {
	return o.ctx.Running
}

// Tick runs one loop iteration at now and returns the events it produced.
// The returned slice is reused by the next call.
func (o *Orchestrator) Tick(now clock.Millis) []Event {
	o.events = o.events[:0]
	o.sessionTick = o.ctx.Running || o.wasRunning

	o.serviceLink(now)

	switch {
	case o.ctx.Running && !o.wasRunning:
		o.begin(now)
	case !o.ctx.Running && o.wasRunning:
		o.teardown(now)
	}
	o.wasRunning = o.ctx.Running

	if o.ctx.Running {
		o.ctx.Elapsed = clock.Elapsed(o.ctx.StartedAt, now)
		o.expireTimeout(now)
		o.pollLevers(now)
	}

	o.advanceActuators(now)

	if o.ctx.Running {
		o.checkLimits(now)
	}
	return o.events
}

func (o *Orchestrator) serviceLink(now clock.Millis) {
	if o.link.MaybePing(now) {
		o.counts.Pings++
		o.emit(now, Event{Kind: EventPing})
	}
	if o.link.ConnectionJingle(o.jingle, now) {
		kind := EventLinkDown
		if o.link.Linked() {
			kind = EventLinkUp
		}
		o.emit(now, Event{Kind: kind})
	}
}

func (o *Orchestrator) begin(now clock.Millis) {
	o.counts = Counts{}
	o.ratioCount = 0
	o.inTimeout = false
	for _, l := range o.levers {
		l.monitor.Reset()
		l.holdFired = false
	}
	o.ctx.Elapsed = 0

	log.Info().Str("session", o.ctx.ID).Msg("session started")
	o.emit(now, Event{Kind: EventSessionStart})

	if o.laser.Mode() == laser.ModeIndependent {
		if o.laser.StartPattern(now) {
			o.counts.LaserTrains++
		}
	}
}

// teardown forces every actuator off. The outputs are written low in the
// same tick by advanceActuators.
func (o *Orchestrator) teardown(now clock.Millis) {
	o.cue.Deactivate()
	o.pump.Stop()
	o.laser.Stop()
	o.jingle.Stop()
	for _, l := range o.levers {
		l.monitor.Reset()
		l.holdFired = false
	}
	o.inTimeout = false
	o.ratioCount = 0

	length := clock.Elapsed(o.ctx.StartedAt, now)
	log.Info().
		Str("session", o.ctx.ID).
		Str("reason", o.ctx.StopReason).
		Dur("length", length.Duration()).
		Int("reinforcers", o.counts.Reinforcers).
		Msg("session ended")
	o.emit(now, Event{
		Kind:        EventSessionEnd,
		SessionTime: length,
		Duration:    length,
		Reason:      o.ctx.StopReason,
	})
}

func (o *Orchestrator) pollLevers(now clock.Millis) {
	for _, l := range o.levers {
		raw, err := o.sens.ReadRaw(l.cfg.Channel)
		if err != nil {
			// Treat a failed read as "no change".
			o.counts.SensorErrors++
			raw = l.lastRaw
		}
		l.lastRaw = raw

		ev := l.monitor.Poll(raw, now)
		switch ev.Kind {
		case lever.PressStarted:
			l.holdFired = false
			if l.cfg.Role == RoleInactive {
				o.counts.InactivePresses++
			} else {
				o.counts.ActivePresses++
			}
			o.emit(now, Event{Kind: EventPress, Lever: l.cfg.Name, Role: l.cfg.Role})
			if l.cfg.Role == RoleActive && o.cfg.Contingency.Trigger == TriggerPress {
				o.respond(now, l)
			}

		case lever.PressOngoing:
			c := o.cfg.Contingency
			if l.cfg.Role == RoleActive && c.Trigger == TriggerHold && !l.holdFired && ev.Held >= c.MinHold {
				l.holdFired = true
				o.respond(now, l)
			}

		case lever.Released:
			o.emit(now, Event{Kind: EventRelease, Lever: l.cfg.Name, Role: l.cfg.Role, Duration: ev.Held})
		}
	}
}

func (o *Orchestrator) expireTimeout(now clock.Millis) {
	if o.inTimeout && clock.Reached(o.timeoutStart, now, o.cfg.Contingency.Timeout) {
		o.inTimeout = false
	}
}

func (o *Orchestrator) rewardLimitReached() bool {
	limit := o.cfg.Limits.MaxRewards
	return limit > 0 && o.counts.Reinforcers >= limit
}

func (o *Orchestrator) respond(now clock.Millis, l *boundLever) {
	c := o.cfg.Contingency
	// Presses after the last reward are recorded but earn nothing while
	// the session winds down.
	if o.rewardLimitReached() {
		return
	}
	if o.inTimeout {
		o.counts.TimeoutPresses++
		o.emit(now, Event{Kind: EventTimeoutPress, Lever: l.cfg.Name, Role: l.cfg.Role})
		return
	}

	o.counts.Responses++
	o.ratioCount++
	if o.ratioCount < c.Ratio {
		return
	}
	o.ratioCount = 0
	o.reinforce(now)
}

func (o *Orchestrator) reinforce(now clock.Millis) {
	a := o.cfg.Contingency.Actions
	o.counts.Reinforcers++

	if a.Cue {
		o.cue.Activate(now)
	}
	if a.Pump {
		if o.pump.Trigger(now) {
			o.counts.PumpDeliveries++
		} else {
			o.counts.PumpRejected++
			o.emit(now, Event{Kind: EventPumpRejected})
		}
	}
	if a.Laser && o.laser.Mode() == laser.ModeContingent {
		if o.laser.StartPattern(now) {
			o.counts.LaserTrains++
		} else {
			o.counts.LaserRejected++
			o.emit(now, Event{Kind: EventLaserRejected})
		}
	}
	if o.cfg.Contingency.Timeout > 0 {
		o.inTimeout = true
		o.timeoutStart = now
	}
}

// advanceActuators ticks every controller and writes outputs that changed.
func (o *Orchestrator) advanceActuators(now clock.Millis) {
	cueOn := o.cue.Tick(now)
	pumpOn := o.pump.Tick(now)
	laserOn := o.laser.Tick(now)
	jingleOn := o.jingle.Tick(now)
	stimulating := o.laser.Stimulating()

	o.drive(ChannelCue, cueOn || jingleOn)
	o.drive(ChannelPump, pumpOn)
	o.drive(ChannelLaser, laserOn)

	switch {
	case cueOn && !o.cueOn:
		o.cueOnAt = now
		o.counts.CueOnsets++
		o.emit(now, Event{Kind: EventCueOn})
	case !cueOn && o.cueOn:
		o.emit(now, Event{Kind: EventCueOff, Duration: clock.Elapsed(o.cueOnAt, now)})
	}
	o.cueOn = cueOn

	switch {
	case pumpOn && !o.pumpOn:
		o.pumpOnAt = now
		o.emit(now, Event{Kind: EventPumpOn})
	case !pumpOn && o.pumpOn:
		o.emit(now, Event{Kind: EventPumpOff, Duration: clock.Elapsed(o.pumpOnAt, now)})
	}
	o.pumpOn = pumpOn

	switch {
	case stimulating && !o.stimulating:
		o.stimOnAt = now
		o.emit(now, Event{Kind: EventLaserStart})
	case !stimulating && o.stimulating:
		o.emit(now, Event{Kind: EventLaserEnd, Duration: clock.Elapsed(o.stimOnAt, now)})
	}
	o.stimulating = stimulating
}

// drive writes level to channel if it differs from the last successful
// write. A failed write is retried on the next tick.
func (o *Orchestrator) drive(channel string, level bool) {
	if cur, ok := o.levels[channel]; ok && cur == level {
		return
	}
	if o.act == nil {
		o.levels[channel] = level
		return
	}
	if err := o.act.SetOutput(channel, level); err != nil {
		o.counts.OutputErrors++
		delete(o.levels, channel)
		if !o.failingWrite[channel] {
			o.failingWrite[channel] = true
			log.Error().Err(err).Str("channel", channel).Bool("level", level).Msg("set output failed")
		}
		return
	}
	if o.failingWrite[channel] {
		delete(o.failingWrite, channel)
		log.Info().Str("channel", channel).Msg("output recovered")
	}
	o.levels[channel] = level
}

func (o *Orchestrator) checkLimits(now clock.Millis) {
	lim := o.cfg.Limits
	if lim.MaxDuration > 0 && clock.Reached(o.ctx.StartedAt, now, lim.MaxDuration) {
		o.Stop("duration_limit")
		return
	}
	// Let the final reward finish before ending the session. An
	// independent laser is not part of the reward and may never go idle.
	stimBusy := o.stimulating && o.laser.Mode() == laser.ModeContingent
	if o.rewardLimitReached() && !o.cueOn && !o.pumpOn && !stimBusy {
		o.Stop("reward_limit")
	}
}

func (o *Orchestrator) emit(now clock.Millis, e Event) {
	e.At = now
	e.SessionID = o.ctx.ID
	if e.SessionTime == 0 && o.sessionTick {
		e.SessionTime = clock.Elapsed(o.ctx.StartedAt, now)
	}
	o.events = append(o.events, e)
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	levers := make(map[string]bool, len(o.levers))
	for _, l := range o.levers {
		levers[l.cfg.Name] = l.monitor.Pressed()
	}
	return Snapshot{
		Context:     o.ctx,
		Counts:      o.counts,
		Linked:      o.link.Linked(),
		CueOn:       o.cueOn,
		Dispensing:  o.pump.Dispensing(),
		Stimulating: o.laser.Stimulating(),
		InTimeout:   o.inTimeout,
		Levers:      levers,
	}
}
