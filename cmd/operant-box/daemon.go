package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/operant-box/internal/clock"
	"github.com/sweeney/operant-box/internal/config"
	"github.com/sweeney/operant-box/internal/discovery"
	"github.com/sweeney/operant-box/internal/gpio"
	"github.com/sweeney/operant-box/internal/hostlink"
	"github.com/sweeney/operant-box/internal/metrics"
	"github.com/sweeney/operant-box/internal/mqtt"
	"github.com/sweeney/operant-box/internal/session"
	"github.com/sweeney/operant-box/internal/status"
	"github.com/sweeney/operant-box/internal/web"
)

// Stop reasons for sessions ended from outside the orchestrator.
const (
	reasonHost     = "host"
	reasonOperator = "operator"
	reasonSignal   = "signal"
)

const webCommandQueue = 8

func run(cfg config.Config) error {
	sc, err := cfg.Session()
	if err != nil {
		return err
	}

	board, err := gpio.NewRealBoard(cfg.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := board.Close(); err != nil {
			log.Error().Err(err).Msg("gpio close failed")
		}
	}()

	clk := clock.NewMonotonic(0)
	orch, err := session.New(sc, board, board, clk.Now())
	if err != nil {
		return err
	}

	var host *hostlink.Link
	if cfg.Serial.Device != "" {
		port, err := hostlink.OpenSerial(hostlink.SerialConfig{Device: cfg.Serial.Device, BaudRate: cfg.Serial.Baud})
		if err != nil {
			return fmt.Errorf("open host link: %w", err)
		}
		host = hostlink.New(port, 0, 0)
		defer host.Close()
		log.Info().Str("device", cfg.Serial.Device).Int("baud", cfg.Serial.Baud).Msg("host link open")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	d := &daemon{
		orch:     orch,
		clk:      clk,
		host:     host,
		tracker:  tracker,
		metrics:  m,
		now:      time.Now,
		commands: make(chan web.Command, webCommandQueue),
	}

	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Config{
			Broker:     cfg.MQTT.Broker,
			Box:        cfg.Box,
			BufferSize: cfg.MQTT.BufferSize,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		d.publisher, d.mqttStatus = p, p
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, d.commands, metrics.Handler(reg))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Discovery.Enabled {
		ann := discovery.New(discovery.Config{
			Port:     cfg.Discovery.Port,
			Interval: clock.Millis(cfg.Discovery.IntervalMs).Duration(),
			Name:     cfg.Box,
			HTTPPort: httpPort(cfg.HTTP.Addr),
		})
		go func() {
			if err := ann.Run(ctx); err != nil {
				log.Error().Err(err).Msg("discovery stopped")
			}
		}()
	}

	d.publishSystem("STARTUP", "")
	log.Info().
		Str("box", cfg.Box).
		Uint32("poll_ms", cfg.PollMs).
		Str("trigger", cfg.Contingency.Trigger).
		Int("ratio", cfg.Contingency.Ratio).
		Msg("started")

	ticker := time.NewTicker(clock.Millis(cfg.PollMs).Duration())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(ticker.C, sigCh)
}

// daemon carries everything the control loop touches. Only runLoop's
// goroutine uses it; HTTP handlers reach it through commands and tracker.
type daemon struct {
	orch *session.Orchestrator
	clk  clock.Source

	// Optional: nil when the host link or MQTT is disabled.
	host       *hostlink.Link
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus

	tracker  *status.Tracker
	metrics  *metrics.Metrics
	commands chan web.Command
	now      func() time.Time
}

func (d *daemon) runLoop(tick <-chan time.Time, sig <-chan os.Signal) error {
	var hostDone <-chan struct{}
	if d.host != nil {
		hostDone = d.host.Done()
	}

	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.Info().Str("signal", reason).Msg("shutting down")
			d.orch.Stop(reasonSignal)
			// One more tick tears down any session and drives every output
			// low before the board is released.
			d.step()
			d.publishSystem("SHUTDOWN", reason)
			return nil

		case <-hostDone:
			log.Error().Err(d.host.Err()).Msg("host link lost")
			d.host = nil
			hostDone = nil
			d.orch.Disconnect()

		case <-tick:
			d.step()
		}
	}
}

// step runs one loop iteration.
func (d *daemon) step() {
	now := d.clk.Now()
	d.drainCommands(now)

	started := time.Now()
	events := d.orch.Tick(now)
	if d.metrics != nil {
		d.metrics.ObserveTick(time.Since(started))
	}

	if len(events) > 0 {
		wall := d.now()
		for _, e := range events {
			d.dispatch(wall, e)
		}
	}
	d.updateStatus()
}

// drainCommands applies every queued host and HTTP command without
// blocking.
func (d *daemon) drainCommands(now clock.Millis) {
	var hostCmds <-chan hostlink.Command
	if d.host != nil {
		hostCmds = d.host.Commands()
	}
	for {
		select {
		case c := <-hostCmds:
			d.applyHost(now, c)
		case c := <-d.commands:
			d.applyWeb(now, c)
		default:
			return
		}
	}
}

func (d *daemon) applyHost(now clock.Millis, c hostlink.Command) {
	switch c {
	case hostlink.CmdLink:
		d.orch.Acknowledge()
	case hostlink.CmdUnlink:
		d.orch.Disconnect()
	case hostlink.CmdStart:
		d.start(now, "host")
	case hostlink.CmdEnd:
		d.stop(reasonHost)
	}
}

func (d *daemon) applyWeb(now clock.Millis, c web.Command) {
	switch c {
	case web.CommandStart:
		d.start(now, "http")
	case web.CommandStop:
		d.stop(reasonOperator)
	}
}

func (d *daemon) start(now clock.Millis, source string) {
	if !d.orch.Start(now) {
		log.Warn().Str("source", source).Msg("start ignored: session already running")
	}
}

func (d *daemon) stop(reason string) {
	if !d.orch.Stop(reason) {
		log.Warn().Str("reason", reason).Msg("stop ignored: no session running")
	}
}

func (d *daemon) dispatch(wall time.Time, e session.Event) {
	logEvent(e)

	if d.host != nil {
		d.host.Send(frameFor(e))
	}
	if d.publisher != nil && e.Kind != session.EventPing {
		if err := d.publisher.Publish(wall, e); err != nil {
			log.Error().Err(err).Str("kind", string(e.Kind)).Msg("publish error")
		}
	}
	if d.metrics != nil {
		d.metrics.Observe(e)
	}
}

func logEvent(e session.Event) {
	switch e.Kind {
	case session.EventPing:
		return
	case session.EventSessionStart, session.EventSessionEnd, session.EventLinkUp, session.EventLinkDown:
		log.Info().
			Str("kind", string(e.Kind)).
			Str("session", e.SessionID).
			Str("reason", e.Reason).
			Msg("event")
	default:
		log.Debug().
			Str("kind", string(e.Kind)).
			Str("lever", e.Lever).
			Uint32("t_ms", uint32(e.SessionTime)).
			Uint32("duration_ms", uint32(e.Duration)).
			Msg("event")
	}
}

// frameFor maps a session event onto its host link frame.
func frameFor(e session.Event) hostlink.Frame {
	switch e.Kind {
	case session.EventPing:
		return hostlink.Ping{}
	case session.EventLinkUp:
		return hostlink.Status{Linked: true}
	case session.EventLinkDown:
		return hostlink.Status{Linked: false}
	case session.EventSessionStart:
		return hostlink.Session{Phase: "start", ID: e.SessionID, Reason: e.Reason}
	case session.EventSessionEnd:
		return hostlink.Session{Phase: "end", ID: e.SessionID, Reason: e.Reason}
	}
	return hostlink.Event{
		Kind:  string(e.Kind),
		Lever: e.Lever,
		T:     uint32(e.SessionTime),
		Dur:   uint32(e.Duration),
	}
}

func (d *daemon) updateStatus() {
	snap := d.orch.Snapshot()
	if d.metrics != nil {
		d.metrics.SyncCounts(snap.Counts)
	}
	if d.tracker == nil {
		return
	}
	d.tracker.Update(snap)
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if d.host != nil {
		sent, dropped, _, unknown := d.host.Stats()
		d.tracker.SetHostLink(status.HostLink{Sent: sent, Dropped: dropped, Unknown: unknown})
		if d.metrics != nil {
			d.metrics.SyncHostDropped(dropped)
		}
	}
}

// publishSystem sends a retained lifecycle event carrying a status snapshot.
func (d *daemon) publishSystem(event, reason string) {
	if d.publisher == nil {
		return
	}
	e := mqtt.SystemEvent{
		Timestamp: d.now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if d.tracker != nil {
		if d.mqttStatus != nil {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}
		e.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	if err := d.publisher.PublishSystem(e); err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Info().Str("event", event).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Box:            cfg.Box,
		PollMs:         int64(cfg.PollMs),
		DebounceMs:     int64(cfg.DebounceMs),
		PingIntervalMs: int64(cfg.Link.PingIntervalMs),
		Trigger:        cfg.Contingency.Trigger,
		Ratio:          cfg.Contingency.Ratio,
		TimeoutMs:      int64(cfg.Contingency.TimeoutMs),
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
		Serial:         cfg.Serial.Device,
	}
}

// httpPort extracts the port from a listen address such as ":8080".
func httpPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}
