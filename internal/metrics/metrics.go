// Package metrics exposes Prometheus metrics for the control loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/operant-box/internal/session"
)

const namespace = "operant"

// Metrics holds every collector. Create one per registry.
type Metrics struct {
	Presses         *prometheus.CounterVec
	TimeoutPresses  prometheus.Counter
	Rewards         prometheus.Counter
	Rejected        *prometheus.CounterVec
	LaserTrains     prometheus.Counter
	Pings           prometheus.Counter
	LinkTransitions *prometheus.CounterVec
	Sessions        *prometheus.CounterVec
	OutputErrors    prometheus.Counter
	SensorErrors    prometheus.Counter
	HostDropped     prometheus.Counter

	SessionRunning prometheus.Gauge
	LinkUp         prometheus.Gauge
	TickDuration   prometheus.Histogram

	lastOutputErrors int
	lastSensorErrors int
	lastHostDropped  int64
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Presses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lever_presses_total",
			Help:      "Confirmed lever presses by lever role.",
		}, []string{"lever", "role"}),
		TimeoutPresses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeout_presses_total",
			Help:      "Active-lever responses made during the post-reward timeout.",
		}),
		Rewards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_deliveries_total",
			Help:      "Pump dispenses started.",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_triggers_total",
			Help:      "Actuator triggers rejected because the actuator was busy.",
		}, []string{"actuator"}),
		LaserTrains: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "laser_trains_total",
			Help:      "Stimulation trains started.",
		}),
		Pings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_pings_total",
			Help:      "Heartbeat pings sent to the host.",
		}),
		LinkTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_transitions_total",
			Help:      "Host link state changes.",
		}, []string{"state"}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions ended, by stop reason.",
		}, []string{"reason"}),
		OutputErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_write_errors_total",
			Help:      "Failed actuator output writes.",
		}),
		SensorErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_errors_total",
			Help:      "Failed lever input reads.",
		}),
		HostDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_frames_dropped_total",
			Help:      "Frames dropped because the host link queue was full.",
		}),
		SessionRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_running",
			Help:      "1 while a session is running.",
		}),
		LinkUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_up",
			Help:      "1 while the host link is up.",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one control loop tick.",
			Buckets:   []float64{10e-6, 50e-6, 100e-6, 250e-6, 500e-6, 1e-3, 5e-3},
		}),
	}
}

// Observe updates the collectors for one session event.
func (m *Metrics) Observe(e session.Event) {
	switch e.Kind {
	case session.EventSessionStart:
		m.SessionRunning.Set(1)
	case session.EventSessionEnd:
		m.SessionRunning.Set(0)
		m.Sessions.WithLabelValues(e.Reason).Inc()
	case session.EventPress:
		m.Presses.WithLabelValues(e.Lever, e.Role.String()).Inc()
	case session.EventTimeoutPress:
		m.TimeoutPresses.Inc()
	case session.EventPumpOn:
		m.Rewards.Inc()
	case session.EventPumpRejected:
		m.Rejected.WithLabelValues("pump").Inc()
	case session.EventLaserStart:
		m.LaserTrains.Inc()
	case session.EventLaserRejected:
		m.Rejected.WithLabelValues("laser").Inc()
	case session.EventPing:
		m.Pings.Inc()
	case session.EventLinkUp:
		m.LinkUp.Set(1)
		m.LinkTransitions.WithLabelValues("up").Inc()
	case session.EventLinkDown:
		m.LinkUp.Set(0)
		m.LinkTransitions.WithLabelValues("down").Inc()
	}
}

// ObserveTick records the duration of one tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.TickDuration.Observe(d.Seconds())
}

// SyncCounts adds the error counts accumulated since the last call. The
// session resets its counts at start, so a smaller value restarts the
// baseline.
func (m *Metrics) SyncCounts(c session.Counts) {
	m.lastOutputErrors = addDelta(m.OutputErrors, m.lastOutputErrors, c.OutputErrors)
	m.lastSensorErrors = addDelta(m.SensorErrors, m.lastSensorErrors, c.SensorErrors)
}

// SyncHostDropped adds host link drops since the last call.
func (m *Metrics) SyncHostDropped(total int64) {
	if total > m.lastHostDropped {
		m.HostDropped.Add(float64(total - m.lastHostDropped))
	}
	m.lastHostDropped = total
}

func addDelta(c prometheus.Counter, last, now int) int {
	switch {
	case now > last:
		c.Add(float64(now - last))
	case now < last:
		c.Add(float64(now))
	}
	return now
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
