package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors records protocol engine metrics in Prometheus.
type Collectors struct {
	frames      *prometheus.CounterVec
	calls       *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
	sessions    prometheus.Gauge
	commands    *prometheus.CounterVec
}

// New registers the collectors on reg, or on the default registerer when reg
// is nil. Collectors already registered are reused.
func New(reg prometheus.Registerer) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_inbound_frames_total",
		Help: "Inbound OCPP frames by action and handling result",
	}, []string{"action", "result"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_server_calls_total",
		Help: "Server-issued OCPP calls by action and outcome",
	}, []string{"action", "outcome"})
	callLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocpp_server_call_latency_seconds",
		Help:    "Time between issuing a call and its resolution",
		Buckets: prometheus.DefBuckets,
	}, []string{"action", "outcome"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_sessions",
		Help: "Live charger sessions",
	})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_remote_commands_total",
		Help: "Remote commands by kind, delivery mode and status",
	}, []string{"command", "mode", "status"})

	var err error
	if frames, err = register(reg, frames); err != nil {
		return nil, err
	}
	if calls, err = register(reg, calls); err != nil {
		return nil, err
	}
	if callLatency, err = register(reg, callLatency); err != nil {
		return nil, err
	}
	if sessions, err = register(reg, sessions); err != nil {
		return nil, err
	}
	if commands, err = register(reg, commands); err != nil {
		return nil, err
	}

	return &Collectors{
		frames:      frames,
		calls:       calls,
		callLatency: callLatency,
		sessions:    sessions,
		commands:    commands,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveFrame counts one inbound frame.
func (c *Collectors) ObserveFrame(action, result string) {
	if action == "" {
		action = "none"
	}
	c.frames.WithLabelValues(action, result).Inc()
}

// ObserveCall records the outcome and latency of a server-issued call.
func (c *Collectors) ObserveCall(action, outcome string, latency time.Duration) {
	c.calls.WithLabelValues(action, outcome).Inc()
	c.callLatency.WithLabelValues(action, outcome).Observe(latency.Seconds())
}

// SetSessions sets the live session gauge.
func (c *Collectors) SetSessions(n int) {
	c.sessions.Set(float64(n))
}

// ObserveCommand counts one remote command outcome.
func (c *Collectors) ObserveCommand(command, mode, status string) {
	c.commands.WithLabelValues(command, mode, status).Inc()
}
