// Package metrics exposes Prometheus metrics for the connection supervisor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "watchdog"

// Metrics holds the supervisor collectors and the registry they belong to.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionAttempts  prometheus.Counter
	ConnectionsOpened   prometheus.Counter
	ConnectionFailures  prometheus.Counter
	ConsecutiveFailures prometheus.Gauge
	PingsSent           prometheus.Counter
	PingFailures        prometheus.Counter
}

// New creates a Metrics instance with its own registry, including Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_attempts_total",
			Help:      "Total number of connection attempts to the watchdog endpoint.",
		}),
		ConnectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Total number of successful WebSocket handshakes.",
		}),
		ConnectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_failures_total",
			Help:      "Total number of connection attempts that ended, for any reason.",
		}),
		ConsecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Current value of the shared failure counter.",
		}),
		PingsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pings_sent_total",
			Help:      "Total number of keepalive ping frames sent.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ping_failures_total",
			Help:      "Total number of keepalive ping frames that failed to send.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ConnectionAttempts,
		m.ConnectionsOpened,
		m.ConnectionFailures,
		m.ConsecutiveFailures,
		m.PingsSent,
		m.PingFailures,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Attempt records a connection attempt.
func (m *Metrics) Attempt() {
	if m == nil {
		return
	}
	m.ConnectionAttempts.Inc()
}

// Opened records a successful open; the failure counter has just been reset.
func (m *Metrics) Opened() {
	if m == nil {
		return
	}
	m.ConnectionsOpened.Inc()
	m.ConsecutiveFailures.Set(0)
}

// Failed records the end of an attempt and the resulting counter value.
func (m *Metrics) Failed(consecutive int) {
	if m == nil {
		return
	}
	m.ConnectionFailures.Inc()
	m.ConsecutiveFailures.Set(float64(consecutive))
}

// Ping records the outcome of one keepalive ping.
func (m *Metrics) Ping(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PingFailures.Inc()
		return
	}
	m.PingsSent.Inc()
}
