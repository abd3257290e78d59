// Package metrics exposes the gateway's prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the gateway collectors. A nil *Metrics is valid and
// records nothing, so instrumentation stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions      prometheus.Gauge
	commandsTotal       *prometheus.CounterVec
	eventsForwarded     prometheus.Counter
	livenessDisconnects prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_sessions",
			Help: "Number of tracked client sessions.",
		}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_commands_total",
			Help: "Commands dispatched, labeled by result code.",
		}, []string{"result"}),
		eventsForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_events_forwarded_total",
			Help: "Upstream events fanned out to at least zero sessions.",
		}),
		livenessDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_liveness_disconnects_total",
			Help: "Sessions force-closed by the liveness sweep.",
		}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetActiveSessions records the current session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Command records one dispatched command by its result: "success" or the
// wire error code.
func (m *Metrics) Command(result string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(result).Inc()
}

// EventForwarded records one upstream event fan-out.
func (m *Metrics) EventForwarded() {
	if m == nil {
		return
	}
	m.eventsForwarded.Inc()
}

// LivenessDisconnect records one sweep-forced disconnect.
func (m *Metrics) LivenessDisconnect() {
	if m == nil {
		return
	}
	m.livenessDisconnects.Inc()
}
