package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline.
type Metrics struct {
	Emitted          *prometheus.CounterVec
	Dropped          prometheus.Counter
	RelayPublished   prometheus.Counter
	RelayFailures    prometheus.Counter
	RelayBreakerOpen prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all audit metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesto_audit_events_emitted_total",
			Help: "Total number of audit events persisted, by category",
		}, []string{"category"}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_audit_events_dropped_total",
			Help: "Total number of audit events dropped by the async buffer",
		}),
		RelayPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_audit_relay_published_total",
			Help: "Total number of audit events published to the external stream",
		}),
		RelayFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_audit_relay_failures_total",
			Help: "Total number of failed publish attempts to the external stream",
		}),
		RelayBreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "attesto_audit_relay_breaker_open",
			Help: "Whether the relay circuit breaker is open (1) or closed (0)",
		}),
	}
}

// IncEmitted increments the emitted counter for a category.
func (m *Metrics) IncEmitted(category string) {
	m.Emitted.WithLabelValues(category).Inc()
}

// IncDropped increments the dropped counter.
func (m *Metrics) IncDropped() {
	m.Dropped.Inc()
}

// IncRelayPublished adds n to the relay published counter.
func (m *Metrics) IncRelayPublished(n int) {
	m.RelayPublished.Add(float64(n))
}

// IncRelayFailures increments the relay failure counter.
func (m *Metrics) IncRelayFailures() {
	m.RelayFailures.Inc()
}

// SetRelayBreakerOpen sets the relay breaker gauge.
func (m *Metrics) SetRelayBreakerOpen(open bool) {
	if open {
		m.RelayBreakerOpen.Set(1)
	} else {
		m.RelayBreakerOpen.Set(0)
	}
}
