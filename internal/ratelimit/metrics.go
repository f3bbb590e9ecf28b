package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks throttling decisions on the public surface.
type Metrics struct {
	Allowed prometheus.Counter
	Denied  prometheus.Counter
	Errors  prometheus.Counter
}

// NewMetrics creates and registers rate limit metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Allowed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_ratelimit_allowed_total",
			Help: "Requests admitted by the public rate limiter",
		}),
		Denied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_ratelimit_denied_total",
			Help: "Requests rejected by the public rate limiter",
		}),
		Errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_ratelimit_errors_total",
			Help: "Rate limit checks that failed and were admitted open",
		}),
	}
}

func (m *Metrics) IncAllowed() {
	m.Allowed.Inc()
}

func (m *Metrics) IncDenied() {
	m.Denied.Inc()
}

func (m *Metrics) IncErrors() {
	m.Errors.Inc()
}
