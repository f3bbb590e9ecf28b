package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the issuer authorization module.
type Metrics struct {
	IssuersAuthorized       prometheus.Counter
	AuthorizationsDenied    prometheus.Counter
	AuthorizedCheckDuration prometheus.Histogram
}

// New creates a new Metrics instance with all issuer module metrics registered.
func New() *Metrics {
	return &Metrics{
		IssuersAuthorized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_issuers_authorized_total",
			Help: "Total number of issuer authorizations granted",
		}),
		AuthorizationsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_issuer_authorizations_denied_total",
			Help: "Authorization attempts rejected by the issuer policy",
		}),
		AuthorizedCheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attesto_issuer_authorized_check_duration_seconds",
			Help:    "Duration of issuer authorization checks (credential issuance critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementIssuersAuthorized records a newly granted authorization.
func (m *Metrics) IncrementIssuersAuthorized() {
	m.IssuersAuthorized.Inc()
}

// IncrementAuthorizationsDenied records a policy rejection.
func (m *Metrics) IncrementAuthorizationsDenied() {
	m.AuthorizationsDenied.Inc()
}

// ObserveAuthorizedCheck records the duration of an IsAuthorized check.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAuthorizedCheck(start time.Time) {
	m.AuthorizedCheckDuration.Observe(time.Since(start).Seconds())
}
