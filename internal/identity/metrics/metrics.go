package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
// Tracks registration counts and the lookup paths issuance depends on.
type Metrics struct {
	IdentitiesCreated    prometheus.Counter
	IdentityUpdates      prometheus.Counter
	ActiveLookupDuration prometheus.Histogram
	ResolveDuration      prometheus.Histogram
}

// New creates a new Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		IdentitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_identities_created_total",
			Help: "Total number of identity documents registered",
		}),
		IdentityUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_identity_updates_total",
			Help: "Total number of identity document updates",
		}),
		ActiveLookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attesto_identity_active_lookup_duration_seconds",
			Help:    "Duration of active-identity checks (credential issuance critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attesto_identity_resolve_duration_seconds",
			Help:    "Duration of full identity document lookups",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementIdentitiesCreated records a successful registration.
func (m *Metrics) IncrementIdentitiesCreated() {
	m.IdentitiesCreated.Inc()
}

// IncrementIdentityUpdates records a successful document update.
func (m *Metrics) IncrementIdentityUpdates() {
	m.IdentityUpdates.Inc()
}

// ObserveActiveLookup records the duration of a HasActiveIdentity check.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveActiveLookup(start time.Time) {
	m.ActiveLookupDuration.Observe(time.Since(start).Seconds())
}

// ObserveResolve records the duration of a Resolve operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
