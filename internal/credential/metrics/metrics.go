package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the credential lifecycle engine.
type Metrics struct {
	CredentialsIssued  prometheus.Counter
	CredentialsRevoked prometheus.Counter
	IssuanceRejections *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	IssueDuration      prometheus.Histogram
	VerifyDuration     prometheus.Histogram
}

// New creates a new Metrics instance with all credential module metrics registered.
func New() *Metrics {
	return &Metrics{
		CredentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesto_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		IssuanceRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesto_credential_issuance_rejections_total",
			Help: "Issuance attempts rejected by a precondition, labelled by failure code",
		}, []string{"reason"}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesto_credential_verifications_total",
			Help: "Verification checks performed, labelled by outcome",
		}, []string{"outcome"}),
		IssueDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attesto_credential_issue_duration_seconds",
			Help:    "Duration of credential issuance including precondition checks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attesto_credential_verify_duration_seconds",
			Help:    "Duration of credential verification checks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCredentialsIssued records a successful issuance.
func (m *Metrics) IncrementCredentialsIssued() {
	m.CredentialsIssued.Inc()
}

// IncrementCredentialsRevoked records a successful revocation.
func (m *Metrics) IncrementCredentialsRevoked() {
	m.CredentialsRevoked.Inc()
}

// IncrementIssuanceRejections records a failed issuance precondition.
func (m *Metrics) IncrementIssuanceRejections(reason string) {
	m.IssuanceRejections.WithLabelValues(reason).Inc()
}

// IncrementVerifications records a verification check and its outcome
// ("valid" or the failure reason).
func (m *Metrics) IncrementVerifications(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

// ObserveIssue records the duration of an issuance attempt. Call with
// time.Now() at the start of the operation.
func (m *Metrics) ObserveIssue(start time.Time) {
	m.IssueDuration.Observe(time.Since(start).Seconds())
}

// ObserveVerify records the duration of a verification check.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
