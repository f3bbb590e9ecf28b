package service

import (
	"context"
	"log/slog"
	"time"

	"attesto/internal/audit"
	issuermetrics "attesto/internal/issuer/metrics"
	"attesto/internal/issuer/models"
	"attesto/internal/issuer/policy"
	"attesto/pkg/attrs"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/requestcontext"
)

type Store interface {
	Grant(ctx context.Context, grant *models.IssuerGrant) (stored *models.IssuerGrant, created bool, err error)
	IsAuthorized(ctx context.Context, issuer id.Principal) (bool, error)
	List(ctx context.Context) ([]*models.IssuerGrant, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service maintains the issuer authorization registry. The set of authorized
// issuers only grows; once a principal is an issuer it stays one, which is
// what lets credential validity anchor to issuance time.
type Service struct {
	store          Store
	policy         policy.Authorizer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *issuermetrics.Metrics
	tx             StoreTx
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *issuermetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStoreTx sets the transactional boundary. Defaults to the sharded
// in-memory implementation when unset.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// New constructs a Service gated by the given authorization policy.
func New(store Store, authorizer policy.Authorizer, opts ...Option) *Service {
	s := &Service{store: store, policy: authorizer}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	return s
}

// AuthorizeIssuer grants the issuer role to a principal. The operation is
// idempotent: granting an existing issuer changes nothing and returns the
// original grant. adminToken is the secret presented by the caller, consulted
// only when the deployment's policy requires one.
func (s *Service) AuthorizeIssuer(ctx context.Context, issuer id.Principal, adminToken string) (*models.IssuerGrant, error) {
	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller principal required")
	}
	if issuer.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "issuer principal is required")
	}

	if err := s.policy.Authorize(ctx, caller, adminToken); err != nil {
		s.incrementAuthorizationsDenied()
		// The denial itself is security-relevant; record it even though the
		// operation writes nothing.
		if auditErr := s.emitAudit(ctx, string(audit.EventIssuerAuthorizationDenied),
			"subject", issuer.String(),
			"caller", caller.String(),
			"reason", dErrors.MessageOf(err),
		); auditErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to record authorization denial", "error", auditErr)
		}
		return nil, err
	}

	var grant *models.IssuerGrant
	var created bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		g, err := models.NewIssuerGrant(issuer, caller, requestcontext.Now(txCtx))
		if err != nil {
			// Convert invariant violations to validation errors for API response
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeInvalidArgument, err.Error())
			}
			return err
		}

		stored, wasCreated, err := s.store.Grant(txCtx, g)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record issuer grant")
		}
		grant = stored
		created = wasCreated
		if !created {
			// Repeat authorization: state is unchanged, nothing to log.
			return nil
		}

		return s.emitAudit(txCtx, string(audit.EventIssuerAuthorized),
			"subject", issuer.String(),
			"authorized_by", caller.String(),
		)
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.incrementIssuersAuthorized()
	}
	return grant, nil
}

// IsAuthorized reports whether the principal may issue credentials.
// The nil principal is never authorized; absence is a boolean answer, not an
// error.
func (s *Service) IsAuthorized(ctx context.Context, issuer id.Principal) (bool, error) {
	if issuer.IsNil() {
		return false, nil
	}

	start := time.Now()
	defer s.observeAuthorizedCheck(start)

	authorized, err := s.store.IsAuthorized(ctx, issuer)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check issuer authorization")
	}
	return authorized, nil
}

// ListIssuers returns every grant in grant order.
func (s *Service) ListIssuers(ctx context.Context) ([]*models.IssuerGrant, error) {
	grants, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list issuers")
	}
	return grants, nil
}

// emitAudit logs the event and appends it to the audit stream. The grant path
// calls this inside its transaction, so a failed append aborts the grant and
// the committed log order matches the commit order.
func (s *Service) emitAudit(ctx context.Context, event string, attributes ...any) error {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return nil
	}
	subject := attrs.ExtractString(attributes, "subject")
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Subject: id.Principal(subject),
		Action:  event,
		Reason:  attrs.ExtractString(attributes, "reason"),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) incrementIssuersAuthorized() {
	if s.metrics != nil {
		s.metrics.IncrementIssuersAuthorized()
	}
}

func (s *Service) incrementAuthorizationsDenied() {
	if s.metrics != nil {
		s.metrics.IncrementAuthorizationsDenied()
	}
}

func (s *Service) observeAuthorizedCheck(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveAuthorizedCheck(start)
	}
}
