package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"attesto/internal/audit"
	identitymetrics "attesto/internal/identity/metrics"
	"attesto/internal/identity/models"
	"attesto/pkg/attrs"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, doc *models.IdentityDocument) error
	FindByOwner(ctx context.Context, owner id.Principal) (*models.IdentityDocument, error)
	Execute(ctx context.Context, owner id.Principal, validate func(*models.IdentityDocument) error, mutate func(*models.IdentityDocument)) (*models.IdentityDocument, error)
	Count(ctx context.Context) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service orchestrates identity document registration and updates.
// The caller principal always comes from the request context; nothing here
// trusts a principal named in a request body.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *identitymetrics.Metrics
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

func WithMetrics(m *identitymetrics.Metrics) Option {
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

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	return s
}

// Create registers an identity document for the calling principal.
// A principal holds at most one document; a repeat registration fails.
func (s *Service) Create(ctx context.Context, publicKey, serviceEndpoint string) (*models.IdentityDocument, error) {
	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller principal required")
	}

	var doc *models.IdentityDocument
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		d, err := models.NewIdentityDocument(caller, publicKey, serviceEndpoint, requestcontext.Now(txCtx))
		if err != nil {
			// Convert invariant violations to validation errors for API response
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeInvalidArgument, err.Error())
			}
			return err
		}

		if err := s.store.Create(txCtx, d); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeAlreadyExists, "identity already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity")
		}

		if err := s.emitAudit(txCtx, string(audit.EventIdentityRegistered),
			"subject", caller.String(),
		); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incrementIdentitiesCreated()
	return doc, nil
}

// Update overwrites the caller's public key and service endpoint. Only the
// owning principal can reach this path; ownership is the store key.
func (s *Service) Update(ctx context.Context, publicKey, serviceEndpoint string) (*models.IdentityDocument, error) {
	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller principal required")
	}
	if publicKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "public key cannot be empty")
	}

	var doc *models.IdentityDocument
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		updated, err := s.store.Execute(txCtx, caller,
			func(d *models.IdentityDocument) error {
				return d.CanUpdate()
			},
			func(d *models.IdentityDocument) {
				d.ApplyUpdate(publicKey, serviceEndpoint, now)
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeNotFound, "identity not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update identity")
		}

		if err := s.emitAudit(txCtx, string(audit.EventIdentityUpdated),
			"subject", caller.String(),
		); err != nil {
			return err
		}
		doc = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incrementIdentityUpdates()
	return doc, nil
}

// HasActiveIdentity reports whether the principal holds an active document.
// Absence is a boolean answer, not an error.
func (s *Service) HasActiveIdentity(ctx context.Context, principal id.Principal) (bool, error) {
	if principal.IsNil() {
		return false, nil
	}

	start := time.Now()
	defer s.observeActiveLookup(start)

	doc, err := s.store.FindByOwner(ctx, principal)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	return doc.IsActive(), nil
}

// Resolve returns the full identity document for a principal.
func (s *Service) Resolve(ctx context.Context, principal id.Principal) (*models.IdentityDocument, error) {
	if principal.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "principal is required")
	}

	start := time.Now()
	defer s.observeResolve(start)

	doc, err := s.store.FindByOwner(ctx, principal)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}
	return doc, nil
}

// emitAudit logs the event and appends it to the audit stream. Mutations call
// this inside their transaction, so a failed append aborts the operation and
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
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) incrementIdentitiesCreated() {
	if s.metrics != nil {
		s.metrics.IncrementIdentitiesCreated()
	}
}

func (s *Service) incrementIdentityUpdates() {
	if s.metrics != nil {
		s.metrics.IncrementIdentityUpdates()
	}
}

func (s *Service) observeActiveLookup(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveActiveLookup(start)
	}
}

func (s *Service) observeResolve(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveResolve(start)
	}
}
