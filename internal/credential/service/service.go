package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"attesto/internal/audit"
	credmetrics "attesto/internal/credential/metrics"
	"attesto/internal/credential/models"
	"attesto/pkg/attrs"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/requestcontext"
)

var tracer = otel.Tracer("attesto/credential")

type Store interface {
	Issue(ctx context.Context, issuer id.Principal, build func(sequence uint64) (*models.CredentialRecord, error)) (*models.CredentialRecord, error)
	FindByID(ctx context.Context, credID id.CredentialID) (*models.CredentialRecord, error)
	Execute(ctx context.Context, credID id.CredentialID, validate func(*models.CredentialRecord) error, mutate func(*models.CredentialRecord)) (*models.CredentialRecord, error)
	ListBySubject(ctx context.Context, subject id.Principal) ([]id.CredentialID, error)
}

// IdentityDirectory answers whether a principal holds an active identity.
// Backed by the identity service.
type IdentityDirectory interface {
	HasActiveIdentity(ctx context.Context, principal id.Principal) (bool, error)
}

// IssuerDirectory answers whether a principal holds the issuer role.
// Backed by the issuer service.
type IssuerDirectory interface {
	IsAuthorized(ctx context.Context, issuer id.Principal) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service is the credential lifecycle engine and the sole writer of
// credential state. Issuance consults the identity and issuer directories at
// issue time only; the outcome is baked into the record permanently, so
// verification never asks the directories anything.
type Service struct {
	store          Store
	identities     IdentityDirectory
	issuers        IssuerDirectory
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *credmetrics.Metrics
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

func WithMetrics(m *credmetrics.Metrics) Option {
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

// New constructs a Service over the given store and directories.
func New(store Store, identities IdentityDirectory, issuers IssuerDirectory, opts ...Option) *Service {
	s := &Service{store: store, identities: identities, issuers: issuers}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	return s
}

// Issue creates a credential from the calling principal to the subject.
// Preconditions run inside the same transaction as the write, so the
// authorization and identity snapshots the record captures are the ones it
// commits against. The first failing precondition wins and nothing is
// written.
func (s *Service) Issue(ctx context.Context, subject id.Principal, credType, data string, expiresAt time.Time) (*models.CredentialRecord, error) {
	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller principal required")
	}

	start := time.Now()
	defer s.observeIssue(start)

	ctx, span := tracer.Start(ctx, "credential.issue", trace.WithAttributes(
		attribute.String("issuer", caller.String()),
		attribute.String("subject", subject.String()),
		attribute.String("credential_type", credType),
	))
	defer span.End()

	var rec *models.CredentialRecord
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkIssuancePreconditions(txCtx, caller, subject, credType, data, expiresAt); err != nil {
			return err
		}

		issuedAt := requestcontext.Now(txCtx)
		stored, err := s.store.Issue(txCtx, caller, func(sequence uint64) (*models.CredentialRecord, error) {
			record, err := models.NewCredentialRecord(caller, subject, credType, data, issuedAt, expiresAt, sequence)
			if err != nil {
				// Convert invariant violations to validation errors for API response
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return nil, dErrors.New(dErrors.CodeInvalidArgument, err.Error())
				}
				return nil, err
			}
			return record, nil
		})
		if err != nil {
			var coded *dErrors.Error
			if errors.As(err, &coded) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record credential")
		}

		if err := s.emitAudit(txCtx, string(audit.EventCredentialIssued),
			"credential_id", stored.ID.String(),
			"subject", subject.String(),
			"issuer", caller.String(),
			"credential_type", credType,
			"decision", "issued",
		); err != nil {
			return err
		}
		rec = stored
		return nil
	})
	if err != nil {
		s.incrementIssuanceRejections(string(dErrors.CodeOf(err)))
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	span.SetAttributes(attribute.String("credential_id", rec.ID.String()))
	s.incrementCredentialsIssued()
	return rec, nil
}

// checkIssuancePreconditions applies the issuance gates in their contract
// order: issuer authorization, subject identity, expiry, then field shape.
func (s *Service) checkIssuancePreconditions(ctx context.Context, issuer, subject id.Principal, credType, data string, expiresAt time.Time) error {
	authorized, err := s.issuers.IsAuthorized(ctx, issuer)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check issuer authorization")
	}
	if !authorized {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not an authorized issuer")
	}

	active, err := s.identities.HasActiveIdentity(ctx, subject)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check subject identity")
	}
	if !active {
		return dErrors.New(dErrors.CodeInvalidSubject, "subject has no active identity")
	}

	if !expiresAt.After(requestcontext.Now(ctx)) {
		return dErrors.New(dErrors.CodeInvalidExpiry, "expiry must be in the future")
	}
	if credType == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "credential type is required")
	}
	if data == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "credential data is required")
	}
	return nil
}

// Verify checks a credential and reports the outcome. An invalid credential
// is a determinate answer, not an operation failure: the error return is
// reserved for lookups that could not complete. Validity is anchored to
// issuance time; current issuer authorization and subject activity are
// deliberately not consulted.
func (s *Service) Verify(ctx context.Context, credID id.CredentialID) (*models.VerificationResult, error) {
	if credID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "credential id is required")
	}

	start := time.Now()
	defer s.observeVerify(start)

	ctx, span := tracer.Start(ctx, "credential.verify", trace.WithAttributes(
		attribute.String("credential_id", credID.String()),
	))
	defer span.End()

	rec, err := s.store.FindByID(ctx, credID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.verificationFailed(ctx, span, credID, nil,
				dErrors.New(dErrors.CodeNotFound, "credential not found")), nil
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "lookup failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}

	if err := rec.ValidityAt(requestcontext.Now(ctx)); err != nil {
		return s.verificationFailed(ctx, span, credID, rec, err), nil
	}

	s.incrementVerifications("valid")
	s.emitVerificationEvent(ctx, string(audit.EventCredentialVerified),
		"credential_id", credID.String(),
		"subject", rec.Subject.String(),
		"issuer", rec.Issuer.String(),
		"credential_type", rec.Type,
		"decision", "valid",
	)
	return models.VerifiedCredential(rec), nil
}

// verificationFailed builds the failure result and records it. rec is nil
// when the credential does not exist.
func (s *Service) verificationFailed(ctx context.Context, span trace.Span, credID id.CredentialID, rec *models.CredentialRecord, cause error) *models.VerificationResult {
	result := models.FailedVerification(cause)
	span.SetAttributes(attribute.String("verification_reason", result.Reason))
	s.incrementVerifications(result.Reason)

	attributes := []any{
		"credential_id", credID.String(),
		"decision", "invalid",
		"reason", result.Reason,
	}
	if rec != nil {
		attributes = append(attributes,
			"subject", rec.Subject.String(),
			"issuer", rec.Issuer.String(),
			"credential_type", rec.Type,
		)
	}
	s.emitVerificationEvent(ctx, string(audit.EventCredentialVerificationFailed), attributes...)
	return result
}

// Revoke flips the credential's revocation flag. Only the issuer of record
// can revoke, and only once; the flag never clears.
func (s *Service) Revoke(ctx context.Context, credID id.CredentialID) (*models.CredentialRecord, error) {
	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller principal required")
	}
	if credID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "credential id is required")
	}

	ctx, span := tracer.Start(ctx, "credential.revoke", trace.WithAttributes(
		attribute.String("credential_id", credID.String()),
	))
	defer span.End()

	var rec *models.CredentialRecord
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		revoked, err := s.store.Execute(txCtx, credID,
			func(r *models.CredentialRecord) error {
				return r.CanRevoke(caller)
			},
			func(r *models.CredentialRecord) {
				r.ApplyRevocation()
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "credential not found")
			}
			var coded *dErrors.Error
			if errors.As(err, &coded) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
		}

		if err := s.emitAudit(txCtx, string(audit.EventCredentialRevoked),
			"credential_id", credID.String(),
			"subject", revoked.Subject.String(),
			"issuer", caller.String(),
			"credential_type", revoked.Type,
			"decision", "revoked",
		); err != nil {
			return err
		}
		rec = revoked
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	s.incrementCredentialsRevoked()
	return rec, nil
}

// Get returns the full credential record, revoked or not. Records are
// public: possession of the id is the only requirement.
func (s *Service) Get(ctx context.Context, credID id.CredentialID) (*models.CredentialRecord, error) {
	if credID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "credential id is required")
	}

	rec, err := s.store.FindByID(ctx, credID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return rec, nil
}

// ListSubjectCredentials returns the subject's full issuance index in
// issuance order, revoked and expired entries included. Filtering is the
// caller's job, one Verify per entry.
func (s *Service) ListSubjectCredentials(ctx context.Context, subject id.Principal) ([]id.CredentialID, error) {
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "subject principal is required")
	}

	index, err := s.store.ListBySubject(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list subject credentials")
	}
	return index, nil
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
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Subject:        id.Principal(attrs.ExtractString(attributes, "subject")),
		Action:         event,
		CredentialID:   attrs.ExtractString(attributes, "credential_id"),
		CredentialType: attrs.ExtractString(attributes, "credential_type"),
		Issuer:         id.Principal(attrs.ExtractString(attributes, "issuer")),
		Decision:       attrs.ExtractString(attributes, "decision"),
		Reason:         attrs.ExtractString(attributes, "reason"),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

// emitVerificationEvent records read-path telemetry. Verification never
// mutates state, so a failed append is logged and swallowed rather than
// failing the read.
func (s *Service) emitVerificationEvent(ctx context.Context, event string, attributes ...any) {
	if err := s.emitAudit(ctx, event, attributes...); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to record verification event", "event", event, "error", err)
	}
}

func (s *Service) incrementCredentialsIssued() {
	if s.metrics != nil {
		s.metrics.IncrementCredentialsIssued()
	}
}

func (s *Service) incrementCredentialsRevoked() {
	if s.metrics != nil {
		s.metrics.IncrementCredentialsRevoked()
	}
}

func (s *Service) incrementIssuanceRejections(reason string) {
	if s.metrics != nil {
		s.metrics.IncrementIssuanceRejections(reason)
	}
}

func (s *Service) incrementVerifications(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementVerifications(outcome)
	}
}

func (s *Service) observeIssue(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveIssue(start)
	}
}

func (s *Service) observeVerify(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveVerify(start)
	}
}
