package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"attesto/internal/credential/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"
)

// Service defines the interface for credential lifecycle operations.
type Service interface {
	Issue(ctx context.Context, subject id.Principal, credType, data string, expiresAt time.Time) (*models.CredentialRecord, error)
	Verify(ctx context.Context, credID id.CredentialID) (*models.VerificationResult, error)
	Revoke(ctx context.Context, credID id.CredentialID) (*models.CredentialRecord, error)
	Get(ctx context.Context, credID id.CredentialID) (*models.CredentialRecord, error)
	ListSubjectCredentials(ctx context.Context, subject id.Principal) ([]id.CredentialID, error)
}

// Handler wires credential endpoints to the lifecycle engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a credential handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the public read endpoints on the router. Credential reads
// need no authentication: possession of the id is the capability.
func (h *Handler) Register(r chi.Router) {
	r.Get("/credentials/{id}", h.HandleGet)
	r.Get("/credentials/{id}/verify", h.HandleVerify)
	r.Get("/identities/{principal}/credentials", h.HandleSubjectCredentials)
}

// RegisterProtected mounts the endpoints that require an authenticated
// principal.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/credentials", h.HandleIssue)
	r.Post("/credentials/{id}/revoke", h.HandleRevoke)
}

// HandleIssue handles POST /credentials requests.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[IssueCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	subject, err := id.ParsePrincipal(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Issue(ctx, subject, req.CredentialType, req.CredentialData, req.ExpiresAt)
	if err != nil {
		h.logger.ErrorContext(ctx, "credential issuance failed",
			"request_id", requestID,
			"issuer", caller.String(),
			"subject", subject.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "credential issued",
		"request_id", requestID,
		"credential_id", rec.ID.String(),
		"issuer", caller.String(),
		"subject", subject.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRecord(rec))
}

// HandleVerify handles GET /credentials/{id}/verify requests. A completed
// check is always 200; an invalid credential is an answer, not an error.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credID, err := credentialIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Verify(ctx, credID)
	if err != nil {
		h.logger.ErrorContext(ctx, "credential verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", credID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleRevoke handles POST /credentials/{id}/revoke requests.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	credID, err := credentialIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Revoke(ctx, credID)
	if err != nil {
		h.logger.ErrorContext(ctx, "credential revocation failed",
			"request_id", requestID,
			"credential_id", credID.String(),
			"caller", caller.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "credential revoked",
		"request_id", requestID,
		"credential_id", credID.String(),
		"issuer", caller.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleGet handles GET /credentials/{id} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credID, err := credentialIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Get(ctx, credID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "credential fetch failed",
				"request_id", requestcontext.RequestID(ctx),
				"credential_id", credID.String(),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleSubjectCredentials handles GET /identities/{principal}/credentials
// requests.
func (h *Handler) HandleSubjectCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, err := principalFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	index, err := h.service.ListSubjectCredentials(ctx, subject)
	if err != nil {
		h.logger.ErrorContext(ctx, "subject credential listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject", subject.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromIndex(subject, index))
}

// credentialIDFromURL parses the {id} route parameter.
func credentialIDFromURL(r *http.Request) (id.CredentialID, error) {
	return id.ParseCredentialID(chi.URLParam(r, "id"))
}

// principalFromURL parses the {principal} route parameter. Principals travel
// percent-encoded in paths.
func principalFromURL(r *http.Request) (id.Principal, error) {
	raw := chi.URLParam(r, "principal")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return id.ParsePrincipal(raw)
}
