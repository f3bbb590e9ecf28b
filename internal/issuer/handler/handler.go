package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"attesto/internal/issuer/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"
)

// adminTokenHeader carries the shared secret for the admin_token issuer
// policy. Deployments on other policies ignore it.
const adminTokenHeader = "X-Admin-Token"

// Service defines the interface for issuer authorization operations.
type Service interface {
	AuthorizeIssuer(ctx context.Context, issuer id.Principal, adminToken string) (*models.IssuerGrant, error)
	IsAuthorized(ctx context.Context, issuer id.Principal) (bool, error)
	ListIssuers(ctx context.Context) ([]*models.IssuerGrant, error)
}

// Handler wires issuer endpoints to the issuer service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an issuer handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the public read endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/issuers", h.HandleList)
	r.Get("/issuers/{principal}", h.HandleAuthorized)
}

// RegisterProtected mounts the endpoints that require an authenticated
// principal.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/issuers", h.HandleAuthorize)
}

// HandleAuthorize handles POST /issuers requests. The status is 200 rather
// than 201: authorization is idempotent and a repeat grant is not an error.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[AuthorizeIssuerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	issuer, err := id.ParsePrincipal(req.Issuer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	grant, err := h.service.AuthorizeIssuer(ctx, issuer, r.Header.Get(adminTokenHeader))
	if err != nil {
		h.logger.ErrorContext(ctx, "issuer authorization failed",
			"request_id", requestID,
			"issuer", issuer.String(),
			"caller", caller.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "issuer authorized",
		"request_id", requestID,
		"issuer", issuer.String(),
		"caller", caller.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromGrant(grant))
}

// HandleAuthorized handles GET /issuers/{principal} requests.
func (h *Handler) HandleAuthorized(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := principalFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	authorized, err := h.service.IsAuthorized(ctx, principal)
	if err != nil {
		h.logger.ErrorContext(ctx, "issuer authorization check failed",
			"request_id", requestcontext.RequestID(ctx),
			"principal", principal.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, AuthorizedResponse{
		Principal:  principal.String(),
		Authorized: authorized,
	})
}

// HandleList handles GET /issuers requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	grants, err := h.service.ListIssuers(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "issuer list failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromGrants(grants))
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
