package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"attesto/internal/identity/models"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"
)

// Service defines the interface for identity operations.
type Service interface {
	Create(ctx context.Context, publicKey, serviceEndpoint string) (*models.IdentityDocument, error)
	Update(ctx context.Context, publicKey, serviceEndpoint string) (*models.IdentityDocument, error)
	HasActiveIdentity(ctx context.Context, principal id.Principal) (bool, error)
	Resolve(ctx context.Context, principal id.Principal) (*models.IdentityDocument, error)
}

// Handler wires identity endpoints to the identity service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an identity handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the public read endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/identities/{principal}", h.HandleResolve)
	r.Get("/identities/{principal}/active", h.HandleActive)
}

// RegisterProtected mounts the endpoints that require an authenticated
// principal.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/identities", h.HandleCreate)
	r.Put("/identities", h.HandleUpdate)
}

// HandleCreate handles POST /identities requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateIdentityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	doc, err := h.service.Create(ctx, req.PublicKey, req.ServiceEndpoint)
	if err != nil {
		h.logger.ErrorContext(ctx, "identity registration failed",
			"request_id", requestID,
			"principal", caller.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identity registered",
		"request_id", requestID,
		"principal", caller.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromDocument(doc))
}

// HandleUpdate handles PUT /identities requests.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateIdentityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	doc, err := h.service.Update(ctx, req.PublicKey, req.ServiceEndpoint)
	if err != nil {
		h.logger.ErrorContext(ctx, "identity update failed",
			"request_id", requestID,
			"principal", caller.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identity updated",
		"request_id", requestID,
		"principal", caller.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

// HandleResolve handles GET /identities/{principal} requests.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := principalFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.service.Resolve(ctx, principal)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "identity resolve failed",
				"request_id", requestcontext.RequestID(ctx),
				"principal", principal.String(),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

// HandleActive handles GET /identities/{principal}/active requests.
func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := principalFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	active, err := h.service.HasActiveIdentity(ctx, principal)
	if err != nil {
		h.logger.ErrorContext(ctx, "identity active check failed",
			"request_id", requestcontext.RequestID(ctx),
			"principal", principal.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ActiveResponse{
		Principal: principal.String(),
		Active:    active,
	})
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
