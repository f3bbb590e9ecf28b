// Package httpapi assembles the registry's HTTP surface: the per-module
// handlers, the shared middleware chain, and the operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	credentialhandler "attesto/internal/credential/handler"
	identityhandler "attesto/internal/identity/handler"
	issuerhandler "attesto/internal/issuer/handler"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/platform/middleware/metadata"
	principalmw "attesto/pkg/platform/middleware/principal"
	"attesto/pkg/platform/middleware/recovery"
	"attesto/pkg/platform/middleware/requestid"
	"attesto/pkg/platform/middleware/requesttime"
)

// readyTimeout bounds each readiness probe so a hung dependency cannot wedge
// the load balancer's health checks.
const readyTimeout = 5 * time.Second

// Handlers collects the per-module handlers mounted on the router.
type Handlers struct {
	Identity   *identityhandler.Handler
	Issuer     *issuerhandler.Handler
	Credential *credentialhandler.Handler
}

// ReadyCheck reports whether a backing dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Option configures the router.
type Option func(*router)

// WithReadyCheck registers a named dependency probe on /readyz.
func WithReadyCheck(name string, check ReadyCheck) Option {
	return func(rt *router) {
		rt.readyChecks[name] = check
	}
}

// WithRateLimit throttles the public routes. Operational endpoints and
// authenticated mutations stay unthrottled.
func WithRateLimit(limit func(http.Handler) http.Handler) Option {
	return func(rt *router) {
		rt.rateLimit = limit
	}
}

type router struct {
	logger      *slog.Logger
	readyChecks map[string]ReadyCheck
	rateLimit   func(http.Handler) http.Handler
}

// New assembles the full route tree. Reads are public; mutations sit behind
// the principal middleware so every write carries an authenticated caller.
func New(h Handlers, verifier principalmw.Verifier, logger *slog.Logger, opts ...Option) http.Handler {
	rt := &router{
		logger:      logger,
		readyChecks: make(map[string]ReadyCheck),
	}
	for _, opt := range opts {
		opt(rt)
	}

	r := chi.NewRouter()
	r.Use(recovery.Middleware(logger))
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", rt.handleHealth)
	r.Get("/readyz", rt.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if rt.rateLimit != nil {
			r.Use(rt.rateLimit)
		}
		h.Identity.Register(r)
		h.Issuer.Register(r)
		h.Credential.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(principalmw.RequirePrincipal(verifier, logger))
		h.Identity.RegisterProtected(r)
		h.Issuer.RegisterProtected(r)
		h.Credential.RegisterProtected(r)
	})

	return r
}

func (rt *router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady probes every registered dependency. Any failure answers 503 so
// orchestrators stop routing traffic here until the dependency returns.
func (rt *router) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	for name, check := range rt.readyChecks {
		if err := check(ctx); err != nil {
			rt.logger.WarnContext(ctx, "readiness check failed",
				"dependency", name,
				"error", err,
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, name+" not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
