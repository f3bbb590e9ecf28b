package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/circuit"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"
)

// storeProbeEvery is how many requests pass unthrottled between store probes
// while the breaker is open.
const storeProbeEvery = 100

// Middleware throttles requests by client address. Store failures never fail
// a request: the limiter admits open, and a circuit breaker sidelines the
// store after repeated errors so a dead backend does not add latency to every
// request.
type Middleware struct {
	store   Store
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker

	skipped atomic.Uint64
}

// Option configures the middleware.
type Option func(*Middleware)

// WithLogger sets the logger for throttling decisions and store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// New builds a limiter admitting limit requests per client address per window.
func New(store Store, limit int, window time.Duration, opts ...Option) *Middleware {
	m := &Middleware{
		store:   store,
		limit:   limit,
		window:  window,
		logger:  slog.Default(),
		breaker: circuit.New("ratelimit-store"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Limit is the http middleware. Mount it with r.Use.
func (m *Middleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.storeUsable() {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := requestcontext.ClientIP(ctx)
		if key == "" {
			key = r.RemoteAddr
		}

		result, err := m.store.Allow(ctx, key, m.limit, m.window)
		if err != nil {
			m.recordStoreFailure(r, err)
			next.ServeHTTP(w, r)
			return
		}
		m.recordStoreSuccess(r)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.IncDenied()
			}
			m.logger.WarnContext(ctx, "request throttled",
				"path", r.URL.Path,
				"retry_after", retryAfter(result.ResetAt),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter(result.ResetAt)))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited,
				"too many requests from this address, retry later"))
			return
		}

		if m.metrics != nil {
			m.metrics.IncAllowed()
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter converts a reset instant into whole seconds, never less than 1
// so clients do not retry in a hot loop.
func retryAfter(resetAt time.Time) int {
	seconds := int(time.Until(resetAt).Seconds()) + 1
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func (m *Middleware) storeUsable() bool {
	if !m.breaker.IsOpen() {
		return true
	}
	// Let the occasional check through so recovery is noticed.
	return m.skipped.Add(1)%storeProbeEvery == 0
}

func (m *Middleware) recordStoreFailure(r *http.Request, err error) {
	if m.metrics != nil {
		m.metrics.IncErrors()
	}
	if _, change := m.breaker.RecordFailure(); change.Opened {
		m.logger.ErrorContext(r.Context(), "rate limit store sidelined after repeated errors",
			"error", err,
		)
	}
}

func (m *Middleware) recordStoreSuccess(r *http.Request) {
	if _, change := m.breaker.RecordSuccess(); change.Closed {
		m.logger.InfoContext(r.Context(), "rate limit store recovered")
	}
}
