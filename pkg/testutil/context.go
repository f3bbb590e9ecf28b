package testutil

import (
	"context"
	"net/http"
	"time"

	id "attesto/pkg/domain"
	"attesto/pkg/requestcontext"
)

// WithPrincipal stamps an authenticated caller on the request context.
// This simulates what the principal middleware does after token validation.
func WithPrincipal(req *http.Request, principal string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), id.Principal(principal))
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock so expiry assertions do not
// race the wall clock.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}

// WithRequestID stamps a request ID for log and audit assertions.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// CallerContext returns a service-call context carrying a caller principal
// and a fixed clock, for tests that bypass HTTP entirely.
func CallerContext(principal string, at time.Time) context.Context {
	ctx := requestcontext.WithPrincipal(context.Background(), id.Principal(principal))
	return requestcontext.WithTime(ctx, at)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
