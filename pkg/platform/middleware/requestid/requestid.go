// Package requestid assigns every request a correlation ID.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"attesto/pkg/requestcontext"
)

// Header is the inbound and outbound request ID header.
const Header = "X-Request-ID"

// Middleware reuses the caller-supplied X-Request-ID when present, otherwise
// generates one. The ID is stored in context and echoed on the response so
// log lines, audit events, and client reports can be joined.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
