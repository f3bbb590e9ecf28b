// Package principal authenticates callers and exposes them to services.
//
// The registry trusts its execution environment to say who is calling;
// here that environment is a bearer token minted by the deployment's
// identity provider. The middleware only establishes WHO the caller is.
// Whether that caller may issue, authorize, or revoke is decided inside the
// services against registry state.
package principal

import (
	"log/slog"
	"net/http"
	"strings"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/platform/httputil"
	"attesto/pkg/requestcontext"
)

// Claims is the validated token payload the middleware consumes.
type Claims struct {
	// Principal is the caller handle from the token subject.
	Principal string
	// JTI is the token ID, kept for log correlation.
	JTI string
}

// Verifier validates a bearer token and returns its claims.
type Verifier interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// RequirePrincipal rejects requests without a valid bearer token and stores
// the authenticated principal in the request context.
func RequirePrincipal(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthenticated request - missing bearer token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "missing or invalid Authorization header"))
				return
			}

			claims, err := verifier.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthenticated request - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "invalid or expired token"))
				return
			}

			caller, err := id.ParsePrincipal(claims.Principal)
			if err != nil {
				logger.WarnContext(ctx, "unauthenticated request - malformed subject",
					"error", err,
					"request_id", requestID,
					"jti", claims.JTI,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "token subject is not a valid principal"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, caller)))
		})
	}
}
