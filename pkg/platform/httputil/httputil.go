// Package httputil provides shared HTTP response and request helpers.
//
// Handlers stay thin: decode with DecodeAndPrepare, call the service, then
// WriteJSON or WriteError. Error bodies follow the
// {"error": code, "error_description": message} shape; internal errors omit
// the description so store and broker failures never leak to callers.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "attesto/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies. Credential claim payloads are the
// largest legitimate input and stay far below this.
const maxBodyBytes = 1 << 20

// errorResponse is the wire shape for all error replies.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded domain error onto an HTTP status and JSON body.
// Uncoded errors are treated as internal. Internal error messages are
// suppressed; everything else surfaces its message as error_description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Description = dErrors.MessageOf(err)
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}

// Validatable is implemented by request types that normalize and validate
// themselves after decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the request body into T, runs its validation, and
// writes the appropriate error response on failure. The second return value
// reports whether the handler should continue.
func DecodeAndPrepare[T any, V interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (V, bool) {
	var req T
	v := V(&req)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode request body",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "invalid request body"))
		return nil, false
	}

	if err := v.Validate(); err != nil {
		WriteError(w, err)
		return nil, false
	}

	return v, true
}
