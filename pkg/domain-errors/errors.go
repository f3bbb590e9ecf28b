// Package domainerrors provides coded errors for domain and service layers.
//
// Services return these so transports can translate failures into wire
// responses without string matching. Infrastructure layers return
// pkg/platform/sentinel errors instead; services wrap those into coded
// errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code carried on the wire.
type Code string

const (
	// Registry operation rejections. Each maps to one precondition class;
	// an operation either fails with exactly one of these or fully applies.
	CodeInvalidArgument Code = "invalid_argument"
	CodeAlreadyExists   Code = "already_exists"
	CodeNotFound        Code = "not_found"
	CodeUnauthorized    Code = "unauthorized"
	CodeInvalidSubject  Code = "invalid_subject"
	CodeInvalidExpiry   Code = "invalid_expiry"
	CodeAlreadyRevoked  Code = "already_revoked"

	// Verification outcomes surfaced as errors by tooling that wants them
	// (the verify endpoint itself reports them inside its result envelope).
	CodeRevoked Code = "revoked"
	CodeExpired Code = "expired"

	// Ambient codes.
	CodeUnauthenticated    Code = "unauthenticated"
	CodeInvariantViolation Code = "invariant_violation"
	CodeRateLimited        Code = "rate_limit_exceeded"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to callers;
// wrapped causes are for logs only.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code and message so call sites can assert with errors.Is
// against a freshly constructed coded error.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and caller-safe message to an underlying error.
// Wrapping nil returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost coded error in the chain,
// or CodeInternal when the error carries no code.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message of the outermost coded error,
// or an empty string for uncoded errors (never leak internals).
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return ""
}

// ToHTTPStatus maps a code to its HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument, CodeInvalidExpiry:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeAlreadyRevoked:
		return http.StatusConflict
	case CodeInvalidSubject:
		return http.StatusUnprocessableEntity
	case CodeRevoked, CodeExpired:
		return http.StatusGone
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
