package handler

import (
	"strings"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// AuthorizeIssuerRequest is the HTTP request body for POST /issuers.
type AuthorizeIssuerRequest struct {
	Issuer string `json:"issuer"`
}

// Validate validates and normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *AuthorizeIssuerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "request body is required")
	}

	// Size validation (fail fast)
	if len(r.Issuer) > id.MaxPrincipalLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "issuer must be at most 255 characters")
	}

	r.Issuer = strings.TrimSpace(r.Issuer)
	if r.Issuer == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "issuer is required")
	}

	return nil
}
