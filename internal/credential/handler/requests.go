package handler

import (
	"strings"
	"time"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

const (
	maxCredentialTypeLength = 255
	maxCredentialDataLength = 8192
)

// IssueCredentialRequest is the HTTP request body for POST /credentials.
// The issuer is never part of the body; it is always the authenticated
// caller.
type IssueCredentialRequest struct {
	Subject        string    `json:"subject"`
	CredentialType string    `json:"credential_type"`
	CredentialData string    `json:"credential_data"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Validate validates and normalizes the request. Shape only: whether the
// expiry is actually in the future is an issuance precondition, judged
// against the request clock by the service.
func (r *IssueCredentialRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "request body is required")
	}

	// Size validation (fail fast)
	if len(r.Subject) > id.MaxPrincipalLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "subject must be at most 255 characters")
	}
	if len(r.CredentialType) > maxCredentialTypeLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "credential_type must be at most 255 characters")
	}
	if len(r.CredentialData) > maxCredentialDataLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "credential_data must be at most 8192 characters")
	}

	r.Subject = strings.TrimSpace(r.Subject)
	if r.Subject == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "subject is required")
	}
	r.CredentialType = strings.TrimSpace(r.CredentialType)
	if r.CredentialType == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "credential_type is required")
	}
	// CredentialData is an opaque payload; it is required but never reshaped.
	if r.CredentialData == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "credential_data is required")
	}
	if r.ExpiresAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidArgument, "expires_at is required")
	}

	return nil
}
