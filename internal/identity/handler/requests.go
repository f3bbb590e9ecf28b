package handler

import (
	"strings"

	dErrors "attesto/pkg/domain-errors"
)

const (
	maxPublicKeyLength       = 4096
	maxServiceEndpointLength = 2048
)

// CreateIdentityRequest is the HTTP request body for POST /identities.
type CreateIdentityRequest struct {
	PublicKey       string `json:"public_key"`
	ServiceEndpoint string `json:"service_endpoint"`
}

// Validate validates and normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateIdentityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "request body is required")
	}

	// Size validation (fail fast)
	if len(r.PublicKey) > maxPublicKeyLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "public_key must be at most 4096 characters")
	}
	if len(r.ServiceEndpoint) > maxServiceEndpointLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "service_endpoint must be at most 2048 characters")
	}

	r.PublicKey = strings.TrimSpace(r.PublicKey)
	if r.PublicKey == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "public_key is required")
	}
	r.ServiceEndpoint = strings.TrimSpace(r.ServiceEndpoint)

	return nil
}

// UpdateIdentityRequest is the HTTP request body for PUT /identities.
type UpdateIdentityRequest struct {
	PublicKey       string `json:"public_key"`
	ServiceEndpoint string `json:"service_endpoint"`
}

// Validate validates and normalizes the request.
func (r *UpdateIdentityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "request body is required")
	}

	if len(r.PublicKey) > maxPublicKeyLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "public_key must be at most 4096 characters")
	}
	if len(r.ServiceEndpoint) > maxServiceEndpointLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "service_endpoint must be at most 2048 characters")
	}

	r.PublicKey = strings.TrimSpace(r.PublicKey)
	if r.PublicKey == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "public_key is required")
	}
	r.ServiceEndpoint = strings.TrimSpace(r.ServiceEndpoint)

	return nil
}
