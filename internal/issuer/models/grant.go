package models

import (
	"time"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// IssuerGrant records that a principal is authorized to issue credentials.
//
// Grants are additive and permanent: no operation removes or suspends one.
// Re-authorizing an existing issuer leaves the original grant untouched, so
// AuthorizedBy and GrantedAt always describe the first authorization.
type IssuerGrant struct {
	Issuer       id.Principal `json:"issuer"`
	AuthorizedBy id.Principal `json:"authorized_by"`
	GrantedAt    time.Time    `json:"granted_at"`
}

// NewIssuerGrant creates a grant, validating invariants.
func NewIssuerGrant(issuer, authorizedBy id.Principal, grantedAt time.Time) (*IssuerGrant, error) {
	if issuer.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer is required")
	}
	if authorizedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "authorizing principal is required")
	}
	return &IssuerGrant{
		Issuer:       issuer,
		AuthorizedBy: authorizedBy,
		GrantedAt:    grantedAt,
	}, nil
}
