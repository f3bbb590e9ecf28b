package handler

import (
	"time"

	"attesto/internal/issuer/models"
)

// GrantResponse is the HTTP representation of an issuer grant.
type GrantResponse struct {
	Issuer       string    `json:"issuer"`
	AuthorizedBy string    `json:"authorized_by"`
	GrantedAt    time.Time `json:"granted_at"`
}

// FromGrant converts a domain grant to an HTTP response.
func FromGrant(grant *models.IssuerGrant) *GrantResponse {
	return &GrantResponse{
		Issuer:       grant.Issuer.String(),
		AuthorizedBy: grant.AuthorizedBy.String(),
		GrantedAt:    grant.GrantedAt,
	}
}

// AuthorizedResponse is the HTTP response for GET /issuers/{principal}.
type AuthorizedResponse struct {
	Principal  string `json:"principal"`
	Authorized bool   `json:"authorized"`
}

// IssuerListResponse is the HTTP response for GET /issuers.
type IssuerListResponse struct {
	Issuers []*GrantResponse `json:"issuers"`
	Count   int              `json:"count"`
}

// FromGrants converts a grant list to an HTTP response.
func FromGrants(grants []*models.IssuerGrant) *IssuerListResponse {
	out := make([]*GrantResponse, 0, len(grants))
	for _, grant := range grants {
		out = append(out, FromGrant(grant))
	}
	return &IssuerListResponse{Issuers: out, Count: len(out)}
}
