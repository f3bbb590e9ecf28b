package handler

import (
	"time"

	"attesto/internal/identity/models"
)

// IdentityResponse is the HTTP representation of an identity document.
type IdentityResponse struct {
	Owner           string    `json:"owner"`
	PublicKey       string    `json:"public_key"`
	ServiceEndpoint string    `json:"service_endpoint,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Active          bool      `json:"active"`
}

// FromDocument converts a domain document to an HTTP response.
func FromDocument(doc *models.IdentityDocument) *IdentityResponse {
	return &IdentityResponse{
		Owner:           doc.Owner.String(),
		PublicKey:       doc.PublicKey,
		ServiceEndpoint: doc.ServiceEndpoint,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		Active:          doc.Active,
	}
}

// ActiveResponse is the HTTP response for GET /identities/{principal}/active.
type ActiveResponse struct {
	Principal string `json:"principal"`
	Active    bool   `json:"active"`
}
