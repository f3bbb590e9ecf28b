package models

import (
	"time"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// IdentityDocument is the aggregate root for a registered identity.
//
// Invariants:
//   - Owner is immutable and equals the store key
//   - PublicKey is non-empty while the document is active
//   - UpdatedAt >= CreatedAt
//   - A document, once created, is never physically deleted
//
// Active is recorded but no operation clears it: the registry models
// creation and update only. The flag stays true for every stored document
// until a deactivation policy exists.
type IdentityDocument struct {
	Owner           id.Principal `json:"owner"`
	PublicKey       string       `json:"public_key"`
	ServiceEndpoint string       `json:"service_endpoint,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Active          bool         `json:"active"`
}

func (d *IdentityDocument) IsActive() bool {
	return d.Active
}

// CanUpdate checks that the document accepts key or endpoint changes.
// Use with ApplyUpdate in Execute callbacks.
func (d *IdentityDocument) CanUpdate() error {
	if !d.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "identity is not active")
	}
	return nil
}

// ApplyUpdate overwrites the mutable fields. Owner and CreatedAt never
// change. Call CanUpdate first to validate the transition.
func (d *IdentityDocument) ApplyUpdate(publicKey, serviceEndpoint string, now time.Time) {
	d.PublicKey = publicKey
	d.ServiceEndpoint = serviceEndpoint
	d.UpdatedAt = now
}

func NewIdentityDocument(owner id.Principal, publicKey, serviceEndpoint string, now time.Time) (*IdentityDocument, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity owner is required")
	}
	if publicKey == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "public key cannot be empty")
	}
	return &IdentityDocument{
		Owner:           owner,
		PublicKey:       publicKey,
		ServiceEndpoint: serviceEndpoint,
		CreatedAt:       now,
		UpdatedAt:       now,
		Active:          true,
	}, nil
}
