package handler

import (
	"time"

	registry "attesto/contracts/registry"
	"attesto/internal/credential/models"
	id "attesto/pkg/domain"
)

// CredentialResponse is the HTTP representation of a credential record.
type CredentialResponse struct {
	ID             string    `json:"id"`
	CredentialType string    `json:"credential_type"`
	Issuer         string    `json:"issuer"`
	Subject        string    `json:"subject"`
	CredentialData string    `json:"credential_data"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Revoked        bool      `json:"revoked"`
}

// FromRecord converts a domain record to an HTTP response.
func FromRecord(rec *models.CredentialRecord) *CredentialResponse {
	return &CredentialResponse{
		ID:             rec.ID.String(),
		CredentialType: rec.Type,
		Issuer:         rec.Issuer.String(),
		Subject:        rec.Subject.String(),
		CredentialData: rec.Data,
		IssuedAt:       rec.IssuedAt,
		ExpiresAt:      rec.ExpiresAt,
		Revoked:        rec.Revoked,
	}
}

// VerificationResponse is the HTTP response for GET /credentials/{id}/verify.
// The shape is owned by the published contract so external verifiers can
// decode it without importing the registry.
type VerificationResponse = registry.VerificationVerdict

// FromResult converts a verification outcome to an HTTP response.
func FromResult(result *models.VerificationResult) *VerificationResponse {
	return &VerificationResponse{
		Valid:          result.Valid,
		Issuer:         result.Issuer.String(),
		Subject:        result.Subject.String(),
		CredentialType: result.Type,
		Reason:         result.Reason,
	}
}

// SubjectCredentialsResponse is the HTTP response for
// GET /identities/{principal}/credentials.
type SubjectCredentialsResponse struct {
	Subject       string   `json:"subject"`
	CredentialIDs []string `json:"credential_ids"`
	Count         int      `json:"count"`
}

// FromIndex converts a subject's issuance index to an HTTP response.
func FromIndex(subject id.Principal, index []id.CredentialID) *SubjectCredentialsResponse {
	ids := make([]string, len(index))
	for i, credID := range index {
		ids[i] = credID.String()
	}
	return &SubjectCredentialsResponse{
		Subject:       subject.String(),
		CredentialIDs: ids,
		Count:         len(ids),
	}
}
