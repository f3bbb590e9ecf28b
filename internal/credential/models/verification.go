package models

import (
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// Verification failure reasons. These are part of the public contract and
// mirrored in contracts/registry; renaming one is a breaking change.
const (
	ReasonNotFound = "not_found"
	ReasonRevoked  = "revoked"
	ReasonExpired  = "expired"
)

// VerificationResult is the outcome of checking a credential. Verification
// is a query, not a command: an invalid credential is a determinate answer,
// not an operation failure. Issuer, Subject and Type are populated only when
// the credential is valid.
type VerificationResult struct {
	Valid   bool         `json:"valid"`
	Issuer  id.Principal `json:"issuer,omitempty"`
	Subject id.Principal `json:"subject,omitempty"`
	Type    string       `json:"credential_type,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// VerifiedCredential builds the success result carrying the descriptive
// fields captured at issuance.
func VerifiedCredential(rec *CredentialRecord) *VerificationResult {
	return &VerificationResult{
		Valid:   true,
		Issuer:  rec.Issuer,
		Subject: rec.Subject,
		Type:    rec.Type,
	}
}

// FailedVerification builds the failure result for a validity error. The
// reason string is derived from the error code so transport layers never
// see raw error text.
func FailedVerification(err error) *VerificationResult {
	return &VerificationResult{Valid: false, Reason: reasonForCode(dErrors.CodeOf(err))}
}

func reasonForCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return ReasonNotFound
	case dErrors.CodeRevoked:
		return ReasonRevoked
	case dErrors.CodeExpired:
		return ReasonExpired
	default:
		return string(code)
	}
}
