package domain

import (
	dErrors "attesto/pkg/domain-errors"
)

// CredentialIDLength is the hex-encoded length of a SHA-256 fingerprint.
const CredentialIDLength = 64

// CredentialID identifies a credential record. It is not a random token: it
// is the lowercase hex encoding of a SHA-256 fingerprint computed from the
// issuance event itself, so issuer and verifier can both derive it without
// coordination. The zero value is the null identifier.
type CredentialID string

// NilCredentialID is the null credential identifier.
const NilCredentialID CredentialID = ""

func (c CredentialID) String() string {
	return string(c)
}

// IsNil reports whether this is the null credential identifier.
func (c CredentialID) IsNil() bool {
	return c == NilCredentialID
}

// ParseCredentialID validates an incoming credential identifier. Anything
// that is not exactly 64 lowercase hex characters cannot have been produced
// by the fingerprint derivation and is rejected before it reaches a store.
func ParseCredentialID(s string) (CredentialID, error) {
	if s == "" {
		return NilCredentialID, dErrors.New(dErrors.CodeInvalidArgument, "credential id is required")
	}
	if len(s) != CredentialIDLength {
		return NilCredentialID, dErrors.New(dErrors.CodeInvalidArgument, "credential id must be 64 hex characters")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return NilCredentialID, dErrors.New(dErrors.CodeInvalidArgument, "credential id must be lowercase hex")
		}
	}
	return CredentialID(s), nil
}
