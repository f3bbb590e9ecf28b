package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"time"

	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// CredentialRecord is the aggregate root for an issued credential.
//
// Invariants:
//   - ID is the fingerprint of the issuance event (see Fingerprint) and
//     equals the store key
//   - Issuer, Subject, Type and Data are immutable after issuance
//   - ExpiresAt > IssuedAt
//   - Revoked flips false to true at most once and never back
//
// Issuance-time validity is permanent: the record asserts that the issuer
// was authorized and the subject active at IssuedAt. Later changes to either
// do not touch the record, so verification never re-checks them.
type CredentialRecord struct {
	ID        id.CredentialID `json:"id"`
	Type      string          `json:"credential_type"`
	Issuer    id.Principal    `json:"issuer"`
	Subject   id.Principal    `json:"subject"`
	Data      string          `json:"credential_data"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Revoked   bool            `json:"revoked"`
	Sequence  uint64          `json:"-"`
}

// IsExpiredAt reports whether the credential is past its expiry at the given
// instant. The expiry instant itself is still within the validity window.
func (c *CredentialRecord) IsExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ValidityAt reports whether the credential is presentable at the given
// instant. Revocation is checked before expiry, so a revoked credential
// reports revoked even when it has also expired. Issuer authorization and
// subject activity are not re-checked here: they were captured at issuance.
func (c *CredentialRecord) ValidityAt(now time.Time) error {
	if c.Revoked {
		return dErrors.New(dErrors.CodeRevoked, "credential is revoked")
	}
	if c.IsExpiredAt(now) {
		return dErrors.New(dErrors.CodeExpired, "credential is expired")
	}
	return nil
}

// CanRevoke checks that the caller may revoke this credential. Ownership is
// checked before state so a non-issuer probing a revoked credential learns
// nothing about its state.
func (c *CredentialRecord) CanRevoke(caller id.Principal) error {
	if caller != c.Issuer {
		return dErrors.New(dErrors.CodeUnauthorized, "only the issuing principal can revoke a credential")
	}
	if c.Revoked {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "credential is already revoked")
	}
	return nil
}

// ApplyRevocation flips the revocation flag. Irreversible: no operation
// clears it. Call CanRevoke first to validate the transition.
func (c *CredentialRecord) ApplyRevocation() {
	c.Revoked = true
}

func NewCredentialRecord(issuer, subject id.Principal, credType, data string, issuedAt, expiresAt time.Time, sequence uint64) (*CredentialRecord, error) {
	if issuer.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential issuer is required")
	}
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential subject is required")
	}
	if credType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential type cannot be empty")
	}
	if data == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential data cannot be empty")
	}
	if !expiresAt.After(issuedAt) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential must expire after issuance")
	}
	return &CredentialRecord{
		ID:        Fingerprint(issuer, subject, credType, data, issuedAt, sequence),
		Type:      credType,
		Issuer:    issuer,
		Subject:   subject,
		Data:      data,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Revoked:   false,
		Sequence:  sequence,
	}, nil
}

// Fingerprint derives the credential identifier from the issuance event:
// SHA-256 over issuer, subject, type, data, issuance instant and the
// per-issuer sequence number, in that order. Variable-length fields are
// length-prefixed so no two distinct inputs share an encoding. The sequence
// number makes two otherwise identical issuances in the same instant yield
// distinct identifiers.
func Fingerprint(issuer, subject id.Principal, credType, data string, issuedAt time.Time, sequence uint64) id.CredentialID {
	h := sha256.New()
	writeField(h, []byte(issuer))
	writeField(h, []byte(subject))
	writeField(h, []byte(credType))
	writeField(h, []byte(data))

	var fixed [8]byte
	binary.BigEndian.PutUint64(fixed[:], uint64(issuedAt.UnixNano()))
	h.Write(fixed[:])
	binary.BigEndian.PutUint64(fixed[:], sequence)
	h.Write(fixed[:])

	return id.CredentialID(hex.EncodeToString(h.Sum(nil)))
}

func writeField(h hash.Hash, b []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(b)))
	h.Write(prefix[:])
	h.Write(b)
}
