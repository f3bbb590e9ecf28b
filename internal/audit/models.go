// Package audit records every registry state transition as an append-only
// event stream. The stream is the registry's explanation of itself: each
// issuance, revocation, and authorization lands here in commit order, keyed
// to the request that caused it.
package audit

import (
	"time"

	id "attesto/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers registry mutations with legal significance:
	// identity registration, issuer authorization, credential issuance and
	// revocation. These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics: denied authorizations, failed verifications.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	// These can be sampled or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	// ID uniquely identifies the event; downstream consumers dedupe on it.
	ID string
	// Seq is the commit-order position assigned by the store on append.
	Seq uint64

	Category  EventCategory
	Timestamp time.Time

	// Subject is the principal the event is about: the identity owner or
	// the credential subject.
	Subject id.Principal
	// Action is the event name, one of the AuditEvent constants.
	Action string

	// Credential context, populated for lifecycle events.
	CredentialID   string
	CredentialType string
	Issuer         id.Principal

	// Decision records the outcome ("issued", "revoked", "valid", "invalid").
	Decision string
	// Reason explains denials and failed verifications.
	Reason string

	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ActorID is the caller principal when different from Subject, e.g. an
	// issuer acting on a subject's credential.
	ActorID string
	// IP is the client address, kept for security forensics.
	IP string
	// UserAgent is the client software, normalized to a compact description.
	UserAgent string
}

type AuditEvent string

const (
	// Identity events
	EventIdentityRegistered AuditEvent = "identity_registered"
	EventIdentityUpdated    AuditEvent = "identity_updated"

	// Issuer events
	EventIssuerAuthorized          AuditEvent = "issuer_authorized"
	EventIssuerAuthorizationDenied AuditEvent = "issuer_authorization_denied"

	// Credential lifecycle events
	EventCredentialIssued  AuditEvent = "credential_issued"
	EventCredentialRevoked AuditEvent = "credential_revoked"

	// Verification events
	EventCredentialVerified           AuditEvent = "credential_verified"
	EventCredentialVerificationFailed AuditEvent = "credential_verification_failed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - registry mutations, tamper-proof storage
	EventIdentityRegistered: CategoryCompliance,
	EventIdentityUpdated:    CategoryCompliance,
	EventIssuerAuthorized:   CategoryCompliance,
	EventCredentialIssued:   CategoryCompliance,
	EventCredentialRevoked:  CategoryCompliance,

	// Security events - feed into SIEM and alerting
	EventIssuerAuthorizationDenied:    CategorySecurity,
	EventCredentialVerificationFailed: CategorySecurity,

	// Operations events - routine activity, can be sampled
	EventCredentialVerified: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
