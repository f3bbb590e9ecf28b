// Package registry defines the wire contracts external consumers depend on:
// the verification verdict returned over HTTP and the audit events streamed
// to Kafka. The module is dependency-free on purpose so verifiers and audit
// consumers can import it without pulling in the registry itself.
//
// Changes here are breaking changes for every consumer. Add fields, never
// rename or remove them.
package registry

// Verification failure reasons. A verdict carries exactly one of these when
// Valid is false.
const (
	ReasonNotFound = "not_found"
	ReasonRevoked  = "revoked"
	ReasonExpired  = "expired"
)

// VerificationVerdict is the body of GET /credentials/{id}/verify. The
// endpoint always answers 200 for a completed check; validity lives here.
// Issuer, Subject and CredentialType are present only on a valid verdict,
// Reason only on an invalid one.
type VerificationVerdict struct {
	Valid          bool   `json:"valid"`
	Issuer         string `json:"issuer,omitempty"`
	Subject        string `json:"subject,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	Reason         string `json:"reason,omitempty"`
}
