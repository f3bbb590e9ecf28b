package registry

// TopicAuditEvents is the default Kafka topic lifecycle events are streamed
// to. Records are keyed by subject, so per-subject order is preserved within
// a partition.
const TopicAuditEvents = "attesto.audit"

// AuditEvent is the JSON value of one Kafka record on the audit topic.
// Timestamp is RFC 3339 with nanoseconds. Optional fields are omitted when
// the action they describe has no use for them.
type AuditEvent struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Timestamp      string `json:"timestamp"`
	Subject        string `json:"subject"`
	Action         string `json:"action"`
	CredentialID   string `json:"credential_id,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	Issuer         string `json:"issuer,omitempty"`
	Decision       string `json:"decision,omitempty"`
	Reason         string `json:"reason,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	IP             string `json:"ip,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}
