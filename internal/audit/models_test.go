package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditEvent_Category(t *testing.T) {
	tests := []struct {
		name  string
		event AuditEvent
		want  EventCategory
	}{
		{"identity registered is compliance", EventIdentityRegistered, CategoryCompliance},
		{"identity updated is compliance", EventIdentityUpdated, CategoryCompliance},
		{"issuer authorized is compliance", EventIssuerAuthorized, CategoryCompliance},
		{"credential issued is compliance", EventCredentialIssued, CategoryCompliance},
		{"credential revoked is compliance", EventCredentialRevoked, CategoryCompliance},
		{"authorization denied is security", EventIssuerAuthorizationDenied, CategorySecurity},
		{"verification failure is security", EventCredentialVerificationFailed, CategorySecurity},
		{"verification is operations", EventCredentialVerified, CategoryOperations},
		{"unknown action falls back to operations", AuditEvent("something_new"), CategoryOperations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Category())
		})
	}
}
