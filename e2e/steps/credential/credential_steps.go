package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	StatusCode() int
	GetResponseField(field string) (interface{}, error)
	PrincipalFor(name string) string
	AuthenticateAs(name string) error
	ClearAuthentication()
	SetCredentialID(id string)
	GetCredentialID() string
}

// RegisterSteps registers credential-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &credentialSteps{tc: tc}

	// Lifecycle steps
	ctx.Step(`^"([^"]*)" issues a "([^"]*)" credential to "([^"]*)"$`, steps.issueCredential)
	ctx.Step(`^I attempt to issue a "([^"]*)" credential to "([^"]*)" without authentication$`, steps.issueWithoutAuth)
	ctx.Step(`^I save the credential id$`, steps.saveCredentialID)
	ctx.Step(`^I fetch the credential$`, steps.fetchCredential)
	ctx.Step(`^I verify the credential$`, steps.verifySavedCredential)
	ctx.Step(`^I verify the credential "([^"]*)"$`, steps.verifyCredentialByID)
	ctx.Step(`^"([^"]*)" revokes the credential$`, steps.revokeCredential)
	ctx.Step(`^I list the credentials of "([^"]*)"$`, steps.listSubjectCredentials)

	// Verdict assertion steps
	ctx.Step(`^the verdict should be valid$`, steps.verdictShouldBeValid)
	ctx.Step(`^the verdict should be invalid with reason "([^"]*)"$`, steps.verdictShouldBeInvalid)
	ctx.Step(`^the credential list should contain (\d+) credentials?$`, steps.credentialListShouldContain)
}

type credentialSteps struct {
	tc TestContext
}

func (s *credentialSteps) issueBody(credentialType, subject string) map[string]interface{} {
	return map[string]interface{}{
		"subject":         s.tc.PrincipalFor(subject),
		"credential_type": credentialType,
		"credential_data": "sha256:e2e-" + credentialType,
		"expires_at":      time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	}
}

func (s *credentialSteps) issueCredential(ctx context.Context, issuer, credentialType, subject string) error {
	if err := s.tc.AuthenticateAs(issuer); err != nil {
		return err
	}
	return s.tc.POST("/credentials", s.issueBody(credentialType, subject))
}

func (s *credentialSteps) issueWithoutAuth(ctx context.Context, credentialType, subject string) error {
	s.tc.ClearAuthentication()
	return s.tc.POST("/credentials", s.issueBody(credentialType, subject))
}

func (s *credentialSteps) saveCredentialID(ctx context.Context) error {
	value, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	id, ok := value.(string)
	if !ok || id == "" {
		return fmt.Errorf("response id is not a usable credential id: %v", value)
	}
	s.tc.SetCredentialID(id)
	return nil
}

func (s *credentialSteps) fetchCredential(ctx context.Context) error {
	return s.tc.GET("/credentials/"+s.tc.GetCredentialID(), nil)
}

func (s *credentialSteps) verifySavedCredential(ctx context.Context) error {
	return s.verifyCredentialByID(ctx, s.tc.GetCredentialID())
}

func (s *credentialSteps) verifyCredentialByID(ctx context.Context, id string) error {
	return s.tc.GET("/credentials/"+id+"/verify", nil)
}

func (s *credentialSteps) revokeCredential(ctx context.Context, name string) error {
	if err := s.tc.AuthenticateAs(name); err != nil {
		return err
	}
	return s.tc.POST("/credentials/"+s.tc.GetCredentialID()+"/revoke", nil)
}

func (s *credentialSteps) listSubjectCredentials(ctx context.Context, subject string) error {
	return s.tc.GET("/identities/"+s.tc.PrincipalFor(subject)+"/credentials", nil)
}

func (s *credentialSteps) verdictShouldBeValid(ctx context.Context) error {
	if s.tc.StatusCode() != 200 {
		return fmt.Errorf("verification answered %d, want 200", s.tc.StatusCode())
	}
	value, err := s.tc.GetResponseField("valid")
	if err != nil {
		return err
	}
	if value != true {
		return fmt.Errorf("expected a valid verdict, got %v", value)
	}
	return nil
}

func (s *credentialSteps) verdictShouldBeInvalid(ctx context.Context, reason string) error {
	if s.tc.StatusCode() != 200 {
		return fmt.Errorf("verification answered %d, want 200", s.tc.StatusCode())
	}
	value, err := s.tc.GetResponseField("valid")
	if err != nil {
		return err
	}
	if value != false {
		return fmt.Errorf("expected an invalid verdict, got %v", value)
	}
	got, err := s.tc.GetResponseField("reason")
	if err != nil {
		return err
	}
	if got != reason {
		return fmt.Errorf("expected reason %q, got %v", reason, got)
	}
	return nil
}

func (s *credentialSteps) credentialListShouldContain(ctx context.Context, count int) error {
	value, err := s.tc.GetResponseField("count")
	if err != nil {
		return err
	}
	got, ok := value.(float64)
	if !ok {
		return fmt.Errorf("field \"count\" is not a number: %v", value)
	}
	if int(got) != count {
		return fmt.Errorf("expected %d credentials, got %d", count, int(got))
	}
	return nil
}
