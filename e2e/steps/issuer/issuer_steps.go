package issuer

import (
	"context"
	"fmt"

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
}

// RegisterSteps registers issuer-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &issuerSteps{tc: tc}

	ctx.Step(`^"([^"]*)" is an authorized issuer$`, steps.isAuthorizedIssuer)
	ctx.Step(`^I authorize "([^"]*)" as an issuer$`, steps.authorizeIssuer)
	ctx.Step(`^I list the authorized issuers$`, steps.listIssuers)
	ctx.Step(`^I check whether "([^"]*)" is an authorized issuer$`, steps.checkAuthorized)

	ctx.Step(`^the issuer list should include "([^"]*)"$`, steps.issuerListShouldInclude)
}

type issuerSteps struct {
	tc TestContext
}

// isAuthorizedIssuer is a compound given: it authenticates the principal and
// registers it as an issuer, relying on grants being idempotent.
func (s *issuerSteps) isAuthorizedIssuer(ctx context.Context, name string) error {
	if err := s.tc.AuthenticateAs(name); err != nil {
		return err
	}
	if err := s.authorizeIssuer(ctx, name); err != nil {
		return err
	}
	if s.tc.StatusCode() != 200 {
		return fmt.Errorf("authorizing %q as an issuer answered %d", name, s.tc.StatusCode())
	}
	return nil
}

func (s *issuerSteps) authorizeIssuer(ctx context.Context, name string) error {
	return s.tc.POST("/issuers", map[string]interface{}{
		"issuer": s.tc.PrincipalFor(name),
	})
}

func (s *issuerSteps) listIssuers(ctx context.Context) error {
	return s.tc.GET("/issuers", nil)
}

func (s *issuerSteps) checkAuthorized(ctx context.Context, name string) error {
	return s.tc.GET("/issuers/"+s.tc.PrincipalFor(name), nil)
}

func (s *issuerSteps) issuerListShouldInclude(ctx context.Context, name string) error {
	value, err := s.tc.GetResponseField("issuers")
	if err != nil {
		return err
	}
	entries, ok := value.([]interface{})
	if !ok {
		return fmt.Errorf("field \"issuers\" is not a list: %v", value)
	}

	want := s.tc.PrincipalFor(name)
	for _, entry := range entries {
		grant, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if grant["issuer"] == want {
			return nil
		}
	}
	return fmt.Errorf("issuer %q not found among %d grants", want, len(entries))
}
