package identity

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	PUT(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	StatusCode() int
	PrincipalFor(name string) string
	AuthenticateAs(name string) error
}

// RegisterSteps registers identity-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &identitySteps{tc: tc}

	ctx.Step(`^"([^"]*)" is authenticated$`, steps.isAuthenticated)
	ctx.Step(`^"([^"]*)" has a registered identity$`, steps.hasRegisteredIdentity)
	ctx.Step(`^I register an identity with public key "([^"]*)"$`, steps.registerIdentity)
	ctx.Step(`^I register an identity with public key "([^"]*)" and service endpoint "([^"]*)"$`, steps.registerIdentityWithEndpoint)
	ctx.Step(`^I update my identity with public key "([^"]*)"$`, steps.updateIdentity)
	ctx.Step(`^I resolve the identity of "([^"]*)"$`, steps.resolveIdentity)
	ctx.Step(`^I check whether "([^"]*)" is active$`, steps.checkActive)
}

type identitySteps struct {
	tc TestContext
}

func (s *identitySteps) isAuthenticated(ctx context.Context, name string) error {
	return s.tc.AuthenticateAs(name)
}

// hasRegisteredIdentity is a compound given: it authenticates the principal
// and registers an identity for it, failing fast if the registry refuses.
func (s *identitySteps) hasRegisteredIdentity(ctx context.Context, name string) error {
	if err := s.tc.AuthenticateAs(name); err != nil {
		return err
	}
	if err := s.registerIdentity(ctx, "z6Mk-"+name+"-key-1"); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("registering an identity for %q answered %d", name, s.tc.StatusCode())
	}
	return nil
}

func (s *identitySteps) registerIdentity(ctx context.Context, publicKey string) error {
	return s.tc.POST("/identities", map[string]interface{}{
		"public_key": publicKey,
	})
}

func (s *identitySteps) registerIdentityWithEndpoint(ctx context.Context, publicKey, endpoint string) error {
	return s.tc.POST("/identities", map[string]interface{}{
		"public_key":       publicKey,
		"service_endpoint": endpoint,
	})
}

func (s *identitySteps) updateIdentity(ctx context.Context, publicKey string) error {
	return s.tc.PUT("/identities", map[string]interface{}{
		"public_key": publicKey,
	})
}

func (s *identitySteps) resolveIdentity(ctx context.Context, name string) error {
	return s.tc.GET("/identities/"+s.tc.PrincipalFor(name), nil)
}

func (s *identitySteps) checkActive(ctx context.Context, name string) error {
	return s.tc.GET("/identities/"+s.tc.PrincipalFor(name)+"/active", nil)
}
