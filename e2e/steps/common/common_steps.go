package common

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	ServerAvailable() bool
	GET(path string, headers map[string]string) error
	StatusCode() int
	GetResponseField(field string) (interface{}, error)
	ResponseContains(field string) bool
	PrincipalFor(name string) string
	ClearAuthentication()
}

// RegisterSteps registers generic request and assertion step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	// Request steps
	ctx.Step(`^the registry is reachable$`, steps.registryIsReachable)
	ctx.Step(`^I am not authenticated$`, steps.notAuthenticated)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.responseFieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.responseFieldShouldBeBool)
	ctx.Step(`^the response field "([^"]*)" should be the principal "([^"]*)"$`, steps.responseFieldShouldBePrincipal)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) registryIsReachable(ctx context.Context) error {
	if !s.tc.ServerAvailable() {
		return fmt.Errorf("registry did not answer on /healthz")
	}
	return nil
}

func (s *commonSteps) notAuthenticated(ctx context.Context) error {
	s.tc.ClearAuthentication()
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, expected int) error {
	if s.tc.StatusCode() != expected {
		return fmt.Errorf("expected status %d, got %d", expected, s.tc.StatusCode())
	}
	return nil
}

func (s *commonSteps) responseShouldContain(ctx context.Context, field string) error {
	if !s.tc.ResponseContains(field) {
		return fmt.Errorf("response has no field %q", field)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBe(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(value); got != expected {
		return fmt.Errorf("expected field %q to be %q, got %q", field, expected, got)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBeBool(ctx context.Context, field, expected string) error {
	want, err := strconv.ParseBool(expected)
	if err != nil {
		return err
	}
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	got, ok := value.(bool)
	if !ok {
		return fmt.Errorf("field %q is not a boolean: %v", field, value)
	}
	if got != want {
		return fmt.Errorf("expected field %q to be %v, got %v", field, want, got)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBePrincipal(ctx context.Context, field, name string) error {
	return s.responseFieldShouldBe(ctx, field, s.tc.PrincipalFor(name))
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, expected string) error {
	return s.responseFieldShouldBe(ctx, "error", expected)
}
