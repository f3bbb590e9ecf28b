package e2e

import (
	"github.com/cucumber/godog"

	"attesto/e2e/steps/common"
	"attesto/e2e/steps/credential"
	"attesto/e2e/steps/identity"
	"attesto/e2e/steps/issuer"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (reachability, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register identity-specific steps
	identity.RegisterSteps(ctx, tc)

	// Register issuer-specific steps
	issuer.RegisterSteps(ctx, tc)

	// Register credential-specific steps
	credential.RegisterSteps(ctx, tc)
}
