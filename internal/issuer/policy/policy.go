// Package policy decides who may grant issuer authorizations.
//
// The registry itself has no governance model; deployments pick one of three
// gates via configuration. Open admits any authenticated principal, Allowlist
// restricts granting to a fixed set of administrator principals, and
// AdminToken requires callers to present a shared secret whose bcrypt hash is
// the only thing the server holds.
package policy

import (
	"context"
	"fmt"
	"log/slog"

	"attesto/internal/issuer/secrets"
	id "attesto/pkg/domain"
	dErrors "attesto/pkg/domain-errors"
)

// Mode names accepted by New.
const (
	ModeOpen       = "open"
	ModeAllowlist  = "allowlist"
	ModeAdminToken = "admin_token"
)

// Authorizer decides whether a caller may authorize new issuers.
// adminToken is the shared secret presented with the request, empty unless
// the deployment runs in admin_token mode.
type Authorizer interface {
	Authorize(ctx context.Context, caller id.Principal, adminToken string) error
}

// New builds the Authorizer selected by mode.
func New(mode string, allowlist []string, adminTokenHash string, logger *slog.Logger) (Authorizer, error) {
	switch mode {
	case ModeOpen, "":
		return NewOpen(logger), nil
	case ModeAllowlist:
		return NewAllowlist(allowlist)
	case ModeAdminToken:
		return NewAdminToken(adminTokenHash)
	default:
		return nil, fmt.Errorf("unknown issuer policy mode %q", mode)
	}
}

// Open authorizes every authenticated caller. Suitable for development and
// closed deployments where the token issuer already gates who can call.
type Open struct{}

// NewOpen constructs the open policy, warning loudly since any principal can
// mint issuers under it.
func NewOpen(logger *slog.Logger) *Open {
	if logger != nil {
		logger.Warn("issuer policy is open: any authenticated principal can authorize issuers")
	}
	return &Open{}
}

func (*Open) Authorize(ctx context.Context, caller id.Principal, adminToken string) error {
	return nil
}

// Allowlist authorizes only a fixed set of administrator principals.
type Allowlist struct {
	allowed map[id.Principal]struct{}
}

// NewAllowlist constructs an allowlist policy from configured principals.
func NewAllowlist(principals []string) (*Allowlist, error) {
	if len(principals) == 0 {
		return nil, fmt.Errorf("allowlist policy requires at least one principal")
	}
	allowed := make(map[id.Principal]struct{}, len(principals))
	for _, raw := range principals {
		p, err := id.ParsePrincipal(raw)
		if err != nil {
			return nil, fmt.Errorf("allowlist entry %q: %w", raw, err)
		}
		allowed[p] = struct{}{}
	}
	return &Allowlist{allowed: allowed}, nil
}

func (a *Allowlist) Authorize(ctx context.Context, caller id.Principal, adminToken string) error {
	if _, ok := a.allowed[caller]; !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not permitted to authorize issuers")
	}
	return nil
}

// AdminToken authorizes callers presenting a shared admin secret.
// Only the bcrypt hash is held server-side.
type AdminToken struct {
	hash string
}

// NewAdminToken constructs the admin token policy.
func NewAdminToken(hash string) (*AdminToken, error) {
	if hash == "" {
		return nil, fmt.Errorf("admin_token policy requires a configured token hash")
	}
	return &AdminToken{hash: hash}, nil
}

func (p *AdminToken) Authorize(ctx context.Context, caller id.Principal, adminToken string) error {
	if adminToken == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "admin token required")
	}
	if err := secrets.Verify(adminToken, p.hash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid admin token")
		}
		return err
	}
	return nil
}
