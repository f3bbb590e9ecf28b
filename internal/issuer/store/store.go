// Package store provides issuer grant persistence. The in-memory
// implementation backs tests and single-node deployments, PostgreSQL backs
// everything else, and an optional Redis layer caches authorization checks
// for the issuance hot path.
package store

import (
	"context"

	"attesto/internal/issuer/models"
	id "attesto/pkg/domain"
)

// Store is the persistent grant store contract shared by the memory and
// postgres implementations and by the caching decorator.
type Store interface {
	// Grant records an authorization. The first grant for an issuer wins;
	// granting again returns the stored record with created == false.
	Grant(ctx context.Context, grant *models.IssuerGrant) (stored *models.IssuerGrant, created bool, err error)

	// IsAuthorized reports whether the issuer holds a grant.
	IsAuthorized(ctx context.Context, issuer id.Principal) (bool, error)

	// List returns all grants in grant order.
	List(ctx context.Context) ([]*models.IssuerGrant, error)

	// Count returns the number of authorized issuers.
	Count(ctx context.Context) (int, error)
}
