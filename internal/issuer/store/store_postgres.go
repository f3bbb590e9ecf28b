package store

import (
	"context"
	"database/sql"
	"fmt"

	"attesto/internal/issuer/models"
	id "attesto/pkg/domain"
	txcontext "attesto/pkg/platform/tx"
)

// PostgresStore persists issuer grants in the issuer_grants table.
// Methods join the caller's transaction when the context carries one, so a
// grant commits atomically with its audit event.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const grantColumns = "issuer, authorized_by, granted_at"

// Grant inserts the authorization unless the issuer already holds one.
// ON CONFLICT DO NOTHING keeps concurrent first grants race-free; the
// follow-up read returns whichever grant won.
func (s *PostgresStore) Grant(ctx context.Context, grant *models.IssuerGrant) (*models.IssuerGrant, bool, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	insert := `
		INSERT INTO issuer_grants (` + grantColumns + `)
		VALUES ($1, $2, $3)
		ON CONFLICT (issuer) DO NOTHING
	`
	res, err := exec.ExecContext(ctx, insert,
		grant.Issuer.String(), grant.AuthorizedBy.String(), grant.GrantedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("record issuer grant: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("record issuer grant: %w", err)
	}

	query := `SELECT ` + grantColumns + ` FROM issuer_grants WHERE issuer = $1`
	stored, err := scanGrant(exec.QueryRowContext(ctx, query, grant.Issuer.String()))
	if err != nil {
		return nil, false, fmt.Errorf("load issuer grant: %w", err)
	}
	return stored, inserted == 1, nil
}

func (s *PostgresStore) IsAuthorized(ctx context.Context, issuer id.Principal) (bool, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	var authorized bool
	query := `SELECT EXISTS (SELECT 1 FROM issuer_grants WHERE issuer = $1)`
	if err := exec.QueryRowContext(ctx, query, issuer.String()).Scan(&authorized); err != nil {
		return false, fmt.Errorf("check issuer grant: %w", err)
	}
	return authorized, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.IssuerGrant, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `SELECT ` + grantColumns + ` FROM issuer_grants ORDER BY seq`
	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list issuer grants: %w", err)
	}
	defer rows.Close()

	var grants []*models.IssuerGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issuer grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issuer grants: %w", err)
	}
	return grants, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	var count int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM issuer_grants`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count issuer grants: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*models.IssuerGrant, error) {
	var grant models.IssuerGrant
	var issuer, authorizedBy string
	if err := row.Scan(&issuer, &authorizedBy, &grant.GrantedAt); err != nil {
		return nil, err
	}
	grant.Issuer = id.Principal(issuer)
	grant.AuthorizedBy = id.Principal(authorizedBy)
	return &grant, nil
}
