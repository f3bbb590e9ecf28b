package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"attesto/internal/identity/models"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
	txcontext "attesto/pkg/platform/tx"
)

// PostgresStore persists identity documents in the identities table.
// Every method joins the caller's transaction when the context carries one,
// so document writes commit atomically with the audit event for the same
// operation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const identityColumns = "owner, public_key, service_endpoint, created_at, updated_at, active"

func (s *PostgresStore) Create(ctx context.Context, doc *models.IdentityDocument) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := exec.ExecContext(ctx, query,
		doc.Owner.String(), doc.PublicKey, doc.ServiceEndpoint,
		doc.CreatedAt, doc.UpdatedAt, doc.Active,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByOwner(ctx context.Context, owner id.Principal) (*models.IdentityDocument, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `SELECT ` + identityColumns + ` FROM identities WHERE owner = $1`
	doc, err := scanIdentity(exec.QueryRowContext(ctx, query, owner.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return doc, nil
}

// Execute loads the owner's row FOR UPDATE, applies validate and mutate, and
// writes the result back. Run inside a transaction so the row lock spans the
// whole callback.
func (s *PostgresStore) Execute(
	ctx context.Context,
	owner id.Principal,
	validate func(*models.IdentityDocument) error,
	mutate func(*models.IdentityDocument),
) (*models.IdentityDocument, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)

	query := `SELECT ` + identityColumns + ` FROM identities WHERE owner = $1 FOR UPDATE`
	doc, err := scanIdentity(exec.QueryRowContext(ctx, query, owner.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock identity: %w", err)
	}

	if err := validate(doc); err != nil {
		return nil, err
	}
	mutate(doc)

	update := `
		UPDATE identities
		SET public_key = $2, service_endpoint = $3, updated_at = $4, active = $5
		WHERE owner = $1
	`
	if _, err := exec.ExecContext(ctx, update,
		doc.Owner.String(), doc.PublicKey, doc.ServiceEndpoint, doc.UpdatedAt, doc.Active,
	); err != nil {
		return nil, fmt.Errorf("update identity: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	var count int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.IdentityDocument, error) {
	var doc models.IdentityDocument
	var owner string
	if err := row.Scan(&owner, &doc.PublicKey, &doc.ServiceEndpoint, &doc.CreatedAt, &doc.UpdatedAt, &doc.Active); err != nil {
		return nil, err
	}
	doc.Owner = id.Principal(owner)
	return &doc, nil
}
