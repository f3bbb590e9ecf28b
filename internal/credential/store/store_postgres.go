package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"attesto/internal/credential/models"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
	txcontext "attesto/pkg/platform/tx"
)

// PostgresStore persists credential records across three tables: the
// credentials table keyed by fingerprint id, the append-only
// subject_credentials index ordered by a BIGSERIAL position, and the
// issuer_sequences counters. Every method joins the caller's transaction
// when the context carries one, so a record, its index entry, its sequence
// bump and the audit event for the operation commit atomically.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const credentialColumns = "id, credential_type, issuer, subject, credential_data, issued_at, expires_at, revoked, sequence"

// Issue allocates the issuer's next sequence number, hands it to build, and
// inserts the built record together with its subject index entry. Run inside
// a transaction: the sequence bump rolls back with everything else when a
// later step fails, so failed issuances leave no gap.
func (s *PostgresStore) Issue(
	ctx context.Context,
	issuer id.Principal,
	build func(sequence uint64) (*models.CredentialRecord, error),
) (*models.CredentialRecord, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)

	allocate := `
		INSERT INTO issuer_sequences (issuer, next_seq)
		VALUES ($1, 1)
		ON CONFLICT (issuer) DO UPDATE SET next_seq = issuer_sequences.next_seq + 1
		RETURNING next_seq
	`
	var sequence uint64
	if err := exec.QueryRowContext(ctx, allocate, issuer.String()).Scan(&sequence); err != nil {
		return nil, fmt.Errorf("allocate issuance sequence: %w", err)
	}

	rec, err := build(sequence)
	if err != nil {
		return nil, err
	}

	insert := `
		INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			credential_type = EXCLUDED.credential_type,
			issuer = EXCLUDED.issuer,
			subject = EXCLUDED.subject,
			credential_data = EXCLUDED.credential_data,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			revoked = EXCLUDED.revoked,
			sequence = EXCLUDED.sequence
	`
	if _, err := exec.ExecContext(ctx, insert,
		rec.ID.String(), rec.Type, rec.Issuer.String(), rec.Subject.String(),
		rec.Data, rec.IssuedAt, rec.ExpiresAt, rec.Revoked, rec.Sequence,
	); err != nil {
		return nil, fmt.Errorf("insert credential: %w", err)
	}

	index := `INSERT INTO subject_credentials (subject, credential_id) VALUES ($1, $2)`
	if _, err := exec.ExecContext(ctx, index, rec.Subject.String(), rec.ID.String()); err != nil {
		return nil, fmt.Errorf("index credential for subject: %w", err)
	}

	return rec, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, credID id.CredentialID) (*models.CredentialRecord, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	rec, err := scanCredential(exec.QueryRowContext(ctx, query, credID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return rec, nil
}

// Execute loads the record FOR UPDATE, applies validate and mutate, and
// writes the revocation state back. Run inside a transaction so the row lock
// spans the whole callback.
func (s *PostgresStore) Execute(
	ctx context.Context,
	credID id.CredentialID,
	validate func(*models.CredentialRecord) error,
	mutate func(*models.CredentialRecord),
) (*models.CredentialRecord, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)

	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1 FOR UPDATE`
	rec, err := scanCredential(exec.QueryRowContext(ctx, query, credID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock credential: %w", err)
	}

	if err := validate(rec); err != nil {
		return nil, err
	}
	mutate(rec)

	update := `UPDATE credentials SET revoked = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, update, rec.ID.String(), rec.Revoked); err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject id.Principal) ([]id.CredentialID, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `
		SELECT credential_id FROM subject_credentials
		WHERE subject = $1
		ORDER BY position
	`
	rows, err := exec.QueryContext(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("list subject credentials: %w", err)
	}
	defer rows.Close()

	index := make([]id.CredentialID, 0)
	for rows.Next() {
		var credID string
		if err := rows.Scan(&credID); err != nil {
			return nil, fmt.Errorf("scan subject credential: %w", err)
		}
		index = append(index, id.CredentialID(credID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subject credentials: %w", err)
	}
	return index, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	var count int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.CredentialRecord, error) {
	var rec models.CredentialRecord
	var credID, issuer, subject string
	if err := row.Scan(
		&credID, &rec.Type, &issuer, &subject,
		&rec.Data, &rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked, &rec.Sequence,
	); err != nil {
		return nil, err
	}
	rec.ID = id.CredentialID(credID)
	rec.Issuer = id.Principal(issuer)
	rec.Subject = id.Principal(subject)
	return &rec, nil
}
