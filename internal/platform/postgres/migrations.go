package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate applies the registry schema. Every statement is idempotent, so the
// server runs it unconditionally at startup and restarts are safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// One document per principal. Active is recorded but never cleared;
		// the registry has no deactivation path.
		`CREATE TABLE IF NOT EXISTS identities (
			owner            TEXT PRIMARY KEY,
			public_key       TEXT NOT NULL,
			service_endpoint TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			active           BOOLEAN NOT NULL
		)`,

		// Issuer authorization is additive; seq preserves grant order for
		// listings.
		`CREATE TABLE IF NOT EXISTS issuer_grants (
			seq           BIGSERIAL,
			issuer        TEXT PRIMARY KEY,
			authorized_by TEXT NOT NULL,
			granted_at    TIMESTAMPTZ NOT NULL
		)`,

		// The id is the content-derived fingerprint; sequence is the
		// per-issuer issuance counter baked into it.
		`CREATE TABLE IF NOT EXISTS credentials (
			id              TEXT PRIMARY KEY,
			credential_type TEXT NOT NULL,
			issuer          TEXT NOT NULL,
			subject         TEXT NOT NULL,
			credential_data TEXT NOT NULL,
			issued_at       TIMESTAMPTZ NOT NULL,
			expires_at      TIMESTAMPTZ NOT NULL,
			revoked         BOOLEAN NOT NULL DEFAULT FALSE,
			sequence        BIGINT NOT NULL
		)`,

		// Append-only per-subject issuance index. Position stamps insertion
		// order so listings replay issuance order.
		`CREATE TABLE IF NOT EXISTS subject_credentials (
			position      BIGSERIAL PRIMARY KEY,
			subject       TEXT NOT NULL,
			credential_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subject_credentials_subject
			ON subject_credentials (subject, position)`,

		// Sequence allocation rides the issuance transaction; a rolled-back
		// issuance rolls the counter back with it.
		`CREATE TABLE IF NOT EXISTS issuer_sequences (
			issuer   TEXT PRIMARY KEY,
			next_seq BIGINT NOT NULL
		)`,

		// Doubles as the outbox: published_at NULL marks rows the relay has
		// not yet delivered to the broker.
		`CREATE TABLE IF NOT EXISTS audit_events (
			seq             BIGSERIAL PRIMARY KEY,
			id              TEXT NOT NULL UNIQUE,
			category        TEXT NOT NULL,
			timestamp       TIMESTAMPTZ NOT NULL,
			subject         TEXT NOT NULL,
			action          TEXT NOT NULL,
			credential_id   TEXT NOT NULL DEFAULT '',
			credential_type TEXT NOT NULL DEFAULT '',
			issuer          TEXT NOT NULL DEFAULT '',
			decision        TEXT NOT NULL DEFAULT '',
			reason          TEXT NOT NULL DEFAULT '',
			request_id      TEXT NOT NULL DEFAULT '',
			actor_id        TEXT NOT NULL DEFAULT '',
			ip              TEXT NOT NULL DEFAULT '',
			user_agent      TEXT NOT NULL DEFAULT '',
			published_at    TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_subject
			ON audit_events (subject, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_unpublished
			ON audit_events (seq)
			WHERE published_at IS NULL`,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
