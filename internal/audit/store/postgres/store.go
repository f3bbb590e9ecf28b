// Package postgres persists the audit event log.
//
// The audit_events table doubles as the outbox: Append joins the caller's
// transaction so the event commits with the transition it describes, and the
// relay drains rows where published_at is null in seq order. Sequence order
// therefore equals commit order without a second table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"attesto/internal/audit"
	id "attesto/pkg/domain"
	txcontext "attesto/pkg/platform/tx"
)

// Store implements audit.Store and audit.Outbox on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const eventColumns = `seq, id, category, timestamp, subject, action,
	   credential_id, credential_type, issuer, decision, reason,
	   request_id, actor_id, ip, user_agent`

// Append inserts an audit event, joining the ambient transaction when one is
// present. Duplicate event IDs are ignored so redelivery stays idempotent.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, subject, action,
			credential_id, credential_type, issuer, decision, reason,
			request_id, actor_id, ip, user_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Timestamp,
		event.Subject.String(),
		event.Action,
		event.CredentialID,
		event.CredentialType,
		event.Issuer.String(),
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ActorID,
		event.IP,
		event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events about a principal in commit order.
func (s *Store) ListBySubject(ctx context.Context, subject id.Principal) ([]audit.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		WHERE subject = $1
		ORDER BY seq
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListAll returns the whole log in commit order.
func (s *Store) ListAll(ctx context.Context) ([]audit.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		ORDER BY seq
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the last N events in commit order.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM (
			SELECT ` + eventColumns + `
			FROM audit_events
			ORDER BY seq DESC
			LIMIT $1
		) recent
		ORDER BY seq
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// NextBatch returns up to limit unpublished events in commit order.
func (s *Store) NextBatch(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox batch: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// MarkPublished stamps the given sequences as published.
func (s *Store) MarkPublished(ctx context.Context, seqs []uint64) error {
	if len(seqs) == 0 {
		return nil
	}

	ids := make([]int64, len(seqs))
	for i, seq := range seqs {
		ids[i] = int64(seq)
	}

	query := `UPDATE audit_events SET published_at = now() WHERE seq = ANY($1)`
	if _, err := s.db.ExecContext(ctx, query, ids); err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event    audit.Event
			category string
			subject  string
			issuer   string
		)

		err := rows.Scan(
			&event.Seq,
			&event.ID,
			&category,
			&event.Timestamp,
			&subject,
			&event.Action,
			&event.CredentialID,
			&event.CredentialType,
			&issuer,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
			&event.IP,
			&event.UserAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		event.Subject = id.Principal(subject)
		event.Issuer = id.Principal(issuer)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
