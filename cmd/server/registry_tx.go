package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "attesto/pkg/domain-errors"
	txcontext "attesto/pkg/platform/tx"
)

const defaultRegistryTxTimeout = 5 * time.Second

// registryPostgresTx runs a service callback inside one database
// transaction. The transaction rides the context, so every store the
// callback touches joins it: a credential issuance commits the record,
// the sequence bump, the subject index entry and the audit event
// together or not at all. The identity, issuer and credential services
// share one implementation because their transactional contracts have
// the same shape.
type registryPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newRegistryPostgresTx(db *sql.DB, timeout time.Duration) *registryPostgresTx {
	return &registryPostgresTx{db: db, timeout: timeout}
}

func (t *registryPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRegistryTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	return tx.Commit()
}
