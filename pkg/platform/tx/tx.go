// Package tx carries a SQL transaction through context and provides the
// runner that opens one around a state-machine commit. Stores write through
// the transaction when one is present, so the audit append rides the same
// transaction as the state write on the SQL backend.
package tx

import (
	"context"
	"database/sql"
	"time"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context so every store touched by one
// transition writes through the same transaction.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes fn atomically. Services wrap each commit (state write plus
// audit append) in RunInTx; which atomicity that buys depends on the backend
// behind the runner.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Passthrough runs fn without a transaction. It backs the in-memory wiring,
// where atomicity comes from the per-letter lock and the services' unwind of
// uncommitted writes.
type Passthrough struct{}

func (Passthrough) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

const defaultTxTimeout = 5 * time.Second

// SQL runs fn inside a database transaction injected into the context. Any
// error from fn rolls the transaction back, so a failed audit append takes
// the state write down with it.
type SQL struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db, timeout: defaultTxTimeout}
}

func (t *SQL) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	dbTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	if err := fn(WithTx(ctx, dbTx)); err != nil {
		return err
	}
	return dbTx.Commit()
}
