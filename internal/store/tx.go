package store

import (
	"context"
	"database/sql"
	"fmt"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is an open write transaction. It exposes every read of Store plus the
// mutations; all of them observe the transaction's own writes.
type Tx struct {
	reader
	tx *sql.Tx
}

// WithTx runs fn inside a write transaction and commits when fn returns nil.
//
// Once begun the transaction ignores cancellation of ctx: it either commits
// or rolls back because fn failed. The whole attempt, fn included, is
// repeated when SQLite reports the database busy, so fn must only touch
// state through tx.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	ctx = ensureContext(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	return retryOnBusy(ctx, func() error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		tx := &Tx{reader: reader{q: sqlTx}, tx: sqlTx}
		if err := fn(tx); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			_ = sqlTx.Rollback()
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// reader holds the read queries shared by Store and Tx.
type reader struct {
	q querier
}
