// Package db provides the shared pgx access surface used by every store in
// the orchestrator. There is no sqlc generation step here: queries are
// hand-written directly against the pgx.Tx / pgxpool.Pool DBTX interface.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx, and *pgxpool.Conn. Stores take
// a DBTX instead of a concrete pool type so they can run inside a caller's
// transaction when needed.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx runs fn inside a transaction on the given beginner (a
// *pgxpool.Pool), committing on success and rolling back on error or panic.
func WithTx(ctx context.Context, beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}, fn func(tx pgx.Tx) error) (err error) {
	tx, err := beginner.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	return fn(tx)
}
