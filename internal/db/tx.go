package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx corre op dentro de uma transação; se op ou o commit falharem o
// rollback diferido desfaz tudo.
func WithTx(ctx context.Context, pool *pgxpool.Pool, op func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := op(ctx, tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
