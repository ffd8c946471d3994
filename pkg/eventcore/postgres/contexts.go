package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventcore/pkg/eventcore"
)

// ContextsStore is the ContextsProvider backed by the contexts table.
// Handle runs its batch of ops inside one transaction holding a
// pg_advisory_xact_lock keyed on the stream, so concurrent context
// writes for the same stream serialize even across processes, not
// just within one.
type ContextsStore struct {
	pool *pgxpool.Pool
}

func NewContextsStore(pool *pgxpool.Pool) *ContextsStore { return &ContextsStore{pool: pool} }

func (c *ContextsStore) Insert(ctx context.Context, key, stream string) error {
	return c.Handle(ctx, []eventcore.ContextOp{{Op: eventcore.ContextInsert, Key: key, Stream: stream}})
}

func (c *ContextsStore) Remove(ctx context.Context, key, stream string) error {
	return c.Handle(ctx, []eventcore.ContextOp{{Op: eventcore.ContextRemove, Key: key, Stream: stream}})
}

func (c *ContextsStore) GetByKey(ctx context.Context, key string) ([]eventcore.ContextRow, error) {
	rows, err := c.pool.Query(ctx, `SELECT key, stream FROM contexts WHERE key = $1 ORDER BY stream`, key)
	if err != nil {
		return nil, &eventcore.EventCoreError{Op: "postgres.GetByKey", Err: err}
	}
	defer rows.Close()

	var out []eventcore.ContextRow
	for rows.Next() {
		var row eventcore.ContextRow
		if err := rows.Scan(&row.Key, &row.Stream); err != nil {
			return nil, &eventcore.EventCoreError{Op: "postgres.GetByKey", Err: err}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &eventcore.EventCoreError{Op: "postgres.GetByKey", Err: err}
	}
	return out, nil
}

func (c *ContextsStore) Handle(ctx context.Context, ops []eventcore.ContextOp) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &eventcore.EventCoreError{Op: "postgres.Handle", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, op := range ops {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, op.Stream); err != nil {
			return &eventcore.EventCoreError{Op: "postgres.Handle", Err: err}
		}

		switch op.Op {
		case eventcore.ContextInsert:
			if _, err := tx.Exec(ctx, `
				INSERT INTO contexts (key, stream) VALUES ($1, $2)
				ON CONFLICT (key, stream) DO NOTHING
			`, op.Key, op.Stream); err != nil {
				return &eventcore.EventCoreError{Op: "postgres.Handle", Err: err}
			}
		case eventcore.ContextRemove:
			if _, err := tx.Exec(ctx, `DELETE FROM contexts WHERE key = $1 AND stream = $2`, op.Key, op.Stream); err != nil {
				return &eventcore.EventCoreError{Op: "postgres.Handle", Err: err}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &eventcore.EventCoreError{Op: "postgres.Handle", Err: err}
	}
	return nil
}
