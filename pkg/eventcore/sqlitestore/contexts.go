package sqlitestore

import (
	"context"
	"database/sql"
	"sync"

	"eventcore/pkg/eventcore"
)

// ContextsStore is the ContextsProvider. Writes share a mutex with no
// other store, since SQLite only tolerates one writer at a time
// regardless of table.
type ContextsStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewContextsStore(db *sql.DB) *ContextsStore { return &ContextsStore{db: db} }

func (c *ContextsStore) Insert(ctx context.Context, key, stream string) error {
	return c.Handle(ctx, []eventcore.ContextOp{{Op: eventcore.ContextInsert, Key: key, Stream: stream}})
}

func (c *ContextsStore) Remove(ctx context.Context, key, stream string) error {
	return c.Handle(ctx, []eventcore.ContextOp{{Op: eventcore.ContextRemove, Key: key, Stream: stream}})
}

func (c *ContextsStore) GetByKey(ctx context.Context, key string) ([]eventcore.ContextRow, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, stream FROM contexts WHERE key = ? ORDER BY stream`, key)
	if err != nil {
		return nil, &eventcore.EventCoreError{Op: "sqlitestore.GetByKey", Err: err}
	}
	defer rows.Close()

	var out []eventcore.ContextRow
	for rows.Next() {
		var row eventcore.ContextRow
		if err := rows.Scan(&row.Key, &row.Stream); err != nil {
			return nil, &eventcore.EventCoreError{Op: "sqlitestore.GetByKey", Err: err}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &eventcore.EventCoreError{Op: "sqlitestore.GetByKey", Err: err}
	}
	return out, nil
}

func (c *ContextsStore) Handle(ctx context.Context, ops []eventcore.ContextOp) error {
	if len(ops) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &eventcore.EventCoreError{Op: "sqlitestore.Handle", Err: err}
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Op {
		case eventcore.ContextInsert:
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO contexts (key, stream) VALUES (?, ?)
			`, op.Key, op.Stream); err != nil {
				return &eventcore.EventCoreError{Op: "sqlitestore.Handle", Err: err}
			}
		case eventcore.ContextRemove:
			if _, err := tx.ExecContext(ctx, `DELETE FROM contexts WHERE key = ? AND stream = ?`, op.Key, op.Stream); err != nil {
				return &eventcore.EventCoreError{Op: "sqlitestore.Handle", Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &eventcore.EventCoreError{Op: "sqlitestore.Handle", Err: err}
	}
	return nil
}
