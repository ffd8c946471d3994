package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"eventcore/pkg/eventcore"
)

// SnapshotsStore is the SnapshotsProvider backed by the snapshots table.
type SnapshotsStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSnapshotsStore(db *sql.DB) *SnapshotsStore { return &SnapshotsStore{db: db} }

func (s *SnapshotsStore) Insert(ctx context.Context, name, stream, cursor string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, stream, cursor, state) VALUES (?, ?, ?, ?)
		ON CONFLICT (name, stream) DO UPDATE SET cursor = excluded.cursor, state = excluded.state
	`, name, stream, cursor, string(state))
	if err != nil {
		return &eventcore.EventCoreError{Op: "sqlitestore.snapshots.Insert", Err: err}
	}
	return nil
}

func (s *SnapshotsStore) GetByStream(ctx context.Context, name, stream string) (*eventcore.Snapshot, error) {
	var cursor, state string
	err := s.db.QueryRowContext(ctx, `
		SELECT cursor, state FROM snapshots WHERE name = ? AND stream = ?
	`, name, stream).Scan(&cursor, &state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &eventcore.EventCoreError{Op: "sqlitestore.snapshots.GetByStream", Err: err}
	}
	return &eventcore.Snapshot{Cursor: cursor, State: []byte(state)}, nil
}

func (s *SnapshotsStore) Remove(ctx context.Context, name, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ? AND stream = ?`, name, stream)
	if err != nil {
		return &eventcore.EventCoreError{Op: "sqlitestore.snapshots.Remove", Err: err}
	}
	return nil
}
