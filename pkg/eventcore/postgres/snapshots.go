package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventcore/pkg/eventcore"
)

// SnapshotsStore is the SnapshotsProvider backed by the snapshots table.
type SnapshotsStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotsStore(pool *pgxpool.Pool) *SnapshotsStore { return &SnapshotsStore{pool: pool} }

func (s *SnapshotsStore) Insert(ctx context.Context, name, stream, cursor string, state []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (name, stream, cursor, state) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, stream) DO UPDATE SET cursor = EXCLUDED.cursor, state = EXCLUDED.state
	`, name, stream, cursor, state)
	if err != nil {
		return &eventcore.EventCoreError{Op: "postgres.snapshots.Insert", Err: err}
	}
	return nil
}

func (s *SnapshotsStore) GetByStream(ctx context.Context, name, stream string) (*eventcore.Snapshot, error) {
	var snap eventcore.Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT cursor, state FROM snapshots WHERE name = $1 AND stream = $2
	`, name, stream).Scan(&snap.Cursor, &snap.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &eventcore.EventCoreError{Op: "postgres.snapshots.GetByStream", Err: err}
	}
	return &snap, nil
}

func (s *SnapshotsStore) Remove(ctx context.Context, name, stream string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE name = $1 AND stream = $2`, name, stream)
	if err != nil {
		return &eventcore.EventCoreError{Op: "postgres.snapshots.Remove", Err: err}
	}
	return nil
}
