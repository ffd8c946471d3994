// Package postgres is the relational eventcore backend: pgx/v5 over a
// pgxpool.Pool (pool-held-by-struct shape, pgx.Batch insert pattern,
// Op-wrapped error style).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventcore/pkg/eventcore"
)

// EventsStore is the EventsProvider backed by the events table.
type EventsStore struct {
	pool *pgxpool.Pool
}

func NewEventsStore(pool *pgxpool.Pool) *EventsStore { return &EventsStore{pool: pool} }

func (s *EventsStore) Insert(ctx context.Context, rec eventcore.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (id, stream, type, data, meta, created, recorded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.Stream, rec.Type, rec.Data, rec.Meta, rec.Created, rec.Recorded)
	if err != nil {
		if isUniqueViolation(err) {
			return &eventcore.DuplicateEventError{
				EventInsertionError: eventcore.EventInsertionError{
					EventCoreError: eventcore.EventCoreError{Op: "postgres.Insert", Err: err},
					Stream:         rec.Stream,
				},
				ID: rec.ID,
			}
		}
		return &eventcore.EventInsertionError{
			EventCoreError: eventcore.EventCoreError{Op: "postgres.Insert", Err: err},
			Stream:         rec.Stream,
		}
	}
	return nil
}

func (s *EventsStore) InsertMany(ctx context.Context, recs []eventcore.Record, batchSize int) error {
	if len(recs) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(recs)
	}

	for start := 0; start < len(recs); start += batchSize {
		end := min(start+batchSize, len(recs))
		if err := s.insertBatch(ctx, recs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *EventsStore) insertBatch(ctx context.Context, recs []eventcore.Record) error {
	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(`
			INSERT INTO events (id, stream, type, data, meta, created, recorded)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rec.ID, rec.Stream, rec.Type, rec.Data, rec.Meta, rec.Created, rec.Recorded)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i, rec := range recs {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err) {
				return &eventcore.DuplicateEventError{
					EventInsertionError: eventcore.EventInsertionError{
						EventCoreError: eventcore.EventCoreError{Op: "postgres.InsertMany", Err: err},
						Stream:         rec.Stream,
					},
					ID: rec.ID,
				}
			}
			return &eventcore.EventInsertionError{
				EventCoreError: eventcore.EventCoreError{Op: "postgres.InsertMany", Err: fmt.Errorf("event %d: %w", i, err)},
				Stream:         rec.Stream,
			}
		}
	}
	return nil
}

func (s *EventsStore) Get(ctx context.Context, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	return s.query(ctx, "", nil, opts)
}

func (s *EventsStore) GetByStream(ctx context.Context, stream string, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	return s.query(ctx, "stream = $%d", []any{stream}, opts)
}

func (s *EventsStore) GetByStreams(ctx context.Context, streams []string, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	return s.query(ctx, "stream = ANY($%d::text[])", []any{streams}, opts)
}

// query builds and executes a SELECT against events. extraCond, if
// non-empty, is a single placeholder-templated condition ("col = $%d")
// ANDed with the type and cursor conditions, each added only when the
// matching option is set.
func (s *EventsStore) query(ctx context.Context, extraCond string, extraArgs []any, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)
	argIdx := 1

	if extraCond != "" {
		conds = append(conds, fmt.Sprintf(extraCond, argIdx))
		args = append(args, extraArgs...)
		argIdx++
	}
	if len(opts.Filter.Types) > 0 {
		conds = append(conds, fmt.Sprintf("type = ANY($%d::text[])", argIdx))
		args = append(args, opts.Filter.Types)
		argIdx++
	}
	if opts.Cursor != "" {
		conds = append(conds, fmt.Sprintf("created > $%d", argIdx))
		args = append(args, opts.Cursor)
		argIdx++
	}

	query := "SELECT id, stream, type, data, meta, created, recorded FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if opts.Direction == eventcore.Desc {
		query += " ORDER BY created DESC"
	} else {
		query += " ORDER BY created ASC"
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &eventcore.EventCoreError{Op: "postgres.Get", Err: err}
	}
	defer rows.Close()

	var out []eventcore.Record
	for rows.Next() {
		var rec eventcore.Record
		if err := rows.Scan(&rec.ID, &rec.Stream, &rec.Type, &rec.Data, &rec.Meta, &rec.Created, &rec.Recorded); err != nil {
			return nil, &eventcore.EventCoreError{Op: "postgres.Get", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &eventcore.EventCoreError{Op: "postgres.Get", Err: err}
	}
	return out, nil
}

func (s *EventsStore) GetByID(ctx context.Context, id string) (*eventcore.Record, error) {
	var rec eventcore.Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, stream, type, data, meta, created, recorded FROM events WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Stream, &rec.Type, &rec.Data, &rec.Meta, &rec.Created, &rec.Recorded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &eventcore.EventCoreError{Op: "postgres.GetByID", Err: err}
	}
	return &rec, nil
}

func (s *EventsStore) CheckOutdated(ctx context.Context, rec eventcore.Record) (bool, error) {
	var outdated bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE stream = $1 AND type = $2 AND id <> $3 AND created > $4
		)
	`, rec.Stream, rec.Type, rec.ID, rec.Created).Scan(&outdated)
	if err != nil {
		return false, &eventcore.EventCoreError{Op: "postgres.CheckOutdated", Err: err}
	}
	return outdated, nil
}

func (s *EventsStore) Status(ctx context.Context, rec eventcore.Record) (eventcore.EventStatus, error) {
	var status eventcore.EventStatus
	err := s.pool.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM events WHERE id = $1),
			EXISTS (SELECT 1 FROM events WHERE stream = $2 AND type = $3 AND id <> $1 AND created > $4)
	`, rec.ID, rec.Stream, rec.Type, rec.Created).Scan(&status.Exists, &status.Outdated)
	if err != nil {
		return eventcore.EventStatus{}, &eventcore.EventCoreError{Op: "postgres.Status", Err: err}
	}
	return status, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
