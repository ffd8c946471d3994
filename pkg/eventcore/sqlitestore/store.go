// Package sqlitestore is the embedded eventcore backend: database/sql
// over mattn/go-sqlite3, creating its schema on construction and
// serializing writes with a mutex to avoid SQLITE_BUSY under
// concurrent access from a single-writer connection.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"eventcore/pkg/eventcore"
)

// Open opens (creating if necessary) a SQLite database file at path and
// applies the eventcore schema. ":memory:" is accepted for ephemeral use.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Open: %w", err)
	}
	db.SetMaxOpenConns(1) // one SQLite writer connection; mirrors the single-file-handle pattern
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id       TEXT PRIMARY KEY,
			stream   TEXT NOT NULL,
			type     TEXT NOT NULL,
			data     TEXT NOT NULL,
			meta     TEXT,
			created  TEXT NOT NULL,
			recorded TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_stream_created ON events(stream, created);
		CREATE INDEX IF NOT EXISTS idx_events_type_created ON events(type, created);

		CREATE TABLE IF NOT EXISTS contexts (
			key    TEXT NOT NULL,
			stream TEXT NOT NULL,
			PRIMARY KEY (key, stream)
		);
		CREATE INDEX IF NOT EXISTS idx_contexts_stream ON contexts(stream);

		CREATE TABLE IF NOT EXISTS snapshots (
			name   TEXT NOT NULL,
			stream TEXT NOT NULL,
			cursor TEXT NOT NULL,
			state  TEXT NOT NULL,
			PRIMARY KEY (name, stream)
		);
	`)
	if err != nil {
		return fmt.Errorf("sqlitestore.createTables: %w", err)
	}
	return nil
}

// EventsStore is the EventsProvider. A single mutex serializes every
// write, since SQLITE_BUSY otherwise surfaces under any concurrency.
type EventsStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewEventsStore(db *sql.DB) *EventsStore { return &EventsStore{db: db} }

func (s *EventsStore) Insert(ctx context.Context, rec eventcore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, stream, type, data, meta, created, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Stream, rec.Type, string(rec.Data), metaString(rec.Meta), rec.Created, rec.Recorded)
	if err != nil {
		if isUniqueViolation(err) {
			return &eventcore.DuplicateEventError{
				EventInsertionError: eventcore.EventInsertionError{
					EventCoreError: eventcore.EventCoreError{Op: "sqlitestore.Insert", Err: err},
					Stream:         rec.Stream,
				},
				ID: rec.ID,
			}
		}
		return &eventcore.EventInsertionError{
			EventCoreError: eventcore.EventCoreError{Op: "sqlitestore.Insert", Err: err},
			Stream:         rec.Stream,
		}
	}
	return nil
}

func (s *EventsStore) InsertMany(ctx context.Context, recs []eventcore.Record, _ int) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &eventcore.EventInsertionError{EventCoreError: eventcore.EventCoreError{Op: "sqlitestore.InsertMany", Err: err}}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, stream, type, data, meta, created, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &eventcore.EventInsertionError{EventCoreError: eventcore.EventCoreError{Op: "sqlitestore.InsertMany", Err: err}}
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Stream, rec.Type, string(rec.Data), metaString(rec.Meta), rec.Created, rec.Recorded); err != nil {
			if isUniqueViolation(err) {
				return &eventcore.DuplicateEventError{
					EventInsertionError: eventcore.EventInsertionError{
						EventCoreError: eventcore.EventCoreError{Op: "sqlitestore.InsertMany", Err: err},
						Stream:         rec.Stream,
					},
					ID: rec.ID,
				}
			}
			return &eventcore.EventInsertionError{
				EventCoreError: eventcore.EventCoreError{Op: "sqlitestore.InsertMany", Err: err},
				Stream:         rec.Stream,
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &eventcore.EventInsertionError{EventCoreError: eventcore.EventCoreError{Op: "sqlitestore.InsertMany", Err: err}}
	}
	return nil
}

func (s *EventsStore) Get(ctx context.Context, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	return s.query(ctx, "", nil, opts)
}

func (s *EventsStore) GetByStream(ctx context.Context, stream string, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	return s.query(ctx, "stream = ?", []any{stream}, opts)
}

func (s *EventsStore) GetByStreams(ctx context.Context, streams []string, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(streams)), ",")
	args := make([]any, len(streams))
	for i, st := range streams {
		args[i] = st
	}
	return s.query(ctx, fmt.Sprintf("stream IN (%s)", placeholders), args, opts)
}

func (s *EventsStore) query(ctx context.Context, extraCond string, extraArgs []any, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if extraCond != "" {
		conds = append(conds, extraCond)
		args = append(args, extraArgs...)
	}
	if len(opts.Filter.Types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.Filter.Types)), ",")
		conds = append(conds, fmt.Sprintf("type IN (%s)", placeholders))
		for _, t := range opts.Filter.Types {
			args = append(args, t)
		}
	}
	if opts.Cursor != "" {
		conds = append(conds, "created > ?")
		args = append(args, opts.Cursor)
	}

	q := "SELECT id, stream, type, data, meta, created, recorded FROM events"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if opts.Direction == eventcore.Desc {
		q += " ORDER BY created DESC"
	} else {
		q += " ORDER BY created ASC"
	}
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &eventcore.EventCoreError{Op: "sqlitestore.Get", Err: err}
	}
	defer rows.Close()

	var out []eventcore.Record
	for rows.Next() {
		rec, meta, data, err := scanRecordStrings(rows)
		if err != nil {
			return nil, &eventcore.EventCoreError{Op: "sqlitestore.Get", Err: err}
		}
		rec.Data = []byte(data)
		rec.Meta = metaBytes(meta)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &eventcore.EventCoreError{Op: "sqlitestore.Get", Err: err}
	}
	return out, nil
}

func scanRecordStrings(rows *sql.Rows) (eventcore.Record, sql.NullString, string, error) {
	var rec eventcore.Record
	var data string
	var meta sql.NullString
	err := rows.Scan(&rec.ID, &rec.Stream, &rec.Type, &data, &meta, &rec.Created, &rec.Recorded)
	return rec, meta, data, err
}

func (s *EventsStore) GetByID(ctx context.Context, id string) (*eventcore.Record, error) {
	var rec eventcore.Record
	var data string
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, stream, type, data, meta, created, recorded FROM events WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Stream, &rec.Type, &data, &meta, &rec.Created, &rec.Recorded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &eventcore.EventCoreError{Op: "sqlitestore.GetByID", Err: err}
	}
	rec.Data = []byte(data)
	rec.Meta = metaBytes(meta)
	return &rec, nil
}

func (s *EventsStore) CheckOutdated(ctx context.Context, rec eventcore.Record) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM events
		WHERE stream = ? AND type = ? AND id <> ? AND created > ?
	`, rec.Stream, rec.Type, rec.ID, rec.Created).Scan(&count)
	if err != nil {
		return false, &eventcore.EventCoreError{Op: "sqlitestore.CheckOutdated", Err: err}
	}
	return count > 0, nil
}

func (s *EventsStore) Status(ctx context.Context, rec eventcore.Record) (eventcore.EventStatus, error) {
	var existsCount, outdatedCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM events WHERE id = ?`, rec.ID).Scan(&existsCount); err != nil {
		return eventcore.EventStatus{}, &eventcore.EventCoreError{Op: "sqlitestore.Status", Err: err}
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM events WHERE stream = ? AND type = ? AND id <> ? AND created > ?
	`, rec.Stream, rec.Type, rec.ID, rec.Created).Scan(&outdatedCount); err != nil {
		return eventcore.EventStatus{}, &eventcore.EventCoreError{Op: "sqlitestore.Status", Err: err}
	}
	return eventcore.EventStatus{Exists: existsCount > 0, Outdated: outdatedCount > 0}, nil
}

func metaString(meta []byte) sql.NullString {
	if len(meta) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(meta), Valid: true}
}

func metaBytes(meta sql.NullString) []byte {
	if !meta.Valid {
		return nil
	}
	return []byte(meta.String)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
