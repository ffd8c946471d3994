// Package memstore is the in-memory eventcore backend: a single
// process's address space, useful for tests and local development.
// One RWMutex guards a per-stream slice plus a flat append-only log.
package memstore

import (
	"context"
	"sort"
	"sync"

	"eventcore/pkg/eventcore"
)

// EventsStore is the in-memory EventsProvider. Safe for concurrent use.
type EventsStore struct {
	mu      sync.RWMutex
	byID    map[string]eventcore.Record
	streams map[string][]eventcore.Record
	all     []eventcore.Record
}

// NewEventsStore builds an empty in-memory event log.
func NewEventsStore() *EventsStore {
	return &EventsStore{
		byID:    make(map[string]eventcore.Record),
		streams: make(map[string][]eventcore.Record),
	}
}

func (s *EventsStore) Insert(_ context.Context, rec eventcore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rec.ID]; exists {
		return &eventcore.DuplicateEventError{
			EventInsertionError: eventcore.EventInsertionError{
				EventCoreError: eventcore.EventCoreError{Op: "memstore.Insert"},
				Stream:         rec.Stream,
			},
			ID: rec.ID,
		}
	}
	s.insertLocked(rec)
	return nil
}

func (s *EventsStore) insertLocked(rec eventcore.Record) {
	s.byID[rec.ID] = rec
	s.streams[rec.Stream] = append(s.streams[rec.Stream], rec)
	s.all = append(s.all, rec)
}

func (s *EventsStore) InsertMany(_ context.Context, recs []eventcore.Record, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if _, exists := s.byID[rec.ID]; exists {
			return &eventcore.DuplicateEventError{
				EventInsertionError: eventcore.EventInsertionError{
					EventCoreError: eventcore.EventCoreError{Op: "memstore.InsertMany"},
					Stream:         rec.Stream,
				},
				ID: rec.ID,
			}
		}
	}
	for _, rec := range recs {
		s.insertLocked(rec)
	}
	return nil
}

func (s *EventsStore) Get(_ context.Context, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return applyOptions(s.all, opts), nil
}

func (s *EventsStore) GetByStream(_ context.Context, stream string, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return applyOptions(s.streams[stream], opts), nil
}

func (s *EventsStore) GetByStreams(_ context.Context, streams []string, opts eventcore.GetOptions) ([]eventcore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var merged []eventcore.Record
	for _, stream := range streams {
		merged = append(merged, s.streams[stream]...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Created < merged[j].Created })
	return applyOptions(merged, opts), nil
}

func (s *EventsStore) GetByID(_ context.Context, id string) (*eventcore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *EventsStore) CheckOutdated(_ context.Context, rec eventcore.Record) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, other := range s.streams[rec.Stream] {
		if other.Type == rec.Type && other.ID != rec.ID && other.Created > rec.Created {
			return true, nil
		}
	}
	return false, nil
}

func (s *EventsStore) Status(_ context.Context, rec eventcore.Record) (eventcore.EventStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.byID[rec.ID]
	outdated := false
	for _, other := range s.streams[rec.Stream] {
		if other.Type == rec.Type && other.ID != rec.ID && other.Created > rec.Created {
			outdated = true
			break
		}
	}
	return eventcore.EventStatus{Exists: exists, Outdated: outdated}, nil
}

// applyOptions copies while filtering by type and skipping events at or
// before the cursor, then orders and limits, never mutating the backing
// slice.
func applyOptions(events []eventcore.Record, opts eventcore.GetOptions) []eventcore.Record {
	out := make([]eventcore.Record, 0, len(events))
	for _, rec := range events {
		if !matchesFilter(rec, opts.Filter) {
			continue
		}
		if opts.Cursor != "" && rec.Created <= opts.Cursor {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if opts.Direction == eventcore.Desc {
			return out[i].Created > out[j].Created
		}
		return out[i].Created < out[j].Created
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func matchesFilter(rec eventcore.Record, f eventcore.Filter) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == rec.Type {
			return true
		}
	}
	return false
}

// ContextsStore is the in-memory ContextsProvider: a (key, stream) set
// deduplicated on the pair, per eventcore's default dedup policy.
type ContextsStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]struct{} // key -> set of streams
}

func NewContextsStore() *ContextsStore {
	return &ContextsStore{rows: make(map[string]map[string]struct{})}
}

func (c *ContextsStore) Insert(_ context.Context, key, stream string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(key, stream)
	return nil
}

func (c *ContextsStore) insertLocked(key, stream string) {
	if c.rows[key] == nil {
		c.rows[key] = make(map[string]struct{})
	}
	c.rows[key][stream] = struct{}{}
}

func (c *ContextsStore) Remove(_ context.Context, key, stream string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if streams, ok := c.rows[key]; ok {
		delete(streams, stream)
	}
	return nil
}

func (c *ContextsStore) GetByKey(_ context.Context, key string) ([]eventcore.ContextRow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	streams := c.rows[key]
	rows := make([]eventcore.ContextRow, 0, len(streams))
	for stream := range streams {
		rows = append(rows, eventcore.ContextRow{Key: key, Stream: stream})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Stream < rows[j].Stream })
	return rows, nil
}

func (c *ContextsStore) Handle(_ context.Context, ops []eventcore.ContextOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range ops {
		switch op.Op {
		case eventcore.ContextInsert:
			c.insertLocked(op.Key, op.Stream)
		case eventcore.ContextRemove:
			if streams, ok := c.rows[op.Key]; ok {
				delete(streams, op.Stream)
			}
		}
	}
	return nil
}

// SnapshotsStore is the in-memory SnapshotsProvider, keyed on
// (reducer name, stream).
type SnapshotsStore struct {
	mu    sync.RWMutex
	byKey map[string]eventcore.Snapshot
}

func NewSnapshotsStore() *SnapshotsStore {
	return &SnapshotsStore{byKey: make(map[string]eventcore.Snapshot)}
}

func snapshotKey(name, stream string) string { return name + "\x00" + stream }

func (s *SnapshotsStore) Insert(_ context.Context, name, stream, cursor string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(state))
	copy(cp, state)
	s.byKey[snapshotKey(name, stream)] = eventcore.Snapshot{Cursor: cursor, State: cp}
	return nil
}

func (s *SnapshotsStore) GetByStream(_ context.Context, name, stream string) (*eventcore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byKey[snapshotKey(name, stream)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *SnapshotsStore) Remove(_ context.Context, name, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, snapshotKey(name, stream))
	return nil
}

// New bundles fresh in-memory stores into an eventcore.Providers.
func New() eventcore.Providers {
	return eventcore.Providers{
		Events:    NewEventsStore(),
		Contexts:  NewContextsStore(),
		Snapshots: NewSnapshotsStore(),
	}
}
