package eventcore

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventStore is the façade: it owns the HLC, validator registry,
// projector, contextor, and provider handles, and orchestrates the push
// and reduce pipelines.
type EventStore struct {
	providers  Providers
	validators *ValidatorRegistry
	queue      *Queue
	projector  *Projector
	contextor  *Contextor
	hlc        *HLC
	cfg        Config
}

// NewEventStore wires a façade around the given providers.
func NewEventStore(providers Providers, cfg Config) *EventStore {
	cfg = cfg.withDefaults()
	queue := NewQueue()
	onError := cfg.Hooks.OnError
	return &EventStore{
		providers:  providers,
		validators: NewValidatorRegistry(),
		queue:      queue,
		projector:  newProjector(queue, onError),
		contextor:  newContextor(queue, providers.Contexts, onError),
		hlc:        NewHLC(cfg.HLC),
		cfg:        cfg,
	}
}

// RegisterEvent adds a type and its schemas to the validator registry,
// which doubles as the "is this type known" set the push pipeline
// checks.
func (s *EventStore) RegisterEvent(eventType string, schemas EventSchemas) {
	s.validators.Register(eventType, schemas)
}

// Projector exposes the subscription registry for handler registration.
func (s *EventStore) Projector() *Projector { return s.projector }

// Contextor exposes the context-derivation registry for handler registration.
func (s *EventStore) Contextor() *Contextor { return s.contextor }

// MakeRecord builds an unsent record, stamping it with a fresh HLC
// reading. The returned record has created == recorded; Push will
// overwrite recorded with the reading taken at insert time.
func (s *EventStore) MakeRecord(req NewRecordRequest) (Record, error) {
	ts, err := s.hlc.Now()
	if err != nil {
		return Record{}, err
	}
	return makeRecord(req, ts), nil
}

// Push runs the full push pipeline for one record.
func (s *EventStore) Push(ctx context.Context, rec Record, hydrated bool) (string, error) {
	if !s.validators.Registered(rec.Type) {
		return "", &EventMissingError{
			EventCoreError: EventCoreError{Op: "Push", Err: fmt.Errorf("event type %q is not registered", rec.Type)},
			Type:           rec.Type,
		}
	}

	status, err := s.providers.Events.Status(ctx, rec)
	if err != nil {
		return "", &EventInsertionError{
			EventCoreError: EventCoreError{Op: "Push", Err: err},
			Stream:         rec.Stream,
		}
	}
	if status.Exists {
		return rec.Stream, nil
	}

	if err := s.stampAndValidate(&rec, hydrated); err != nil {
		return "", err
	}

	if err := s.insertOne(ctx, rec); err != nil {
		return "", err
	}

	if s.cfg.Hooks.OnEventsInserted != nil {
		s.cfg.Hooks.OnEventsInserted([]Record{rec})
	}

	s.dispatch(ctx, rec, hydrated, status.Outdated)

	return rec.Stream, nil
}

// stampAndValidate applies step 4 (timestamp) and step 5 (validate) of
// the push pipeline.
func (s *EventStore) stampAndValidate(rec *Record, hydrated bool) error {
	if !hydrated {
		ts, err := s.hlc.Now()
		if err != nil {
			return err
		}
		rec.Recorded = ts.String()
	} else {
		created, err := ParseTimestamp(rec.Created)
		if err != nil {
			return &EventParserError{
				EventCoreError: EventCoreError{Op: "Push", Err: err},
				Type:           rec.Type,
				Fields:         []FieldError{{Field: "created", Message: err.Error()}},
			}
		}
		if _, err := s.hlc.Recv(created); err != nil {
			return err
		}
	}

	if err := s.validators.Validate(*rec); err != nil {
		return err
	}
	return nil
}

func (s *EventStore) insertOne(ctx context.Context, rec Record) error {
	if err := s.providers.Events.Insert(ctx, rec); err != nil {
		if IsDuplicateEventError(err) {
			return err
		}
		return &EventInsertionError{
			EventCoreError: EventCoreError{Op: "Push", Err: err},
			Stream:         rec.Stream,
		}
	}
	return nil
}

// dispatch fans out the contextor and projector for rec, both
// serialized through the per-stream queue, without blocking the caller
// on their completion.
func (s *EventStore) dispatch(ctx context.Context, rec Record, hydrated, outdated bool) {
	s.contextor.Push(ctx, rec)
	s.projector.Project(rec, ProjectionSignals{Hydrated: hydrated, Outdated: outdated})
}

// PushMany pushes a batch of records sharing one validation pass and one
// backend insertMany call. Already-persisted records in the batch are
// skipped (same idempotence as Push) and do not re-trigger projections
// or context writes.
func (s *EventStore) PushMany(ctx context.Context, recs []Record) ([]string, error) {
	streams := make([]string, len(recs))
	toInsert := make([]Record, 0, len(recs))
	toDispatch := make([]Record, 0, len(recs))

	for i, rec := range recs {
		if !s.validators.Registered(rec.Type) {
			return nil, &EventMissingError{
				EventCoreError: EventCoreError{Op: "PushMany", Err: fmt.Errorf("event type %q is not registered", rec.Type)},
				Type:           rec.Type,
			}
		}

		status, err := s.providers.Events.Status(ctx, rec)
		if err != nil {
			return nil, &EventInsertionError{EventCoreError: EventCoreError{Op: "PushMany", Err: err}, Stream: rec.Stream}
		}
		streams[i] = rec.Stream
		if status.Exists {
			continue
		}

		if err := s.stampAndValidate(&rec, false); err != nil {
			return nil, err
		}
		toInsert = append(toInsert, rec)
		toDispatch = append(toDispatch, rec)
	}

	if len(toInsert) > 0 {
		if err := s.providers.Events.InsertMany(ctx, toInsert, s.cfg.MaxBatchSize); err != nil {
			return nil, &EventInsertionError{EventCoreError: EventCoreError{Op: "PushMany", Err: err}}
		}
		if s.cfg.Hooks.OnEventsInserted != nil {
			s.cfg.Hooks.OnEventsInserted(toInsert)
		}
		for _, rec := range toDispatch {
			s.dispatch(ctx, rec, false, false)
		}
	}

	return streams, nil
}

// GetEvents returns events across every stream.
func (s *EventStore) GetEvents(ctx context.Context, opts GetOptions) ([]Record, error) {
	return s.providers.Events.Get(ctx, opts)
}

// GetEventsByStream returns events for a single stream.
func (s *EventStore) GetEventsByStream(ctx context.Context, stream string, opts GetOptions) ([]Record, error) {
	return s.providers.Events.GetByStream(ctx, stream, opts)
}

// GetEventsByContext returns events for every stream registered under key.
func (s *EventStore) GetEventsByContext(ctx context.Context, key string, opts GetOptions) ([]Record, error) {
	rows, err := s.providers.Contexts.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	streams := distinctStreams(rows)
	if len(streams) == 0 {
		return nil, nil
	}
	return s.providers.Events.GetByStreams(ctx, streams, opts)
}

// Reduce loads the snapshot/event state for key and folds it through r.
func (s *EventStore) Reduce(ctx context.Context, key string, r Reducer) (any, error) {
	events, state, err := s.loadForReduce(ctx, key, r)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		if state == nil {
			return nil, nil
		}
		return r.From(state), nil
	}

	result, err := r.Reduce(events, state)
	if err != nil {
		return nil, err
	}

	if s.cfg.SnapshotMode == SnapshotAuto {
		if err := s.persistSnapshot(ctx, key, r, events[len(events)-1].Created, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// loadForReduce resolves the snapshot and event sequence a reduce (or
// createSnapshot) call needs: snapshot cursor/state, then GetByStream
// or GetByStreams depending on the reducer's kind.
func (s *EventStore) loadForReduce(ctx context.Context, key string, r Reducer) ([]Record, any, error) {
	snap, err := s.providers.Snapshots.GetByStream(ctx, r.Name(), key)
	if err != nil {
		return nil, nil, err
	}

	var cursor string
	var state any
	if snap != nil {
		cursor = snap.Cursor
		state, err = r.Hydrate(snap.State)
		if err != nil {
			return nil, nil, err
		}
	}

	opts := GetOptions{Cursor: cursor, Direction: Asc, Filter: r.Filter()}

	var events []Record
	switch r.Kind() {
	case ByStream:
		events, err = s.providers.Events.GetByStream(ctx, key, opts)
	case ByContext:
		rows, rowsErr := s.providers.Contexts.GetByKey(ctx, key)
		if rowsErr != nil {
			return nil, nil, rowsErr
		}
		streams := distinctStreams(rows)
		if len(streams) == 0 {
			return nil, state, nil
		}
		events, err = s.providers.Events.GetByStreams(ctx, streams, opts)
	default:
		return nil, nil, fmt.Errorf("unknown reducer kind %d", r.Kind())
	}
	if err != nil {
		return nil, nil, err
	}
	return events, state, nil
}

func (s *EventStore) persistSnapshot(ctx context.Context, key string, r Reducer, cursor string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.providers.Snapshots.Insert(ctx, r.Name(), key, cursor, raw)
}

// CreateSnapshot forces a snapshot write regardless of SnapshotMode; a
// key with no events is a no-op.
func (s *EventStore) CreateSnapshot(ctx context.Context, key string, r Reducer) error {
	events, state, err := s.loadForReduce(ctx, key, r)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	result, err := r.Reduce(events, state)
	if err != nil {
		return err
	}
	return s.persistSnapshot(ctx, key, r, events[len(events)-1].Created, result)
}

// GetSnapshot returns the current snapshot row for (r.Name(), key), if any.
func (s *EventStore) GetSnapshot(ctx context.Context, key string, r Reducer) (*Snapshot, error) {
	return s.providers.Snapshots.GetByStream(ctx, r.Name(), key)
}

// DeleteSnapshot removes the snapshot row for (r.Name(), key).
func (s *EventStore) DeleteSnapshot(ctx context.Context, key string, r Reducer) error {
	return s.providers.Snapshots.Remove(ctx, r.Name(), key)
}

// Replay re-runs the contextor and projector for events already in
// storage, without re-inserting them. Events are redelivered as
// hydrated (they already exist; this is a re-delivery, not a mint),
// with outdated recomputed against current storage state. stream == ""
// replays every stream, in whatever order Get returns them.
func (s *EventStore) Replay(ctx context.Context, stream string) error {
	var events []Record
	var err error
	if stream == "" {
		events, err = s.providers.Events.Get(ctx, GetOptions{Direction: Asc})
	} else {
		events, err = s.providers.Events.GetByStream(ctx, stream, GetOptions{Direction: Asc})
	}
	if err != nil {
		return err
	}

	for _, rec := range events {
		outdated, err := s.providers.Events.CheckOutdated(ctx, rec)
		if err != nil {
			return err
		}
		s.dispatch(ctx, rec, true, outdated)
	}
	return nil
}

func distinctStreams(rows []ContextRow) []string {
	seen := make(map[string]struct{}, len(rows))
	streams := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.Stream]; ok {
			continue
		}
		seen[row.Stream] = struct{}{}
		streams = append(streams, row.Stream)
	}
	return streams
}
