package eventcore

import (
	"context"
	"encoding/json"
)

// Aggregate is the duck-typed "instance with apply" flavor of Reducer.
// A concrete aggregate type implements Apply to mutate itself in
// response to one event; the generic AggregateReducer wraps a factory
// for that type into the shared Reducer contract.
type Aggregate interface {
	Apply(rec Record) error
}

// PendingAggregate additionally buffers events produced by its own
// domain methods so they can be committed through an EventStore in one
// call.
type PendingAggregate interface {
	Aggregate
	StreamID() string
	Pending() []NewRecordRequest
	ClearPending()
}

// AggregateReducer adapts a constructor for an Aggregate-implementing
// type T into the Reducer contract. T must also be JSON (de)serializable
// so its state can round-trip through a snapshot row.
type AggregateReducer[T Aggregate] struct {
	name    string
	kind    ReducerKind
	filter  Filter
	factory func() T
}

// NewAggregateReducer builds a Reducer that instantiates a fresh T via
// factory, optionally hydrates it from a snapshot, and applies events in
// order.
func NewAggregateReducer[T Aggregate](name string, kind ReducerKind, filter Filter, factory func() T) *AggregateReducer[T] {
	return &AggregateReducer[T]{name: name, kind: kind, filter: filter, factory: factory}
}

func (r *AggregateReducer[T]) Name() string      { return r.name }
func (r *AggregateReducer[T]) Kind() ReducerKind { return r.kind }
func (r *AggregateReducer[T]) Filter() Filter    { return r.filter }

func (r *AggregateReducer[T]) From(snapshot any) any {
	if snapshot == nil {
		return r.factory()
	}
	if instance, ok := snapshot.(T); ok {
		return instance
	}
	return r.factory()
}

func (r *AggregateReducer[T]) Reduce(events []Record, snapshot any) (any, error) {
	instance, _ := r.From(snapshot).(T)
	for _, rec := range events {
		if err := instance.Apply(rec); err != nil {
			return nil, err
		}
	}
	return instance, nil
}

func (r *AggregateReducer[T]) Hydrate(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	instance := r.factory()
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// Commit pushes every event an aggregate has buffered through store,
// tagging them onto the aggregate's own stream, then clears the buffer
// on success.
func Commit(ctx context.Context, store *EventStore, agg PendingAggregate) error {
	pending := agg.Pending()
	if len(pending) == 0 {
		return nil
	}

	recs := make([]Record, 0, len(pending))
	for _, req := range pending {
		if req.Stream == "" {
			req.Stream = agg.StreamID()
		}
		rec, err := store.MakeRecord(req)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}

	if _, err := store.PushMany(ctx, recs); err != nil {
		return err
	}
	agg.ClearPending()
	return nil
}
