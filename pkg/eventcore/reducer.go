package eventcore

// ReducerKind tells the façade how to resolve a reduce key: directly as
// a stream id, or indirectly through the contexts index.
type ReducerKind int

const (
	ByStream ReducerKind = iota
	ByContext
)

// Reducer folds an event sequence into a state value. Implementations
// are expected to be pure functions of their event sequence plus an
// optional prior snapshot state.
type Reducer interface {
	Name() string
	Kind() ReducerKind
	Filter() Filter
	// From adapts a bare snapshot state into the value Reduce would
	// have returned had it been given zero new events.
	From(snapshot any) any
	// Reduce left-folds events on top of an optional prior state.
	Reduce(events []Record, snapshot any) (any, error)
	// Hydrate deserializes a snapshot row's raw state into the value
	// From/Reduce expect as their snapshot argument.
	Hydrate(raw []byte) (any, error)
}

// FoldFunc left-folds one event into an accumulator.
type FoldFunc func(state any, rec Record) (any, error)

// HydrateFunc deserializes a snapshot row's raw JSON into the concrete
// state type a FoldFunc expects to type-assert, mirroring the factory
// step AggregateReducer.Hydrate uses to avoid handing back a bare
// map[string]any/float64.
type HydrateFunc func(raw []byte) (any, error)

// stateReducer is the concrete Reducer for the "fold + initial state"
// flavor.
type stateReducer struct {
	name    string
	kind    ReducerKind
	filter  Filter
	initial func() any
	fold    FoldFunc
	hydrate HydrateFunc
}

// NewStateReducer builds a Reducer that left-folds events with fold,
// starting from initial() when no snapshot is available. hydrate must
// unmarshal a snapshot row's raw state into the same concrete type
// initial() returns, so a second Reduce call after a snapshot exists
// type-asserts cleanly instead of seeing a generic map/number.
func NewStateReducer(name string, kind ReducerKind, filter Filter, initial func() any, fold FoldFunc, hydrate HydrateFunc) Reducer {
	return &stateReducer{name: name, kind: kind, filter: filter, initial: initial, fold: fold, hydrate: hydrate}
}

func (r *stateReducer) Name() string      { return r.name }
func (r *stateReducer) Kind() ReducerKind { return r.kind }
func (r *stateReducer) Filter() Filter    { return r.filter }

func (r *stateReducer) From(snapshot any) any {
	if snapshot != nil {
		return snapshot
	}
	return r.initial()
}

func (r *stateReducer) Reduce(events []Record, snapshot any) (any, error) {
	state := r.From(snapshot)
	for _, rec := range events {
		var err error
		state, err = r.fold(state, rec)
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (r *stateReducer) Hydrate(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return r.hydrate(raw)
}
