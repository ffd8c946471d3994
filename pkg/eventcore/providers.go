package eventcore

import "context"

// Direction orders a Get call's result set.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter narrows a Get call to a set of event types. A nil/empty Types
// slice matches every type.
type Filter struct {
	Types []string
}

// GetOptions configures EventsProvider reads. Cursor, when set, is the
// created timestamp of the last event already folded (exclusive).
type GetOptions struct {
	Cursor    string
	Direction Direction
	Limit     int
	Filter    Filter
}

// EventStatus reports what the façade needs to know about a record
// before deciding whether to insert it.
type EventStatus struct {
	Exists   bool
	Outdated bool
}

// EventsProvider is the storage contract for the immutable event log.
// Every method is safe to call concurrently; ordering guarantees within
// a stream are the caller's responsibility (see Queue) not the
// provider's.
type EventsProvider interface {
	Insert(ctx context.Context, rec Record) error
	InsertMany(ctx context.Context, recs []Record, batchSize int) error
	Get(ctx context.Context, opts GetOptions) ([]Record, error)
	GetByStream(ctx context.Context, stream string, opts GetOptions) ([]Record, error)
	GetByStreams(ctx context.Context, streams []string, opts GetOptions) ([]Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	// CheckOutdated reports whether a newer event of the same
	// (stream, type) than rec is already persisted.
	CheckOutdated(ctx context.Context, rec Record) (bool, error)
	// Status combines an existence and an outdated check into the
	// single round trip the push pipeline needs.
	Status(ctx context.Context, rec Record) (EventStatus, error)
}

// ContextOp is a single context-index mutation a Contextor handler emits.
type ContextOp struct {
	Op     ContextOpKind
	Key    string
	Stream string
}

type ContextOpKind int

const (
	ContextInsert ContextOpKind = iota
	ContextRemove
)

// ContextRow is a single (key, stream) pair as returned by GetByKey.
type ContextRow struct {
	Key    string
	Stream string
}

// ContextsProvider is the storage contract for the secondary (key, stream)
// index. The default policy dedups on the (key, stream) primary key;
// implementations documenting an append-only log instead are equally
// conformant.
type ContextsProvider interface {
	Insert(ctx context.Context, key, stream string) error
	Remove(ctx context.Context, key, stream string) error
	GetByKey(ctx context.Context, key string) ([]ContextRow, error)
	Handle(ctx context.Context, ops []ContextOp) error
}

// Snapshot is the cached reducer result for a (reducerName, stream) pair.
type Snapshot struct {
	Cursor string
	State  []byte // JSON-encoded
}

// SnapshotsProvider is the storage contract for reducer/aggregate caches.
type SnapshotsProvider interface {
	Insert(ctx context.Context, name, stream, cursor string, state []byte) error
	GetByStream(ctx context.Context, name, stream string) (*Snapshot, error)
	Remove(ctx context.Context, name, stream string) error
}

// Providers bundles the three storage contracts a backend must satisfy
// together for EventStore construction.
type Providers struct {
	Events    EventsProvider
	Contexts  ContextsProvider
	Snapshots SnapshotsProvider
}
