package eventcore

import (
	"encoding/json"
	"sync"
)

// Validator evaluates a JSON payload and reports field-level failures.
// The store is validator-library-agnostic; ValidatorFunc lets callers
// adapt any declarative schema library to this shape.
type Validator interface {
	Validate(payload json.RawMessage) []FieldError
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(json.RawMessage) []FieldError

func (f ValidatorFunc) Validate(payload json.RawMessage) []FieldError { return f(payload) }

// EventSchemas is the pair of validators registered for one event type.
// Either half may be nil, in which case that half is not checked.
type EventSchemas struct {
	Data Validator
	Meta Validator
}

// ValidatorRegistry maps event type -> schemas. Registration is expected
// to happen at construction time, not concurrently with Push; the mutex
// guards against accidental concurrent RegisterEvent calls rather than
// being load-bearing for the push hot path.
type ValidatorRegistry struct {
	mu      sync.RWMutex
	schemas map[string]EventSchemas
}

func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{schemas: make(map[string]EventSchemas)}
}

func (r *ValidatorRegistry) Register(eventType string, schemas EventSchemas) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[eventType] = schemas
}

func (r *ValidatorRegistry) Registered(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[eventType]
	return ok
}

// Validate runs both halves of the registered schema against rec,
// returning an *EventParserError carrying every field failure found.
func (r *ValidatorRegistry) Validate(rec Record) error {
	r.mu.RLock()
	schemas, ok := r.schemas[rec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var fields []FieldError
	if schemas.Data != nil {
		fields = append(fields, schemas.Data.Validate(rec.Data)...)
	}
	if schemas.Meta != nil {
		fields = append(fields, schemas.Meta.Validate(rec.Meta)...)
	}
	if len(fields) == 0 {
		return nil
	}
	return &EventParserError{
		EventCoreError: EventCoreError{Op: "validate"},
		Type:           rec.Type,
		Fields:         fields,
	}
}
