package eventcore

import "sync"

// ProjectionSignals tells a Handler why it's being invoked.
type ProjectionSignals struct {
	// Hydrated is true iff the event arrived from an external source
	// rather than being minted locally.
	Hydrated bool
	// Outdated is true iff a newer event of the same (stream, type)
	// already exists in storage; handlers may use this to skip stale
	// projections.
	Outdated bool
}

// Handler is a single projector subscriber for one event type.
type Handler func(rec Record, sig ProjectionSignals) error

// Projector is the type -> []Handler subscription registry. Dispatch
// for a given record is always run through a Queue keyed on
// rec.Stream, so handlers for events on the same stream observe them
// in submission order even when subscribers block.
type Projector struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	queue    *Queue
	onError  func(err error, rec *Record)
}

func newProjector(queue *Queue, onError func(err error, rec *Record)) *Projector {
	return &Projector{
		handlers: make(map[string][]Handler),
		queue:    queue,
		onError:  onError,
	}
}

// On registers handler for eventType. Registration is expected at
// construction/setup time, not concurrently with Project.
func (p *Projector) On(eventType string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = append(p.handlers[eventType], handler)
}

// Project dispatches rec to every handler registered for rec.Type,
// serialized through the per-stream queue. Handler errors are reported
// via onError and never propagated to the caller — the event is durable
// regardless of projection outcome.
func (p *Projector) Project(rec Record, sig ProjectionSignals) <-chan error {
	p.mu.RLock()
	handlers := append([]Handler(nil), p.handlers[rec.Type]...)
	p.mu.RUnlock()

	return p.queue.Enqueue(rec.Stream, func() error {
		for _, h := range handlers {
			if err := h(rec, sig); err != nil {
				wrapped := &EventProjectionFailure{
					EventCoreError: EventCoreError{Op: "Projector.Project", Err: err},
					Record:         rec,
				}
				if p.onError != nil {
					p.onError(wrapped, &rec)
				}
			}
		}
		return nil
	})
}
