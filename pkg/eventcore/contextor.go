package eventcore

import (
	"context"
	"sync"
)

// ContextHandler computes the context-index operations a record implies.
// Stream is filled in by the Contextor before the ops reach the
// provider; handlers only need to name the key and the kind of op.
type ContextHandler func(rec Record) []ContextOp

// Contextor is the type -> ContextHandler registry. Like Projector, its
// writes are serialized per-stream through a Queue so context mutations
// for one stream never race each other.
type Contextor struct {
	mu       sync.RWMutex
	handlers map[string]ContextHandler
	queue    *Queue
	provider ContextsProvider
	onError  func(err error, rec *Record)
}

func newContextor(queue *Queue, provider ContextsProvider, onError func(err error, rec *Record)) *Contextor {
	return &Contextor{
		handlers: make(map[string]ContextHandler),
		queue:    queue,
		provider: provider,
		onError:  onError,
	}
}

// Register installs handler for eventType.
func (c *Contextor) Register(eventType string, handler ContextHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = handler
}

// Push computes ops for rec (if a handler is registered) and hands them
// to the provider, stamping each op with rec.Stream. Provider/handler
// failures are reported via onError, never returned — the event stays
// persisted regardless.
func (c *Contextor) Push(ctx context.Context, rec Record) <-chan error {
	c.mu.RLock()
	handler, ok := c.handlers[rec.Type]
	c.mu.RUnlock()
	if !ok {
		done := make(chan error, 1)
		done <- nil
		return done
	}

	return c.queue.Enqueue(rec.Stream, func() error {
		ops := handler(rec)
		for i := range ops {
			ops[i].Stream = rec.Stream
		}
		if len(ops) == 0 {
			return nil
		}
		if err := c.provider.Handle(ctx, ops); err != nil {
			wrapped := &EventContextFailure{
				EventCoreError: EventCoreError{Op: "Contextor.Push", Err: err},
				Record:         rec,
			}
			if c.onError != nil {
				c.onError(wrapped, &rec)
			}
		}
		return nil
	})
}
