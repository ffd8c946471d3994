package eventcore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjector_DispatchesToRegisteredHandler(t *testing.T) {
	queue := NewQueue()
	var got Record
	var mu sync.Mutex
	p := newProjector(queue, nil)
	p.On("Foo", func(rec Record, sig ProjectionSignals) error {
		mu.Lock()
		got = rec
		mu.Unlock()
		return nil
	})

	done := p.Project(Record{Stream: "s1", Type: "Foo", ID: "1"}, ProjectionSignals{})
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "1", got.ID)
}

func TestProjector_MultipleHandlersRunInRegistrationOrder(t *testing.T) {
	queue := NewQueue()
	p := newProjector(queue, nil)

	var order []int
	var mu sync.Mutex
	p.On("Foo", func(rec Record, sig ProjectionSignals) error {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		return nil
	})
	p.On("Foo", func(rec Record, sig ProjectionSignals) error {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		return nil
	})

	done := p.Project(Record{Stream: "s1", Type: "Foo"}, ProjectionSignals{})
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, order)
}

func TestProjector_HandlerErrorReportedNotReturned(t *testing.T) {
	queue := NewQueue()
	var reported error
	var mu sync.Mutex
	onError := func(err error, rec *Record) {
		mu.Lock()
		reported = err
		mu.Unlock()
	}
	p := newProjector(queue, onError)
	p.On("Foo", func(rec Record, sig ProjectionSignals) error {
		return assert.AnError
	})

	done := p.Project(Record{Stream: "s1", Type: "Foo"}, ProjectionSignals{})
	assert.NoError(t, <-done)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported != nil
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, IsEventProjectionFailureFor(reported))
}

// IsEventProjectionFailureFor reports whether err is an EventProjectionFailure.
func IsEventProjectionFailureFor(err error) bool {
	_, ok := err.(*EventProjectionFailure)
	return ok
}

func TestProjector_NoHandlerRegisteredResolvesImmediately(t *testing.T) {
	queue := NewQueue()
	p := newProjector(queue, nil)

	done := p.Project(Record{Stream: "s1", Type: "Unregistered"}, ProjectionSignals{})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for projector dispatch")
	}
}
