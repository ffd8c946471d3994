package eventcore

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PerStreamOrder(t *testing.T) {
	q := NewQueue()
	var mu sync.Mutex
	var order []int

	// Submit all 20 jobs for the same stream back-to-back, without
	// waiting between them, so they race against the single worker's
	// drain loop; only the submission order below should survive.
	dones := make([]<-chan error, 20)
	for i := 0; i < 20; i++ {
		i := i
		dones[i] = q.Enqueue("s1", func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	for _, d := range dones {
		<-d
	}

	require.Len(t, order, 20)
	for i := 0; i < 20; i++ {
		assert.Equal(t, i, order[i])
	}
}

func TestQueue_CrossStreamIndependence(t *testing.T) {
	q := NewQueue()
	blockA := make(chan struct{})
	startedA := make(chan struct{})

	doneA := q.Enqueue("A", func() error {
		close(startedA)
		<-blockA
		return nil
	})

	<-startedA

	// B must not wait for A's slow handler to finish.
	var bRan int32
	doneB := q.Enqueue("B", func() error {
		atomic.StoreInt32(&bRan, 1)
		return nil
	})

	select {
	case <-doneB:
	case <-time.After(time.Second):
		t.Fatal("stream B was blocked by a slow handler on stream A")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&bRan))

	close(blockA)
	<-doneA
}

func TestQueue_DrainsAndReopens(t *testing.T) {
	q := NewQueue()
	<-q.Enqueue("s1", func() error { return nil })

	// Give the worker goroutine a moment to observe the empty channel
	// and remove itself from the map.
	time.Sleep(20 * time.Millisecond)

	q.mu.Lock()
	_, present := q.workers["s1"]
	q.mu.Unlock()
	assert.False(t, present, "drained worker should be removed from the map")

	var ran bool
	<-q.Enqueue("s1", func() error { ran = true; return nil })
	assert.True(t, ran)
}
