package events

import (
	"context"
	"sync"

	"github.com/dusk-indust/formcrew/internal/metrics"
)

// Async delivers events to an inner sink from a background goroutine. Emit
// never blocks: when the buffer is full or the sink is closed the event is
// dropped.
type Async struct {
	inner Sink
	ch    chan Event
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the delivery goroutine. Close must be called to stop it.
func NewAsync(inner Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{inner: inner, ch: make(chan Event, buffer)}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for e := range a.ch {
			// Delivery outlives the emitting flow's context.
			a.inner.Emit(context.Background(), e)
		}
	}()
	return a
}

func (a *Async) Emit(_ context.Context, e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.Events.WithLabelValues("async", "dropped").Inc()
		return
	}
	select {
	case a.ch <- e:
	default:
		metrics.Events.WithLabelValues("async", "dropped").Inc()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
