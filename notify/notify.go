// This file defines what a "delivery policy" is.
//
// Consumers outside the engine want to observe query changes. Different
// systems have different needs:
// - Some want every change delivered synchronously, in order
// - Some want delivery off the hot path, tolerating drops under pressure
//
// Instead of hard-coding one behavior, we define an interface so delivery
// can be swapped.

package notify

import (
	"sync"

	"github.com/krisalay/query-cache/types"
)

// Event is one observed query change.
type Event[V any] struct {
	Key    string
	Reason types.Change
	State  types.State[V]
}

// Listener receives delivered events.
type Listener[V any] func(Event[V])

/*
Policy is the contract that all delivery policies must follow.
The engine does not care which policy is used. It simply calls OnChange
after every query mutation and Close on shutdown.
*/
type Policy[V any] interface {

	// OnChange delivers one event according to the policy.
	OnChange(Event[V])

	// Close is called when the cache is shutting down.
	Close()
}

/*
Direct delivers every event synchronously to each listener, in dispatch
order.

- Delivery happens on the mutating goroutine
- A slow listener slows the engine down

Use this when ordering matters more than throughput.
*/
type Direct[V any] struct {
	listeners []Listener[V]
}

// NewDirect creates a synchronous delivery policy.
func NewDirect[V any](listeners ...Listener[V]) *Direct[V] {
	return &Direct[V]{listeners: listeners}
}

func (d *Direct[V]) OnChange(ev Event[V]) {
	for _, l := range d.listeners {
		l(ev)
	}
}

// Close is required by the Policy interface. Direct delivery has no
// background worker, so there is nothing to clean up.
func (d *Direct[V]) Close() {}

/*
Buffered delivers events through a queue drained by one background worker.

- The engine never blocks on delivery
- If the queue is full, the event is DROPPED. Blocking here would slow
  every state transition down and defeat the purpose of buffering;
  listeners can always read current state from the cache.
*/
type Buffered[V any] struct {
	listeners []Listener[V]
	ch        chan Event[V]
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewBuffered creates a buffered delivery policy with one worker.
func NewBuffered[V any](buffer int, listeners ...Listener[V]) *Buffered[V] {
	b := &Buffered[V]{
		listeners: listeners,
		ch:        make(chan Event[V], buffer),
	}

	b.wg.Add(1)
	go b.worker()

	return b
}

// OnChange queues the event, dropping it if the buffer is full or the
// policy is already closed.
func (b *Buffered[V]) OnChange(ev Event[V]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	select {
	case b.ch <- ev:
	default:
		// Intentional drop under pressure.
	}
}

// worker runs in the background and hands queued events to the listeners.
func (b *Buffered[V]) worker() {
	defer b.wg.Done()

	for ev := range b.ch {
		for _, l := range b.listeners {
			l(ev)
		}
	}
}

/*
Close shuts the policy down gracefully:
1. Stop accepting events
2. Close the channel
3. Wait for the worker to drain what was already queued

Without the wait, queued events could be lost on shutdown.
*/
func (b *Buffered[V]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()

	b.wg.Wait()
}
