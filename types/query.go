package types

import (
	"sync"
	"time"
)

/*
Monitor is a piece of behavior that reacts to query changes.

The staleness check, the invalidation check, the interval refetch scheduler
and the eviction scheduler are all monitors. The query dispatches to every
bound monitor synchronously after each mutation; each monitor's effect is
idempotent, so dispatch order does not matter.

Stop is called exactly once, when the query is disposed. A monitor that
owns a timer must cancel it there.
*/
type Monitor[V any] interface {
	OnQueryChanged(q *Query[V], reason Change)
	Stop()
}

/*
Query is the per-key record owned by the cache: identity, current state,
configured windows, and the shared observer count.

CONCURRENCY:
------------
- state, settings and the in-flight guard are protected by mu
- monitors are dispatched OUTSIDE the lock, after each mutation
- the observer counter is atomic and shared with consumer detach hooks

The in-flight guard is deliberately separate from the visible status.
An external invalidation while a fetch is running flips the status to
Invalid, but the guard still reports a fetch in flight, so the executor's
dedup check cannot be bypassed.
*/
type Query[V any] struct {
	key string

	mu       sync.Mutex
	state    State[V]
	settings Settings
	inFlight bool
	prev     State[V]      // snapshot taken when a fetch starts; restored on failure
	settled  chan struct{} // closed whenever no fetch is in flight
	lastErr  error
	disposed bool
	monitors []Monitor[V]

	observers *SharedCounter
}

// NewQuery creates a query in the Created state with zero observers.
func NewQuery[V any](key string, settings Settings) *Query[V] {
	settled := make(chan struct{})
	close(settled)

	return &Query[V]{
		key:       key,
		state:     State[V]{Status: Created},
		settings:  settings,
		settled:   settled,
		observers: &SharedCounter{},
	}
}

// Key returns the immutable identity of the query.
func (q *Query[V]) Key() string {
	return q.key
}

// Observers returns the shared consumer counter.
func (q *Query[V]) Observers() *SharedCounter {
	return q.observers
}

// State returns a copy of the current state.
func (q *Query[V]) State() State[V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Settings returns the current synchronization windows.
func (q *Query[V]) Settings() Settings {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settings
}

// UpdateSettings replaces the synchronization windows and re-runs the
// monitors so every timer deadline reflects the new configuration.
func (q *Query[V]) UpdateSettings(s Settings) {
	q.mu.Lock()
	q.settings = s
	q.mu.Unlock()

	q.Changed(ChangeSettings)
}

// LastError returns the error from the most recent failed fetch,
// or nil if the last fetch succeeded.
func (q *Query[V]) LastError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

/*
Settled returns a channel that is closed while no fetch is in flight.

Synchronous readers use it to wait for an in-flight fetch to resolve.
When nothing is in flight the returned channel is already closed, so
waiting on it never blocks.
*/
func (q *Query[V]) Settled() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settled
}

// Bind attaches monitors to the query. Called once, when the cache
// creates the entry and wires its synchronization behavior.
func (q *Query[V]) Bind(monitors ...Monitor[V]) {
	q.mu.Lock()
	q.monitors = append(q.monitors, monitors...)
	q.mu.Unlock()
}

/*
Changed dispatches a change notification to every bound monitor.

Monitors run outside the query lock: they read state back through the
accessors above and may trigger the executor, which takes the lock again.
A disposed query dispatches nothing.
*/
func (q *Query[V]) Changed(reason Change) {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}
	monitors := q.monitors
	q.mu.Unlock()

	for _, m := range monitors {
		m.OnQueryChanged(q, reason)
	}
}

/*
BeginFetch moves the state machine into its in-flight phase.

Returns false when a fetch is already in flight (the dedup guarantee:
at most one fetch per key at any time) or when the query was disposed.

Transitions:
- Created        → Loading
- Loaded/Invalid → Fetching (prior value stays visible)

The pre-fetch snapshot is kept so a failed fetch can fall back to it.
*/
func (q *Query[V]) BeginFetch() bool {
	q.mu.Lock()
	if q.inFlight || q.disposed {
		q.mu.Unlock()
		return false
	}

	q.prev = q.state
	switch q.state.Status {
	case Created:
		q.state = State[V]{Status: Loading}
	case Loaded, Invalid:
		q.state.Status = Fetching
	default:
		// Loading/Fetching without the guard set should be impossible.
		q.mu.Unlock()
		return false
	}
	q.inFlight = true
	q.settled = make(chan struct{})
	q.mu.Unlock()

	q.Changed(ChangeTransition)
	return true
}

// CompleteFetch settles an in-flight fetch with a fresh value, stamped
// with the time it was produced. Resolution always writes Loaded, even if
// the query was invalidated while the fetch was running.
func (q *Query[V]) CompleteFetch(value V, now time.Time) {
	q.mu.Lock()
	q.state = State[V]{Status: Loaded, Value: value, HasValue: true, UpdatedAt: now}
	q.lastErr = nil
	q.finishLocked()
	q.mu.Unlock()

	q.Changed(ChangeTransition)
}

/*
FailFetch settles an in-flight fetch that produced an error.

The query falls back to the snapshot taken when the fetch started:
- Loading reverts to Created (nothing was ever loaded)
- Fetching/Invalid revert to Loaded with the prior value and its
  ORIGINAL timestamp — stale data beats no data, and the unchanged
  timestamp keeps every timer deadline honest

The change is dispatched with ChangeFailure so no monitor schedules an
immediate retry.
*/
func (q *Query[V]) FailFetch(err error) {
	q.mu.Lock()
	restored := q.prev
	if restored.Status == Invalid {
		restored.Status = Loaded
	}
	q.state = restored
	q.lastErr = err
	q.finishLocked()
	q.mu.Unlock()

	q.Changed(ChangeFailure)
}

// finishLocked clears the in-flight guard and releases waiters.
func (q *Query[V]) finishLocked() {
	if !q.inFlight {
		return
	}
	q.inFlight = false
	close(q.settled)
}

/*
Invalidate marks the current value untrustworthy.

Only a query that actually holds a value can be invalidated; before the
first load there is nothing to preserve, so the signal is a no-op.
Returns whether the query was marked.

Invalidating during an in-flight fetch is allowed but superseded on
resolution, since resolution always writes Loaded.
*/
func (q *Query[V]) Invalidate() bool {
	q.mu.Lock()
	if !q.state.HasValue || q.disposed {
		q.mu.Unlock()
		return false
	}
	q.state.Status = Invalid
	q.mu.Unlock()

	q.Changed(ChangeTransition)
	return true
}

// SetData writes a value directly, bypassing the fetch path. Timers are
// re-armed from the new timestamp like after any successful fetch.
func (q *Query[V]) SetData(value V, now time.Time) {
	q.mu.Lock()
	q.state = State[V]{Status: Loaded, Value: value, HasValue: true, UpdatedAt: now}
	q.lastErr = nil
	q.mu.Unlock()

	q.Changed(ChangeTransition)
}

/*
Dispose releases everything the query holds: every bound monitor is
stopped (cancelling its timers) and further change dispatch is disabled.

Dispose is idempotent. It is called by the eviction scheduler once the
cache window elapses with zero observers, by explicit removal, and by
cache shutdown.
*/
func (q *Query[V]) Dispose() {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}
	q.disposed = true
	monitors := q.monitors
	q.monitors = nil
	q.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}

// Disposed reports whether the query has been disposed.
func (q *Query[V]) Disposed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.disposed
}
