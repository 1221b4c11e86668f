// This file defines how query data goes stale over time.

package staleness

import (
	"time"

	"github.com/krisalay/query-cache/timeutil"
	"github.com/krisalay/query-cache/types"
)

/*
Strategy is the interface that all freshness rules must follow. Instead of
hard-coding the staleness decision into the cache, we define a strategy so
the behavior can be swapped easily.
*/
type Strategy interface {

	// IsFresh reports whether data produced at updatedAt can still be
	// served without a refetch, given the query's windows.
	IsFresh(updatedAt time.Time, settings types.Settings, now time.Time) bool
}

/*
StaleAfterUpdate is the standard freshness rule: data is fresh for
StaleTime after the moment it was produced.

- data that was never produced is never fresh (a miss must fetch)
- a nil StaleTime means loaded data never goes stale on its own
- a zero StaleTime means loaded data is stale the moment it lands
*/
type StaleAfterUpdate struct{}

func (StaleAfterUpdate) IsFresh(updatedAt time.Time, settings types.Settings, now time.Time) bool {
	if updatedAt.IsZero() {
		return false
	}
	return !timeutil.Elapsed(updatedAt, settings.StaleTime, now)
}

// Trigger is the slice of the executor the monitors need: an
// idempotent-under-concurrency fetch trigger.
type Trigger[V any] interface {
	Execute(q *types.Query[V])
}

/*
Monitor runs the staleness check whenever a consumer newly attaches.

If the query's data is missing or older than its staleness window, the
executor is triggered. This covers both the very first load on attach and
"refetch immediately because data is already stale" on re-attach.

The check deliberately does NOT run after a completed fetch: with a zero
staleness window that would re-trigger the executor forever.
*/
type Monitor[V any] struct {
	strategy Strategy
	trigger  Trigger[V]
	clock    func() time.Time
}

// NewMonitor creates the staleness monitor for one query.
func NewMonitor[V any](strategy Strategy, trigger Trigger[V], clock func() time.Time) *Monitor[V] {
	if strategy == nil {
		strategy = StaleAfterUpdate{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Monitor[V]{strategy: strategy, trigger: trigger, clock: clock}
}

func (m *Monitor[V]) OnQueryChanged(q *types.Query[V], reason types.Change) {
	if reason != types.ChangeAttach {
		return
	}

	state := q.State()
	if state.InFlight() {
		// Already being refreshed; the executor would no-op anyway.
		return
	}
	if !m.strategy.IsFresh(state.UpdatedAt, q.Settings(), m.clock()) {
		m.trigger.Execute(q)
	}
}

// Stop is a no-op; the staleness monitor owns no timer.
func (m *Monitor[V]) Stop() {}

/*
InvalidationMonitor refetches a query once it is marked invalid.

Unlike the staleness check, invalidation always forces a refetch attempt,
ignoring the staleness window. The executor's in-flight guard deduplicates
the trigger, so signaling invalidation twice before the fetch resolves
still produces exactly one fetch.
*/
type InvalidationMonitor[V any] struct {
	trigger Trigger[V]
}

// NewInvalidationMonitor creates the invalidation monitor for one query.
func NewInvalidationMonitor[V any](trigger Trigger[V]) *InvalidationMonitor[V] {
	return &InvalidationMonitor[V]{trigger: trigger}
}

func (m *InvalidationMonitor[V]) OnQueryChanged(q *types.Query[V], reason types.Change) {
	if reason == types.ChangeFailure {
		return
	}
	if q.State().Status == types.Invalid {
		m.trigger.Execute(q)
	}
}

// Stop is a no-op; the invalidation monitor owns no timer.
func (m *InvalidationMonitor[V]) Stop() {}
