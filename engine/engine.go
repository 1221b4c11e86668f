package engine

import (
	"context"
	"time"

	"github.com/krisalay/query-cache/executor"
	"github.com/krisalay/query-cache/eviction"
	"github.com/krisalay/query-cache/notify"
	"github.com/krisalay/query-cache/refetch"
	"github.com/krisalay/query-cache/staleness"
	"github.com/krisalay/query-cache/types"
)

/*
SyncEngine is the "brain" of the query cache.
It is responsible for the BEHAVIOR of queries, NOT their storage.

It decides:
- When data is stale and must be refetched
- What happens when a query is invalidated
- When interval refetching fires
- When an unobserved entry may be evicted
- How changes are delivered to the outside
- How metrics are recorded

It does NOT:
- Store queries
- Handle sharding
- Mutate the registry (only the cache's remove callback does that)
*/
type SyncEngine[V any] struct {

	// Fetcher is how queries talk to the source of truth.
	Fetcher types.Fetcher[V]

	// Strategy decides whether loaded data can still be served.
	// If nil, the standard stale-after-update rule is used.
	Strategy staleness.Strategy

	// Notifier delivers state changes to outside listeners.
	// If nil, changes are not published.
	Notifier notify.Policy[V]

	// Metrics records what the cache is doing.
	Metrics types.Metrics

	// Executor performs fetches with the per-key dedup guarantee.
	Executor *executor.Executor[V]

	clock func() time.Time
}

/*
NewSyncEngine creates a SyncEngine.

Metrics is always made non-nil here, which avoids defensive nil checks
throughout the codebase.
*/
func NewSyncEngine[V any](
	fetcher types.Fetcher[V],
	strategy staleness.Strategy,
	notifier notify.Policy[V],
	metrics types.Metrics,
) *SyncEngine[V] {

	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if strategy == nil {
		strategy = staleness.StaleAfterUpdate{}
	}
	clock := time.Now

	return &SyncEngine[V]{
		Fetcher:  fetcher,
		Strategy: strategy,
		Notifier: notifier,
		Metrics:  metrics,
		Executor: executor.New[V](fetcher, metrics, clock, context.Background()),
		clock:    clock,
	}
}

// Now returns the engine's current time.
func (e *SyncEngine[V]) Now() time.Time {
	return e.clock()
}

// IsFresh reports whether a state observation can be served without a
// refetch. Invalid data is never fresh, regardless of windows.
func (e *SyncEngine[V]) IsFresh(state types.State[V], settings types.Settings) bool {
	if !state.HasValue || state.Status == types.Invalid {
		return false
	}
	return e.Strategy.IsFresh(state.UpdatedAt, settings, e.clock())
}

/*
Bind wires a freshly created query with its full monitor set:

- staleness monitor (refetch on attach when data is missing or stale)
- invalidation monitor (refetch whenever marked invalid)
- interval refetch scheduler (periodic refetch from the latest update)
- eviction scheduler (cache-window removal, via the cache's callback)
- publisher (delivery to the notifier, when one is configured)

Every monitor is per-query, so its timers die with the query.
*/
func (e *SyncEngine[V]) Bind(q *types.Query[V], remove func(*types.Query[V])) {
	monitors := []types.Monitor[V]{
		staleness.NewMonitor[V](e.Strategy, e.Executor, e.clock),
		staleness.NewInvalidationMonitor[V](e.Executor),
		refetch.NewScheduler[V](q, e.Executor, e.Metrics, e.clock),
		eviction.NewScheduler[V](q, e.clock, remove),
	}
	if e.Notifier != nil {
		monitors = append(monitors, &publisher[V]{policy: e.Notifier})
	}
	q.Bind(monitors...)
}

// Close shuts down the engine: waits for in-flight fetches and closes
// the notifier.
func (e *SyncEngine[V]) Close() {
	e.Executor.Wait()
	if e.Notifier != nil {
		e.Notifier.Close()
	}
}

// publisher forwards every query change to the delivery policy.
type publisher[V any] struct {
	policy notify.Policy[V]
}

func (p *publisher[V]) OnQueryChanged(q *types.Query[V], reason types.Change) {
	p.policy.OnChange(notify.Event[V]{Key: q.Key(), Reason: reason, State: q.State()})
}

func (p *publisher[V]) Stop() {}
