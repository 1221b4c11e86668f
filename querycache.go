package querycache

import (
	"context"
	"sync"

	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/eviction"
	"github.com/krisalay/query-cache/registry"
	"github.com/krisalay/query-cache/types"
	"golang.org/x/sync/singleflight"
)

/*
Cache is the main query cache implementation.
This struct is the orchestrator that connects:
- registry shards (storage)
- the sync engine (staleness, invalidation, refetch, eviction behavior)
- overflow policies
- metrics and change delivery

A query is created on the first request for its key, synchronized by the
engine's monitors for as long as it lives, and destroyed only when it has
zero observers and its cache window elapses without a new update.
*/
type Cache[V any] struct {
	// shards are the storage units. Each shard is an independent
	// slice of the registry with its own lock and overflow policy.
	shards []*registry.Shard[V]

	// engine contains the "rules" of the cache: staleness, refetch,
	// eviction, delivery, metrics.
	engine *engine.SyncEngine[V]

	// selector decides which shard a key belongs to.
	selector registry.Selector[V]

	// capacity is the maximum number of queries in the cache, divided
	// across shards. Zero means unbounded.
	capacity int

	// sf collapses concurrent synchronous readers of the same missing
	// key into a single waiter.
	sf singleflight.Group

	closeOnce sync.Once
}

func New[V any](
	shards int,
	capacity int,
	overflow eviction.PolicyType,
	eng *engine.SyncEngine[V],
) *Cache[V] {

	s := make([]*registry.Shard[V], shards)
	for i := range s {
		// Each shard gets its own overflow policy instance.
		s[i] = registry.NewShard[V](eviction.NewPolicy(overflow))
	}

	return &Cache[V]{
		shards:   s,
		engine:   eng,
		selector: registry.HashSelector[V]{},
		capacity: capacity,
	}
}

/*
GetOrCreate returns the query for a key, creating it on first request.

A new query starts in the Created state with zero observers and is wired
with the engine's full monitor set. Settings apply only on creation; use
Query.UpdateSettings to change the windows of a live query.

Only this method inserts into the registry, and only the eviction path
removes from it.
*/
func (c *Cache[V]) GetOrCreate(key string, settings *types.Settings) *types.Query[V] {
	sh := c.selector.Select(key, c.shards)

	// Lock-free fast path.
	if q, ok := sh.Store.Get(key); ok {
		return q
	}

	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	// Re-check under the lock; another goroutine may have won the race.
	if q, ok := sh.Store.Get(key); ok {
		return q
	}

	var s types.Settings
	if settings != nil {
		s = *settings
	}
	q := types.NewQuery[V](key, s)
	c.engine.Bind(q, c.evict)

	if c.capacity > 0 {
		c.overflowLocked(sh)
	}

	sh.Store.Put(key, q)
	sh.Overflow.OnInsert(key)

	return q
}

/*
Attach registers a consumer on a query and returns the query together
with a detach guard.

The observer count increments immediately; the guard's Detach decrements
it exactly once, on whatever exit path the consumer takes. Attaching also
runs the staleness check, so a consumer mounting onto missing or stale
data triggers a fetch right away.
*/
func (c *Cache[V]) Attach(key string, settings *types.Settings) (*types.Query[V], *types.DetachGuard) {
	q := c.GetOrCreate(key, settings)

	sh := c.selector.Select(key, c.shards)
	sh.Mu.Lock()
	sh.Overflow.OnAttach(key)
	sh.Mu.Unlock()

	q.Observers().Inc()
	q.Changed(types.ChangeAttach)

	guard := types.NewDetachGuard(func() {
		q.Observers().Dec()
		q.Changed(types.ChangeDetach)
	})
	return q, guard
}

/*
Get is the synchronous read-through path.

BEHAVIOR:
---------
1. If the query holds a fresh value: return it immediately (hit).
2. Otherwise trigger the executor and wait for the in-flight fetch to
   settle (miss). Concurrent callers for the same key are collapsed by
   singleflight into one waiter; the executor's guard already ensures
   only one fetch runs.
3. A failed fetch with a prior value returns that value (stale data
   beats no data); with no prior value it returns the fetch error.

When fetching is suppressed and nothing is in flight, Get returns
whatever the query currently holds.
*/
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	q := c.GetOrCreate(key, nil)

	state := q.State()
	if c.engine.IsFresh(state, q.Settings()) {
		c.engine.Metrics.Hit()
		return state.Value, nil
	}
	c.engine.Metrics.Miss()

	ch := c.sf.DoChan(key, func() (any, error) {
		c.engine.Executor.Execute(q)
		<-q.Settled()
		return q.State(), nil
	})

	select {
	case res := <-ch:
		settled := res.Val.(types.State[V])
		if settled.HasValue {
			return settled.Value, nil
		}
		var zero V
		return zero, q.LastError()
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns the current state of a query without creating it and
// without triggering any fetch.
func (c *Cache[V]) Peek(key string) (types.State[V], bool) {
	sh := c.selector.Select(key, c.shards)
	q, ok := sh.Store.Get(key)
	if !ok {
		return types.State[V]{}, false
	}
	return q.State(), true
}

// SetData writes a value for a key directly, bypassing the fetch path.
// The query is created if missing; timers re-arm from the new timestamp.
func (c *Cache[V]) SetData(key string, value V) {
	q := c.GetOrCreate(key, nil)
	q.SetData(value, c.engine.Now())
}

// Invalidate marks an existing query's value untrustworthy, forcing a
// refetch regardless of the staleness window. Unknown keys and queries
// that never loaded are no-ops.
func (c *Cache[V]) Invalidate(key string) {
	sh := c.selector.Select(key, c.shards)
	if q, ok := sh.Store.Get(key); ok {
		if q.Invalidate() {
			c.engine.Metrics.Invalidate()
		}
	}
}

// InvalidateAll invalidates every query currently in the cache.
func (c *Cache[V]) InvalidateAll() {
	for _, sh := range c.shards {
		for _, q := range sh.Store.Snapshot() {
			if q.Invalidate() {
				c.engine.Metrics.Invalidate()
			}
		}
	}
}

// Refetch triggers a fetch for an existing query, deduplicated by the
// executor's in-flight guard. Unknown keys are no-ops.
func (c *Cache[V]) Refetch(key string) {
	sh := c.selector.Select(key, c.shards)
	if q, ok := sh.Store.Get(key); ok {
		c.engine.Executor.Execute(q)
	}
}

// Remove deletes a query immediately and disposes it, regardless of its
// cache window. Observers keep a working reference to the disposed-from
// registry query; the next GetOrCreate makes a fresh entry.
// This operation is idempotent.
func (c *Cache[V]) Remove(key string) {
	sh := c.selector.Select(key, c.shards)

	sh.Mu.Lock()
	q, ok := sh.Store.Get(key)
	if ok {
		sh.Store.Delete(key)
		sh.Overflow.Remove(key)
	}
	sh.Mu.Unlock()

	if ok {
		q.Dispose()
	}
}

// Len returns the number of queries currently in the cache.
func (c *Cache[V]) Len() int {
	var n int64
	for _, sh := range c.shards {
		n += sh.Store.Len()
	}
	return int(n)
}

/*
Close gracefully shuts down the cache.

Every query is removed and disposed synchronously, which cancels every
armed timer. In-flight fetches are waited for (there is no cancellation;
they complete into already-disposed queries, which is safe), then the
notifier is closed.
*/
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		for _, sh := range c.shards {
			sh.Mu.Lock()
			queries := sh.Store.Snapshot()
			for _, q := range queries {
				sh.Store.Delete(q.Key())
				sh.Overflow.Remove(q.Key())
			}
			sh.Mu.Unlock()

			for _, q := range queries {
				q.Dispose()
			}
		}
		c.engine.Close()
	})
}

/*
evict is the eviction scheduler's removal callback: the cache window for
a query elapsed with zero observers.

The observer count and registry identity are re-checked under the shard
lock; an entry that gained an observer, or was already replaced, is left
alone.
*/
func (c *Cache[V]) evict(q *types.Query[V]) {
	sh := c.selector.Select(q.Key(), c.shards)

	sh.Mu.Lock()
	current, ok := sh.Store.Get(q.Key())
	if !ok || current != q || q.Observers().Count() > 0 {
		sh.Mu.Unlock()
		return
	}
	sh.Store.Delete(q.Key())
	sh.Overflow.Remove(q.Key())
	sh.Mu.Unlock()

	q.Dispose()
	c.engine.Metrics.Evict()
}

/*
overflowLocked makes room in a shard that reached its slice of the
capacity. The shard's policy proposes victims; only queries with zero
observers are actually evicted. If every candidate is observed, the
cache exceeds capacity rather than evict an entry still in use.

Caller must hold sh.Mu.
*/
func (c *Cache[V]) overflowLocked(sh *registry.Shard[V]) {
	limit := c.capacity / len(c.shards)
	if limit < 1 {
		limit = 1
	}

	var skipped []string
	for sh.Store.Len() >= int64(limit) {
		key := sh.Overflow.Evict()
		if key == "" {
			break
		}
		victim, ok := sh.Store.Get(key)
		if !ok {
			continue
		}
		if victim.Observers().Count() > 0 {
			skipped = append(skipped, key)
			continue
		}

		sh.Store.Delete(key)
		victim.Dispose()
		c.engine.Metrics.Evict()
	}

	// Observed queries go back under policy tracking.
	for _, key := range skipped {
		sh.Overflow.OnInsert(key)
	}
}
