/*
Package executor performs the actual fetches and advances the query state
machine, guaranteeing at most one in-flight fetch per key.
*/
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krisalay/query-cache/types"
)

/*
suppressLoads disables ALL fetching while set.

This is process-wide by design: the host flips it during controlled test
or replay scenarios where no query in the process may touch the source.
It is set and cleared explicitly by the host, never scoped implicitly.
*/
var suppressLoads atomic.Bool

// SuppressLoads enables or disables fetching for the whole process.
func SuppressLoads(suppress bool) {
	suppressLoads.Store(suppress)
}

// LoadsSuppressed reports whether fetching is currently disabled.
func LoadsSuppressed() bool {
	return suppressLoads.Load()
}

/*
Executor triggers fetches for queries.

Execute is an idempotent-under-concurrency trigger: any number of monitors
may call it at any time, and the query's in-flight guard ensures exactly
one fetch function invocation occurs until that fetch resolves.
*/
type Executor[V any] struct {
	fetcher types.Fetcher[V]
	metrics types.Metrics
	clock   func() time.Time
	ctx     context.Context

	// wg tracks in-flight fetch goroutines so shutdown can wait for them.
	// There is no cancellation: a fetch started before eviction runs to
	// normal completion.
	wg sync.WaitGroup
}

// New creates an executor. A nil metrics falls back to NoopMetrics,
// a nil clock to time.Now, and a nil ctx to context.Background.
func New[V any](fetcher types.Fetcher[V], metrics types.Metrics, clock func() time.Time, ctx context.Context) *Executor[V] {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if clock == nil {
		clock = time.Now
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Executor[V]{
		fetcher: fetcher,
		metrics: metrics,
		clock:   clock,
		ctx:     ctx,
	}
}

/*
Execute triggers a fetch for the query, if one is warranted.

1. If fetching is globally suppressed, no-op.
2. If a fetch is already in flight for this key, no-op (dedup guarantee).
3. Otherwise transition to Loading (first load) or Fetching (refetch,
   prior value stays visible) and run the fetch on its own goroutine.
4. On resolution, stamp the current time and write Loaded; on error,
   fall back to the last settled snapshot.
*/
func (e *Executor[V]) Execute(q *types.Query[V]) {
	if suppressLoads.Load() {
		return
	}
	if !q.BeginFetch() {
		return
	}

	e.metrics.Fetch()
	e.wg.Add(1)
	go e.run(q)
}

func (e *Executor[V]) run(q *types.Query[V]) {
	defer e.wg.Done()

	value, err := e.fetcher.Fetch(e.ctx, q.Key())
	if err != nil {
		e.metrics.FetchError()
		q.FailFetch(err)
		return
	}
	q.CompleteFetch(value, e.clock())
}

// Wait blocks until every in-flight fetch has resolved.
// Used by cache shutdown so no fetch goroutine outlives its owner.
func (e *Executor[V]) Wait() {
	e.wg.Wait()
}
