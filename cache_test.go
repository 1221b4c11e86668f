package querycache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/eviction"
	"github.com/krisalay/query-cache/executor"
	"github.com/krisalay/query-cache/notify"
	"github.com/krisalay/query-cache/types"
)

// The no-leaked-timers property: every test closes its cache, and no
// timer callback or fetch goroutine may survive it.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

//
// ================= TEST SOURCE =================
//

type TestSource struct {
	mu    sync.RWMutex
	data  map[string]string
	calls atomic.Int64
	delay time.Duration
	err   error
}

func NewTestSource() *TestSource {
	return &TestSource{data: make(map[string]string)}
}

func (s *TestSource) Fetch(ctx context.Context, key string) (string, error) {
	s.calls.Add(1)

	s.mu.RLock()
	delay, err, value := s.delay, s.err, s.data[key]
	s.mu.RUnlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *TestSource) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *TestSource) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *TestSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

//
// ================= HELPERS =================
//

func newTestCache(source *TestSource) *querycache.Cache[string] {
	eng := engine.NewSyncEngine[string](source, nil, nil, nil)
	return querycache.New[string](2, 0, eviction.LRU, eng)
}

func waitSettled(t *testing.T, q *types.Query[string]) {
	t.Helper()
	select {
	case <-q.Settled():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not settle in time")
	}
}

//
// ================= SCENARIO A: ATTACH TRIGGERS FIRST FETCH =================
//

func TestAttachImmediatelyFetchesStaleData(t *testing.T) {
	source := NewTestSource()
	source.Set("user:1", "alice")

	var mu sync.Mutex
	var seen []types.Status
	notifier := notify.NewDirect[string](func(ev notify.Event[string]) {
		if ev.Reason == types.ChangeTransition {
			mu.Lock()
			seen = append(seen, ev.State.Status)
			mu.Unlock()
		}
	})
	eng := engine.NewSyncEngine[string](source, nil, notifier, nil)
	cache := querycache.New[string](2, 0, eviction.LRU, eng)
	defer cache.Close()

	q, detach := cache.Attach("user:1", &types.Settings{StaleTime: types.Window(0)})
	defer detach.Detach()
	waitSettled(t, q)

	// The settled channel closes just before the final change dispatch;
	// give the listener a moment to observe it.
	time.Sleep(50 * time.Millisecond)

	if got := source.calls.Load(); got != 1 {
		t.Fatalf("attach must trigger exactly one fetch, got %d", got)
	}

	st := q.State()
	if st.Status != types.Loaded || st.Value != "alice" {
		t.Fatalf("unexpected state %+v", st)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != types.Loading || seen[1] != types.Loaded {
		t.Fatalf("expected created→loading→loaded, observed transitions %v", seen)
	}
}

//
// ================= SCENARIO B: STALENESS WINDOW =================
//

func TestStalenessWindowGatesRefetchOnAttach(t *testing.T) {
	source := NewTestSource()
	source.Set("user:1", "alice")
	cache := newTestCache(source)
	defer cache.Close()

	settings := &types.Settings{StaleTime: types.Window(80 * time.Millisecond)}

	q, detach := cache.Attach("user:1", settings)
	waitSettled(t, q)
	detach.Detach()
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("expected 1 initial fetch, got %d", got)
	}

	// Inside the staleness window: no fetch.
	time.Sleep(40 * time.Millisecond)
	_, detach = cache.Attach("user:1", settings)
	detach.Detach()
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("fresh data must not refetch on attach, got %d", got)
	}

	// Past the window: attach refetches.
	time.Sleep(60 * time.Millisecond)
	q, detach = cache.Attach("user:1", settings)
	waitSettled(t, q)
	detach.Detach()
	if got := source.calls.Load(); got != 2 {
		t.Fatalf("stale data must refetch on attach, got %d", got)
	}
}

//
// ================= SCENARIO C: CACHE WINDOW EVICTION =================
//

func TestUnobservedEntryEvictedAfterCacheWindow(t *testing.T) {
	source := NewTestSource()
	source.Set("user:1", "alice")
	cache := newTestCache(source)
	defer cache.Close()

	q, detach := cache.Attach("user:1", &types.Settings{CacheTime: types.Window(80 * time.Millisecond)})
	waitSettled(t, q)
	detach.Detach()

	time.Sleep(40 * time.Millisecond)
	if cache.Len() != 1 {
		t.Fatal("entry must survive inside its cache window")
	}

	time.Sleep(100 * time.Millisecond)
	if cache.Len() != 0 {
		t.Fatal("unobserved entry must be evicted once the window elapses")
	}
	if !q.Disposed() {
		t.Fatal("the evicted query must be disposed")
	}
}

//
// ================= SCENARIO D: OBSERVERS BLOCK EVICTION =================
//

func TestObservedEntryIsNeverEvicted(t *testing.T) {
	source := NewTestSource()
	source.Set("user:1", "alice")
	cache := newTestCache(source)
	defer cache.Close()

	settings := &types.Settings{CacheTime: types.Window(80 * time.Millisecond)}

	q, detach := cache.Attach("user:1", settings)
	waitSettled(t, q)
	detach.Detach()

	// A new observer shows up just before the deadline.
	time.Sleep(40 * time.Millisecond)
	_, detach2 := cache.Attach("user:1", settings)
	defer detach2.Detach()

	time.Sleep(100 * time.Millisecond)
	if cache.Len() != 1 {
		t.Fatal("an observed entry is never removed, regardless of elapsed time")
	}
}

//
// ================= SCENARIO F: INVALIDATION DEDUP =================
//

func TestDoubleInvalidationFetchesOnce(t *testing.T) {
	source := NewTestSource()
	source.Set("user:1", "alice")
	cache := newTestCache(source)
	defer cache.Close()

	q, detach := cache.Attach("user:1", &types.Settings{StaleTime: types.Window(time.Hour)})
	defer detach.Detach()
	waitSettled(t, q)

	source.SetDelay(60 * time.Millisecond)
	cache.Invalidate("user:1")
	cache.Invalidate("user:1") // second signal lands while the fetch is in flight

	waitSettled(t, q)
	time.Sleep(20 * time.Millisecond)

	if got := source.calls.Load(); got != 2 {
		t.Fatalf("double invalidation must produce exactly one refetch, got %d total fetches", got)
	}
	if got := q.State().Status; got != types.Loaded {
		t.Fatalf("resolution must settle as loaded, got %v", got)
	}
}

//
// ================= DEDUP UNDER CONCURRENCY =================
//

func TestConcurrentRefetchTriggersFetchOnce(t *testing.T) {
	source := NewTestSource()
	source.Set("k", "v")
	source.SetDelay(50 * time.Millisecond)
	cache := newTestCache(source)
	defer cache.Close()

	q := cache.GetOrCreate("k", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Refetch("k")
		}()
	}
	wg.Wait()
	waitSettled(t, q)

	if got := source.calls.Load(); got != 1 {
		t.Fatalf("concurrent triggers must collapse to one fetch, got %d", got)
	}
}

//
// ================= OBSERVER BOOKKEEPING =================
//

func TestObserverCountTracksAttachAndDetach(t *testing.T) {
	source := NewTestSource()
	cache := newTestCache(source)
	defer cache.Close()

	settings := &types.Settings{StaleTime: types.Window(time.Hour)}

	q, d1 := cache.Attach("k", settings)
	waitSettled(t, q)
	_, d2 := cache.Attach("k", settings)
	_, d3 := cache.Attach("k", settings)

	if got := q.Observers().Count(); got != 3 {
		t.Fatalf("expected 3 observers, got %d", got)
	}

	d2.Detach()
	d2.Detach() // the guard releases exactly once
	if got := q.Observers().Count(); got != 2 {
		t.Fatalf("expected 2 observers after one detach, got %d", got)
	}

	d1.Detach()
	d3.Detach()
	if got := q.Observers().Count(); got != 0 {
		t.Fatalf("expected 0 observers, got %d", got)
	}
}

//
// ================= REARM ON UPDATE =================
//

func TestEvictionDeadlineRearmsFromNewestUpdate(t *testing.T) {
	source := NewTestSource()
	cache := newTestCache(source)
	defer cache.Close()

	cache.GetOrCreate("k", &types.Settings{CacheTime: types.Window(80 * time.Millisecond)})
	cache.SetData("k", "v1")

	time.Sleep(50 * time.Millisecond)
	cache.SetData("k", "v2") // discards the old deadline

	time.Sleep(50 * time.Millisecond)
	if cache.Len() != 1 {
		t.Fatal("the deadline must be measured from the newest update")
	}

	time.Sleep(80 * time.Millisecond)
	if cache.Len() != 0 {
		t.Fatal("entry must be evicted once the rearmed window elapses")
	}
}

//
// ================= READ-THROUGH GET =================
//

func TestGetMissThenHit(t *testing.T) {
	source := NewTestSource()
	source.Set("k", "v")
	cache := newTestCache(source)
	defer cache.Close()
	ctx := context.Background()

	cache.GetOrCreate("k", &types.Settings{StaleTime: types.Window(time.Hour)})

	v, err := cache.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("miss should load from source, got (%q, %v)", v, err)
	}
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}

	v, err = cache.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("hit should serve from cache, got (%q, %v)", v, err)
	}
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("a fresh hit must not fetch, got %d", got)
	}
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	source := NewTestSource()
	source.Set("k", "v")
	source.SetDelay(50 * time.Millisecond)
	cache := newTestCache(source)
	defer cache.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := cache.Get(ctx, "k"); err != nil || v != "v" {
				t.Errorf("unexpected result (%q, %v)", v, err)
			}
		}()
	}
	wg.Wait()

	if got := source.calls.Load(); got != 1 {
		t.Fatalf("concurrent readers must share one fetch, got %d", got)
	}
}

func TestGetServesLastGoodValueOnFailure(t *testing.T) {
	source := NewTestSource()
	source.Set("k", "v")
	cache := newTestCache(source)
	defer cache.Close()
	ctx := context.Background()

	q := cache.GetOrCreate("k", nil)
	if _, err := cache.Get(ctx, "k"); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	source.SetError(errors.New("source down"))
	cache.Invalidate("k")
	waitSettled(t, q)

	v, err := cache.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("stale data beats no data, got (%q, %v)", v, err)
	}
	if q.LastError() == nil {
		t.Fatal("the failure must still be observable on the query")
	}
}

func TestGetReturnsErrorWhenNothingLoaded(t *testing.T) {
	source := NewTestSource()
	source.SetError(errors.New("source down"))
	cache := newTestCache(source)
	defer cache.Close()

	_, err := cache.Get(context.Background(), "k")
	if err == nil {
		t.Fatal("a failed first load with no prior value must surface the error")
	}
}

//
// ================= SUPPRESSION =================
//

func TestSuppressionDisablesAllFetching(t *testing.T) {
	source := NewTestSource()
	source.Set("k", "v")
	cache := newTestCache(source)
	defer cache.Close()

	executor.SuppressLoads(true)
	defer executor.SuppressLoads(false)

	q, detach := cache.Attach("k", nil)
	defer detach.Detach()

	// Attach, invalidate, refetch, and read-through are all inert.
	cache.Invalidate("k")
	cache.Refetch("k")
	v, err := cache.Get(context.Background(), "k")

	if got := source.calls.Load(); got != 0 {
		t.Fatalf("no fetch may run while suppressed, got %d", got)
	}
	if v != "" || err != nil {
		t.Fatalf("suppressed Get returns whatever is held, got (%q, %v)", v, err)
	}
	if got := q.State().Status; got != types.Created {
		t.Fatalf("state must not advance while suppressed, got %v", got)
	}
}

//
// ================= DIRECT WRITES, PEEK, REMOVE =================
//

func TestSetDataAndPeek(t *testing.T) {
	source := NewTestSource()
	cache := newTestCache(source)
	defer cache.Close()

	if _, ok := cache.Peek("k"); ok {
		t.Fatal("peek must not create entries")
	}

	cache.SetData("k", "direct")

	st, ok := cache.Peek("k")
	if !ok || st.Status != types.Loaded || st.Value != "direct" {
		t.Fatalf("unexpected peeked state %+v (ok=%v)", st, ok)
	}
	if got := source.calls.Load(); got != 0 {
		t.Fatalf("direct writes must not touch the source, got %d fetches", got)
	}
}

func TestRemoveDisposesImmediately(t *testing.T) {
	source := NewTestSource()
	cache := newTestCache(source)
	defer cache.Close()

	q := cache.GetOrCreate("k", &types.Settings{CacheTime: types.Window(time.Hour)})
	cache.SetData("k", "v")

	cache.Remove("k")
	cache.Remove("k") // idempotent

	if cache.Len() != 0 {
		t.Fatal("removed entry must be gone")
	}
	if !q.Disposed() {
		t.Fatal("removed entry must be disposed")
	}
}

func TestInvalidateAll(t *testing.T) {
	source := NewTestSource()
	source.Set("a", "1")
	source.Set("b", "2")
	source.SetDelay(20 * time.Millisecond)
	cache := newTestCache(source)
	defer cache.Close()

	qa := cache.GetOrCreate("a", nil)
	qb := cache.GetOrCreate("b", nil)
	cache.SetData("a", "1")
	cache.SetData("b", "2")

	cache.InvalidateAll()
	waitSettled(t, qa)
	waitSettled(t, qb)

	if got := source.calls.Load(); got != 2 {
		t.Fatalf("invalidate-all must refetch every loaded query, got %d", got)
	}
}

//
// ================= CAPACITY OVERFLOW =================
//

func TestOverflowEvictsOnlyUnobservedQueries(t *testing.T) {
	source := NewTestSource()
	eng := engine.NewSyncEngine[string](source, nil, nil, nil)
	cache := querycache.New[string](1, 2, eviction.FIFO, eng)
	defer cache.Close()

	_, pin := cache.Attach("pinned", &types.Settings{StaleTime: types.Window(time.Hour)})
	defer pin.Detach()

	cache.GetOrCreate("idle", nil)
	cache.GetOrCreate("next", nil) // over capacity: the unobserved "idle" goes

	if _, ok := cache.Peek("pinned"); !ok {
		t.Fatal("an observed query must survive overflow")
	}
	if _, ok := cache.Peek("idle"); ok {
		t.Fatal("the unobserved query should have been evicted")
	}
	if _, ok := cache.Peek("next"); !ok {
		t.Fatal("the newly created query must be present")
	}
}

//
// ================= SHUTDOWN =================
//

func TestCloseDisposesEverything(t *testing.T) {
	source := NewTestSource()
	source.Set("k", "v")
	cache := newTestCache(source)

	q, detach := cache.Attach("k", &types.Settings{
		CacheTime:       types.Window(time.Hour),
		RefetchInterval: types.Window(time.Hour),
	})
	waitSettled(t, q)
	detach.Detach()

	cache.Close()
	cache.Close() // idempotent

	if cache.Len() != 0 {
		t.Fatal("close must empty the cache")
	}
	if !q.Disposed() {
		t.Fatal("close must dispose every query")
	}
}
