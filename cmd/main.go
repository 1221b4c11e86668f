package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/eviction"
	"github.com/krisalay/query-cache/executor"
	"github.com/krisalay/query-cache/notify"
	"github.com/krisalay/query-cache/types"
)

// ================= SOURCE OF TRUTH =================

type UserDirectory struct {
	mu      sync.RWMutex
	data    map[string]string
	fetches int
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{data: map[string]string{
		"user:1": "alice",
		"user:2": "bob",
	}}
}

func (d *UserDirectory) Fetch(ctx context.Context, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches++
	fmt.Println("SOURCE → fetch:", key)
	return d.data[key], nil
}

func (d *UserDirectory) Rename(key, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = name
}

// ================= METRICS =================

type Metrics struct {
	mu         sync.Mutex
	hits       int
	misses     int
	fetches    int
	refetches  int
	invalidate int
	evictions  int
}

func (m *Metrics) Hit()        { m.mu.Lock(); m.hits++; m.mu.Unlock() }
func (m *Metrics) Miss()       { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *Metrics) Fetch()      { m.mu.Lock(); m.fetches++; m.mu.Unlock() }
func (m *Metrics) FetchError() {}
func (m *Metrics) Refetch()    { m.mu.Lock(); m.refetches++; m.mu.Unlock() }
func (m *Metrics) Invalidate() { m.mu.Lock(); m.invalidate++; m.mu.Unlock() }
func (m *Metrics) Evict()      { m.mu.Lock(); m.evictions++; m.mu.Unlock() }

func (m *Metrics) Print() {
	fmt.Println("\n==================== METRICS ====================")
	fmt.Printf("HITS        : %d\n", m.hits)
	fmt.Printf("MISSES      : %d\n", m.misses)
	fmt.Printf("FETCHES     : %d\n", m.fetches)
	fmt.Printf("REFETCHES   : %d\n", m.refetches)
	fmt.Printf("INVALIDATES : %d\n", m.invalidate)
	fmt.Printf("EVICTIONS   : %d\n", m.evictions)
}

// ================= MAIN =================

func main() {
	ctx := context.Background()

	fmt.Println("\n==================== SYSTEM BOOT ====================")

	fmt.Println("STALENESS       : StaleAfterUpdate")
	fmt.Println("OVERFLOW POLICY : LRU")
	fmt.Println("SHARDS          : 4")
	fmt.Println("DELIVERY        : Buffered")

	// ---------------- Source ----------------
	directory := NewUserDirectory()

	// ---------------- Metrics ----------------
	metrics := &Metrics{}

	// ---------------- Change delivery ----------------
	notifier := notify.NewBuffered[string](256, func(ev notify.Event[string]) {
		if ev.Reason == types.ChangeTransition {
			fmt.Printf("NOTIFY → %s is now %s\n", ev.Key, ev.State.Status)
		}
	})

	// ---------------- Sync engine ----------------
	eng := engine.NewSyncEngine[string](
		types.FetcherFunc[string](directory.Fetch),
		nil,
		notifier,
		metrics,
	)

	cache := querycache.New[string](
		4,
		20,
		eviction.LRU,
		eng,
	)

	settings := &types.Settings{
		StaleTime: types.Window(500 * time.Millisecond),
		CacheTime: types.Window(1 * time.Second),
	}

	// ====================================================
	fmt.Println("\n==================== 1) ATTACH TRIGGERS FIRST FETCH ====================")
	q, detach := cache.Attach("user:1", settings)
	time.Sleep(50 * time.Millisecond)
	fmt.Println("CACHE  → state:", q.State().Status, "value:", q.State().Value)

	// ====================================================
	fmt.Println("\n==================== 2) FRESH HIT ====================")
	v, _ := cache.Get(ctx, "user:1")
	fmt.Println("CACHE  → GET user:1 =", v)

	// ====================================================
	fmt.Println("\n==================== 3) INVALIDATION FORCES REFETCH ====================")
	directory.Rename("user:1", "alice-cooper")
	cache.Invalidate("user:1")
	time.Sleep(50 * time.Millisecond)
	v, _ = cache.Get(ctx, "user:1")
	fmt.Println("CACHE  → GET user:1 after invalidate =", v)

	// ====================================================
	fmt.Println("\n==================== 4) CONCURRENT READERS, ONE FETCH ====================")

	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			val, _ := cache.Get(ctx, "user:2")
			fmt.Printf("GOROUTINE-%d → GET user:2 = %v\n", id, val)
		}(i)
	}
	wg.Wait()

	// ====================================================
	fmt.Println("\n==================== 5) SUPPRESSION ====================")
	executor.SuppressLoads(true)
	cache.Refetch("user:1")
	fmt.Println("CACHE  → refetch while suppressed is a no-op")
	executor.SuppressLoads(false)

	// ====================================================
	fmt.Println("\n==================== 6) DETACH AND EVICTION ====================")
	detach.Detach()
	fmt.Println("CACHE  → entries before cache window:", cache.Len())
	time.Sleep(1200 * time.Millisecond)
	fmt.Println("CACHE  → entries after cache window:", cache.Len())

	// ====================================================
	metrics.Print()

	// ====================================================
	fmt.Println("\n==================== SHUTDOWN ====================")
	cache.Close()
	fmt.Println("SYSTEM → cache closed cleanly")
}
