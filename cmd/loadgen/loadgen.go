package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/eviction"
	"github.com/krisalay/query-cache/types"
)

// Load generator: hammers one cache from many goroutines with a mix of
// reads, attaches, and invalidations, then reports throughput.

const (
	shards     = 8
	capacity   = 200000
	keySpace   = 100000
	goroutines = 200
	opsPerG    = 5000
)

type slowSource struct{}

func (slowSource) Fetch(ctx context.Context, key string) (string, error) {
	// Simulated source latency.
	time.Sleep(time.Millisecond)
	return "value-" + key, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ctx := context.Background()

	logger.Info("load generator starting",
		"shards", shards,
		"capacity", capacity,
		"key_space", keySpace,
		"goroutines", goroutines,
		"ops_per_goroutine", opsPerG,
	)

	eng := engine.NewSyncEngine[string](slowSource{}, nil, nil, nil)
	cache := querycache.New[string](shards, capacity, eviction.LRU, eng)
	defer cache.Close()

	settings := &types.Settings{
		StaleTime: types.Window(time.Minute),
		CacheTime: types.Window(time.Minute),
	}

	start := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for i := 0; i < opsPerG; i++ {
				key := fmt.Sprintf("k%d", rng.Intn(keySpace))

				switch rng.Intn(10) {
				case 0:
					_, guard := cache.Attach(key, settings)
					guard.Detach()
				case 1:
					cache.Invalidate(key)
				default:
					if _, err := cache.Get(ctx, key); err != nil {
						logger.Error("get failed", "key", key, "error", err)
					}
				}
			}
		}(int64(g))
	}
	wg.Wait()

	elapsed := time.Since(start)
	total := goroutines * opsPerG

	logger.Info("load generator done",
		"ops", total,
		"elapsed", elapsed,
		"ops_per_sec", int(float64(total)/elapsed.Seconds()),
		"entries", cache.Len(),
	)
}
