package registry

import (
	"sync/atomic"

	"github.com/krisalay/query-cache/types"
)

/*
This file defines how live queries are actually stored inside a shard.
This is NOT a normal map.
- Lookups happen on every read, attach, and monitor re-evaluation,
  so they should be very fast and should NOT require locks
- Inserts and evictions are rare and can afford extra work

To achieve this, we use a technique called: "Copy-On-Write" (COW)
*/

// Store is the interface used by a shard to hold query entities.
type Store[V any] interface {

	// Get retrieves a query by key.
	Get(string) (*types.Query[V], bool)

	// Put inserts or replaces a query.
	Put(string, *types.Query[V])

	// Delete removes a query.
	Delete(string)

	// Len returns how many queries are stored.
	Len() int64

	// Snapshot returns the current set of queries. The slice is built
	// from an immutable map version, so iterating it is always safe.
	Snapshot() []*types.Query[V]
}

/*
cowStore is a Copy-On-Write implementation of Store.

- Readers always see an immutable snapshot
- Writers create a NEW copy of the map
- The new map replaces the old one atomically

This gives us lock-free lookups on the hot path and a very simple
concurrency model; writers serialize on the owning shard's mutex.
*/
type cowStore[V any] struct {
	data atomic.Value // stores map[string]*types.Query[V]
	size atomic.Int64
}

// NewCOWStore creates an empty copy-on-write store.
func NewCOWStore[V any]() Store[V] {
	s := &cowStore[V]{}
	s.data.Store(make(map[string]*types.Query[V]))
	return s
}

// Get retrieves a query from the store without locking.
func (s *cowStore[V]) Get(key string) (*types.Query[V], bool) {
	m := s.data.Load().(map[string]*types.Query[V])
	q, ok := m[key]
	return q, ok
}

// Put inserts or replaces a query by building a new map copy and
// swapping it in atomically.
func (s *cowStore[V]) Put(key string, q *types.Query[V]) {
	old := s.data.Load().(map[string]*types.Query[V])

	n := make(map[string]*types.Query[V], len(old)+1)
	for k, v := range old {
		n[k] = v
	}
	n[key] = q

	s.data.Store(n)
	s.size.Store(int64(len(n)))
}

// Delete removes a query, again by copy-and-swap.
func (s *cowStore[V]) Delete(key string) {
	old := s.data.Load().(map[string]*types.Query[V])
	if _, ok := old[key]; !ok {
		return
	}

	n := make(map[string]*types.Query[V], len(old))
	for k, v := range old {
		if k != key {
			n[k] = v
		}
	}

	s.data.Store(n)
	s.size.Store(int64(len(n)))
}

// Len returns the number of stored queries.
func (s *cowStore[V]) Len() int64 {
	return s.size.Load()
}

// Snapshot returns every stored query at one map version.
func (s *cowStore[V]) Snapshot() []*types.Query[V] {
	m := s.data.Load().(map[string]*types.Query[V])
	out := make([]*types.Query[V], 0, len(m))
	for _, q := range m {
		out = append(out, q)
	}
	return out
}
