package registry

import (
	"sync"

	"github.com/krisalay/query-cache/eviction"
)

/*
This file defines what a "Shard" is. A shard is a small, independent piece
of the query registry. Instead of one big map and one big lock, we split
the registry into many shards. Each shard:
- Holds some portion of the queries
- Has its own overflow policy instance
- Has its own lock for writes

Lookups stay lock-free; only creation and removal take the shard lock.
*/

type Shard[V any] struct {

	// Store holds the key → query mapping for this shard, backed by a
	// copy-on-write map so lookups never lock.
	Store Store[V]

	// Overflow decides which unobserved query should be removed when
	// this shard runs out of capacity. Each shard has its OWN policy
	// instance, which avoids shared state across shards.
	Overflow eviction.Policy

	// Mu protects write operations (create, remove, overflow) and the
	// Overflow policy's bookkeeping.
	Mu sync.Mutex
}

func NewShard[V any](policy eviction.Policy) *Shard[V] {
	return &Shard[V]{
		Store:    NewCOWStore[V](),
		Overflow: policy,
	}
}
