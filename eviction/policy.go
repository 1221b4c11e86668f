package eviction

/*
This file defines how the cache decides which UNOBSERVED query to remove
when a capacity limit is exceeded.

Time-based eviction (the cache window) is handled by the Scheduler in this
package; the Policy only handles capacity overflow.
*/

/*
Policy is the interface that all overflow strategies must follow.

The cache does NOT care how victim selection works internally.
It only calls these methods, always under the owning shard's lock.

A policy proposes victims; the cache itself enforces the rule that a
query with attached observers is never evicted.
*/
type Policy interface {

	// OnAttach is called whenever a consumer attaches to a query.
	//
	// Some strategies care about attach activity:
	// - LRU needs to know what was used recently
	// - LFU counts how often a key is used
	//
	// FIFO ignores this.
	OnAttach(string)

	// OnInsert is called whenever a query is added to the cache.
	//
	// This lets the policy track insertion order or initialize
	// per-key bookkeeping.
	OnInsert(string)

	// Remove is called when a query is removed for any reason other
	// than overflow (explicit removal, cache-window eviction), so the
	// policy can drop its bookkeeping for that key.
	Remove(string)

	// Evict is called when the cache is over capacity. The policy
	// returns the key it would remove next, or "" when it tracks
	// nothing. The cache then decides whether the victim is actually
	// evictable.
	Evict() string
}

// PolicyType is a simple identifier for supported overflow strategies.
type PolicyType string

const (
	// LRU evicts the query that has gone the longest without a consumer attach.
	LRU PolicyType = "LRU"

	// LFU evicts the query with the fewest consumer attaches.
	LFU PolicyType = "LFU"

	// FIFO evicts the oldest inserted query, regardless of use.
	FIFO PolicyType = "FIFO"
)

// NewPolicy is a small factory function.
// Given a PolicyType, it creates the correct overflow policy.
func NewPolicy(t PolicyType) Policy {
	switch t {
	case LRU:
		return newLRU()
	case LFU:
		return newLFU()
	case FIFO:
		return newFIFO()
	default:
		panic("unknown eviction policy")
	}
}
