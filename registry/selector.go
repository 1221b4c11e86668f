package registry

import "hash/fnv"

/*
This file decides HOW a query key is assigned to a shard. Shard selection
is about spreading keys evenly so no single shard becomes a bottleneck
under concurrent access.
*/

// Selector is the interface that decides which shard owns a given key.
// The cache does not care HOW this decision is made.
type Selector[V any] interface {
	Select(string, []*Shard[V]) *Shard[V]
}

// hash converts a string key into a number. FNV is a fast,
// non-cryptographic hash commonly used for exactly this.
func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// HashSelector picks the shard by hashing the key. The same key always
// lands on the same shard, which is what makes per-shard locking sound.
type HashSelector[V any] struct{}

func (HashSelector[V]) Select(key string, shards []*Shard[V]) *Shard[V] {
	idx := int(hash(key)) % len(shards)
	return shards[idx]
}
