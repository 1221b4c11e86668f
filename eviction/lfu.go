// This file implements LFU overflow selection.

package eviction

// lfuNode represents one key tracked by LFU.
type lfuNode struct {
	key  string
	freq int // how many times consumers attached to this key
}

type lfu struct {
	// nodes lets us quickly find the node for a key.
	nodes map[string]*lfuNode

	// freqMap groups keys by attach count.
	freqMap map[int]map[string]*lfuNode

	// minFreq tracks the smallest attach count currently present,
	// which avoids scanning every bucket on eviction.
	minFreq int
}

func newLFU() *lfu {
	return &lfu{
		nodes:   make(map[string]*lfuNode),
		freqMap: make(map[int]map[string]*lfuNode),
	}
}

// OnAttach bumps the key's attach count into the next frequency bucket.
func (l *lfu) OnAttach(k string) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}

	old := n.freq
	n.freq++

	delete(l.freqMap[old], k)
	if len(l.freqMap[old]) == 0 {
		delete(l.freqMap, old)
		if l.minFreq == old {
			l.minFreq++
		}
	}

	if l.freqMap[n.freq] == nil {
		l.freqMap[n.freq] = make(map[string]*lfuNode)
	}
	l.freqMap[n.freq][k] = n
}

// OnInsert starts tracking a new key with an attach count of one.
func (l *lfu) OnInsert(k string) {
	if _, ok := l.nodes[k]; ok {
		return
	}

	n := &lfuNode{key: k, freq: 1}
	l.nodes[k] = n

	if l.freqMap[1] == nil {
		l.freqMap[1] = make(map[string]*lfuNode)
	}
	l.freqMap[1][k] = n
	l.minFreq = 1
}

// Evict proposes any key in the lowest-frequency bucket. Keys sharing
// that frequency are proposed in arbitrary order.
func (l *lfu) Evict() string {
	if len(l.freqMap[l.minFreq]) == 0 {
		l.resetMinFreq()
	}
	for k := range l.freqMap[l.minFreq] {
		delete(l.freqMap[l.minFreq], k)
		delete(l.nodes, k)
		return k
	}
	return ""
}

// resetMinFreq rescans the buckets after evictions or removals emptied
// the one minFreq pointed at.
func (l *lfu) resetMinFreq() {
	l.minFreq = 0
	for f, bucket := range l.freqMap {
		if len(bucket) == 0 {
			continue
		}
		if l.minFreq == 0 || f < l.minFreq {
			l.minFreq = f
		}
	}
}

// Remove drops bookkeeping for a key that was removed outside overflow.
func (l *lfu) Remove(k string) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}
	delete(l.freqMap[n.freq], k)
	delete(l.nodes, k)
}
