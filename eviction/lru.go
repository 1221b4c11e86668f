// This file implements LRU overflow selection.

package eviction

// lruNode represents ONE key inside the LRU structure. We use a
// doubly-linked list to track attach order.
type lruNode struct {
	key  string
	prev *lruNode
	next *lruNode
}

// lru is the concrete implementation of the LRU overflow policy.
// "Recently used" here means "recently attached by a consumer".
type lru struct {
	// nodes maps keys to their list nodes, so moves are O(1).
	nodes map[string]*lruNode

	// head points to the most recently attached key.
	head *lruNode

	// tail points to the least recently attached key.
	tail *lruNode
}

func newLRU() *lru {
	return &lru{nodes: make(map[string]*lruNode)}
}

// OnAttach marks a key as recently used by moving its node to the front.
func (l *lru) OnAttach(k string) {
	if n, ok := l.nodes[k]; ok {
		l.moveToFront(n)
	}
}

// OnInsert starts tracking a new key at the front. An already-tracked key
// is left where it is; attaches handle recency.
func (l *lru) OnInsert(k string) {
	if _, ok := l.nodes[k]; ok {
		return
	}
	n := &lruNode{key: k}
	l.nodes[k] = n
	l.addFront(n)
}

// Evict proposes the least recently attached key, always at the tail.
func (l *lru) Evict() string {
	if l.tail == nil {
		return ""
	}
	k := l.tail.key
	l.remove(l.tail)
	delete(l.nodes, k)
	return k
}

// Remove drops bookkeeping for a key that was removed outside overflow.
func (l *lru) Remove(k string) {
	if n, ok := l.nodes[k]; ok {
		l.remove(n)
		delete(l.nodes, k)
	}
}

func (l *lru) addFront(n *lruNode) {
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *lru) remove(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (l *lru) moveToFront(n *lruNode) {
	l.remove(n)
	l.addFront(n)
}
