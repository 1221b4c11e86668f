package types

import (
	"sync"
	"sync/atomic"
)

/*
SharedCounter counts the consumers currently attached to a query.

The count is shared between the query and every attached consumer's detach
hook, so it must stay consistent no matter which goroutine touches it.
A single atomic integer is enough: there is no compound state to protect.

The counter is the ONLY signal the eviction scheduler consults to decide
"is anyone still using this entry".
*/
type SharedCounter struct {
	n atomic.Int64
}

// Inc records one new attached consumer.
func (c *SharedCounter) Inc() {
	c.n.Add(1)
}

/*
Dec records one detached consumer.

The count going negative means a detach ran without a matching attach.
That is a programming error, not a recoverable condition, so we panic
instead of papering over it.
*/
func (c *SharedCounter) Dec() {
	if c.n.Add(-1) < 0 {
		panic("querycache: observer count went negative")
	}
}

// Count returns the current number of attached consumers.
func (c *SharedCounter) Count() int64 {
	return c.n.Load()
}

/*
DetachGuard ties a consumer's detach to its own teardown.

Attach hands one of these to the consumer; calling Detach decrements the
observer count exactly once, no matter how many times it is called or on
how many exit paths. This is what keeps the counter honest:
#attach − #detach at every point, never negative.
*/
type DetachGuard struct {
	once    sync.Once
	release func()
}

// NewDetachGuard wraps a release function so it runs at most once.
func NewDetachGuard(release func()) *DetachGuard {
	return &DetachGuard{release: release}
}

// Detach releases the consumer's hold on the query. Safe to call repeatedly.
func (g *DetachGuard) Detach() {
	g.once.Do(g.release)
}
