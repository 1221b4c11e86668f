package types

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the query lifecycle. The cache will call
these methods whenever something happens.
*/
type Metrics interface {

	// Hit is called when a read is served from a fresh cached value.
	Hit()

	// Miss is called when a read has no fresh value and must wait for a fetch.
	Miss()

	// Fetch is called when the executor starts a fetch.
	Fetch()

	// FetchError is called when a fetch fails and the query falls back
	// to its last settled snapshot.
	FetchError()

	// Refetch is called when the interval scheduler fires.
	Refetch()

	// Invalidate is called when a query is externally marked invalid.
	Invalidate()

	// Evict is called when a query is removed from the cache and disposed.
	Evict()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

We don't want to force every user of the cache to implement metrics.
If someone does not care about metrics, we still want the cache to work
without nil checks everywhere, so we provide a default implementation
that simply ignores all metric events.
*/
type NoopMetrics struct{}

// All methods below intentionally do nothing.
// This satisfies the Metrics interface without side effects.

func (NoopMetrics) Hit()        {}
func (NoopMetrics) Miss()       {}
func (NoopMetrics) Fetch()      {}
func (NoopMetrics) FetchError() {}
func (NoopMetrics) Refetch()    {}
func (NoopMetrics) Invalidate() {}
func (NoopMetrics) Evict()      {}
