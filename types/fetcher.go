package types

import "context"

// Fetcher is the contract between the cache and the source of truth.
type Fetcher[V any] interface {

	/*
		Fetch produces the current value for a key.

		1. The executor decides a (re)fetch is needed
		2. Fetch is called with the query's key
		3. The source (DB/API/computation) produces the value
		4. The executor stamps the time and stores the result

		Fetch may block; it runs on its own goroutine and the query's
		prior value stays readable while it is in flight.

		An error leaves the query on its last settled snapshot. The
		engine does not retry; the next attach, invalidation, or
		interval tick will try again.
	*/
	Fetch(ctx context.Context, key string) (V, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc[V any] func(ctx context.Context, key string) (V, error)

func (f FetcherFunc[V]) Fetch(ctx context.Context, key string) (V, error) {
	return f(ctx, key)
}
