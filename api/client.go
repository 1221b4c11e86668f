package querycache

import (
	"context"

	"github.com/krisalay/query-cache/types"
)

/*
Client defines the PUBLIC API of the query cache.
This is a contract that guarantees certain behaviors, without exposing
internals. All of the details (sharding, monitors, timers, dedup, change
delivery) are hidden behind this interface.
*/
type Client[V any] interface {

	/*
		GetOrCreate returns the query entity for a key.

		BEHAVIOR:
		---------
		1. If the key exists in the cache:
		   - Return the live query immediately

		2. If the key does NOT exist:
		   - Create it in the Created state with zero observers
		   - Wire it with the engine's monitors
		   - Return it

		Settings apply only on creation.
	*/
	GetOrCreate(key string, settings *types.Settings) *types.Query[V]

	/*
		Attach registers a consumer on a query.

		BEHAVIOR:
		---------
		- Increments the shared observer count
		- Runs the staleness check (a consumer mounting onto missing
		  or stale data triggers a fetch right away)
		- Returns a guard whose Detach decrements the count exactly
		  once, on any exit path

		IMPORTANT:
		----------
		- While the count is above zero the entry is never evicted,
		  regardless of elapsed time
	*/
	Attach(key string, settings *types.Settings) (*types.Query[V], *types.DetachGuard)

	/*
		Get retrieves the value for a key, read-through style.

		BEHAVIOR:
		---------
		1. Fresh cached value: returned immediately (hit)
		2. Missing, stale, or invalid: a fetch is triggered and
		   awaited (miss); concurrent callers share one wait
		3. Failed fetch with a prior value: the prior value is
		   returned; with no prior value, the fetch error
	*/
	Get(ctx context.Context, key string) (V, error)

	/*
		Peek returns the current state of a key without creating the
		query and without triggering any fetch.
	*/
	Peek(key string) (types.State[V], bool)

	/*
		SetData stores a value for a key directly, bypassing the
		fetch path.

		BEHAVIOR:
		---------
		- The query is created if missing
		- Staleness, refetch and eviction deadlines re-arm from the
		  new timestamp, exactly as after a successful fetch
	*/
	SetData(key string, value V)

	/*
		Invalidate marks the current value for a key untrustworthy.

		BEHAVIOR:
		---------
		- Forces a refetch attempt regardless of the staleness window
		- Deduplicated: signaling twice before the fetch resolves
		  still produces exactly one fetch
		- A no-op for unknown keys and queries that never loaded

		USE CASES:
		----------
		- Data consistency after a mutation
		- External change notifications
	*/
	Invalidate(key string)

	// InvalidateAll invalidates every query currently in the cache.
	InvalidateAll()

	/*
		Refetch triggers a fetch for an existing key, deduplicated by
		the executor. A no-op for unknown keys.
	*/
	Refetch(key string)

	/*
		Remove deletes a key from the cache immediately and disposes
		its query, regardless of the cache window.

		This operation is idempotent:
		- Removing a non-existing key is safe
	*/
	Remove(key string)

	// Len returns the number of queries currently in the cache.
	Len() int

	/*
		Close gracefully shuts down the cache.

		BEHAVIOR:
		---------
		- Disposes every query and cancels every armed timer
		- Waits for in-flight fetches (no cancellation)
		- Drains and closes the change notifier

		WHEN TO CALL:
		-------------
		- Application shutdown
		- Tests cleanup
	*/
	Close()
}
