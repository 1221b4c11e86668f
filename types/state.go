package types

import "time"

// This file defines the observable state of a single query.

/*
Status identifies where a query currently is in its data lifecycle.

The lifecycle is a small state machine:

	Created → Loading → Loaded
	Loaded  → Fetching → Loaded
	Loaded  → Invalid → Fetching → Loaded

There is no terminal status; the machine lives as long as the query entity.
*/
type Status int

const (
	// Created means the query exists but has never been fetched.
	Created Status = iota

	// Loading means the FIRST fetch is in flight. There is no prior value to show.
	Loading

	// Fetching means a refetch is in flight.
	// The prior value is retained and still readable while we wait.
	Fetching

	// Loaded means the query holds a settled value, stamped with the time it was produced.
	Loaded

	// Invalid means an external signal marked the current value untrustworthy.
	// The value is still readable, but must be refetched before being trusted.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Loading:
		return "loading"
	case Fetching:
		return "fetching"
	case Loaded:
		return "loaded"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

/*
State is one observation of a query's data.

It is a plain value: callers get a copy and can hold on to it safely
while the query itself keeps moving.

FIELDS:
-------
- Status:    where the query is in its lifecycle
- Value:     the last produced value (only meaningful when HasValue is true)
- HasValue:  whether Value carries real data. Loading has no value;
             Fetching and Invalid keep the PRIOR value visible.
- UpdatedAt: when the value was produced. Zero means "never updated".
             Fetching and Invalid keep the prior timestamp, because the
             data they show is still the old data.
*/
type State[V any] struct {
	Status    Status
	Value     V
	HasValue  bool
	UpdatedAt time.Time
}

// InFlight reports whether a fetch is represented by this observation.
func (s State[V]) InFlight() bool {
	return s.Status == Loading || s.Status == Fetching
}

/*
Change describes WHY a query dispatched a change notification.

Monitors use the reason to stay idempotent:
- freshness checks only run on attach, so a completed fetch cannot
  immediately re-trigger itself when the staleness window is zero
- schedulers skip ChangeFailure, so a persistently failing fetch
  cannot turn into a hot retry loop
*/
type Change int

const (
	// ChangeTransition means the state machine moved (fetch started,
	// fetch settled, value set directly, or value invalidated).
	ChangeTransition Change = iota

	// ChangeSettings means the staleness/cache/refetch windows were updated.
	ChangeSettings

	// ChangeAttach means a consumer attached to the query.
	ChangeAttach

	// ChangeDetach means a consumer detached from the query.
	ChangeDetach

	// ChangeFailure means a fetch failed and the query reverted to its
	// last settled snapshot. Monitors must NOT schedule new work for this.
	ChangeFailure
)

/*
Settings are the per-query synchronization windows.

A nil duration means "not configured":
- StaleTime nil:       loaded data is never considered stale
- CacheTime nil:       an unobserved entry is never evicted by time
- RefetchInterval nil: no periodic refetch
*/
type Settings struct {
	// StaleTime is how long after UpdatedAt the data stays fresh.
	StaleTime *time.Duration

	// CacheTime is how long after the LAST update an entry with zero
	// observers survives before it is evicted from the cache.
	CacheTime *time.Duration

	// RefetchInterval re-triggers a fetch on a fixed cadence, measured
	// from the latest update (not a fixed wall-clock grid).
	RefetchInterval *time.Duration
}

// Window is a small helper for building Settings literals.
func Window(d time.Duration) *time.Duration {
	return &d
}
