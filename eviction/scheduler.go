package eviction

import (
	"sync"
	"time"

	"github.com/krisalay/query-cache/timeutil"
	"github.com/krisalay/query-cache/types"
)

/*
Scheduler removes a query from the cache once its cache window elapses
with no observers and no intervening update.

This is the most delicate monitor: it must neither leak entries, nor
evict an entry that is still observed, nor leak timers.

PROTOCOL, re-run on every state/settings change:
------------------------------------------------
1. Stop any previously armed timer for this query.
2. Compute remaining = UpdatedAt + CacheTime − now. If either input is
   absent, arm nothing this round.
3. Arm a single timer for the remainder. On fire:
   - observers > 0: skip; the guard holds, and the next change
     (including the observer's eventual detach) re-arms
   - observers == 0: hand the query to the remove callback, which
     deletes it from the registry and disposes it

A detach re-arms from the unchanged UpdatedAt, so a window that already
elapsed while the query was observed evicts promptly after the last
detach. A new successful fetch re-arms from the fresh timestamp, so the
deadline always reflects the most recent data.

A failed fetch changes neither value nor timestamp; the already-armed
timer stays correct and is left alone.
*/
type Scheduler[V any] struct {
	query  *types.Query[V]
	clock  func() time.Time
	remove func(q *types.Query[V])

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewScheduler creates the eviction scheduler for one query. The remove
// callback owns the registry deletion; only the cache may mutate the map.
func NewScheduler[V any](q *types.Query[V], clock func() time.Time, remove func(q *types.Query[V])) *Scheduler[V] {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler[V]{query: q, clock: clock, remove: remove}
}

func (s *Scheduler[V]) OnQueryChanged(q *types.Query[V], reason types.Change) {
	if reason == types.ChangeFailure {
		return
	}
	s.rearm()
}

func (s *Scheduler[V]) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.stopped {
		return
	}

	state := s.query.State()
	remaining, ok := timeutil.Remaining(state.UpdatedAt, s.query.Settings().CacheTime, s.clock())
	if !ok {
		return
	}
	s.timer = time.AfterFunc(remaining, s.fire)
}

func (s *Scheduler[V]) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.query.Observers().Count() > 0 {
		// Still in use. The observer's detach dispatches a change,
		// which re-arms the timer.
		return
	}
	s.remove(s.query)
}

// Stop cancels any armed timer. Called when the query is disposed.
func (s *Scheduler[V]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
