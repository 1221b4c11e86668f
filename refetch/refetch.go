// This package keeps query data fresh on a fixed cadence.
// The goal of interval refetching is: "re-fetch periodically, measured
// from the latest update, without ever leaking or duplicating timers".

package refetch

import (
	"sync"
	"time"

	"github.com/krisalay/query-cache/timeutil"
	"github.com/krisalay/query-cache/types"
)

// Trigger is the slice of the executor the scheduler needs.
type Trigger[V any] interface {
	Execute(q *types.Query[V])
}

/*
Scheduler arms a single timer per query that re-invokes the executor when
UpdatedAt + RefetchInterval elapses.

REARMING DISCIPLINE:
--------------------
- on every state or settings change, the previous timer is stopped
  BEFORE a new one is armed (never two timers for one query)
- the deadline is always measured from the latest update, so a fetch
  that completes at t0+2.1s schedules the next one at t0+4.1s, not on a
  fixed wall-clock grid
- while a fetch is in flight no timer is armed; completion re-arms
- if either UpdatedAt or RefetchInterval is absent, no timer is armed
  and any existing one is cleared
- a failed fetch does not re-arm (no hot retry loop); the next
  successful update or settings change restores the cadence
*/
type Scheduler[V any] struct {
	query   *types.Query[V]
	trigger Trigger[V]
	metrics types.Metrics
	clock   func() time.Time

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewScheduler creates the interval refetch scheduler for one query.
func NewScheduler[V any](q *types.Query[V], trigger Trigger[V], metrics types.Metrics, clock func() time.Time) *Scheduler[V] {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler[V]{query: q, trigger: trigger, metrics: metrics, clock: clock}
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

	// Cancel-previous always precedes arming.
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.stopped {
		return
	}

	state := s.query.State()
	if state.InFlight() {
		// Completion will dispatch another change and re-arm from the
		// fresh timestamp.
		return
	}

	remaining, ok := timeutil.Remaining(state.UpdatedAt, s.query.Settings().RefetchInterval, s.clock())
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

	s.metrics.Refetch()
	s.trigger.Execute(s.query)
}

// Stop cancels any armed timer. The scheduler arms nothing afterwards.
func (s *Scheduler[V]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
