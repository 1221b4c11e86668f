// Package timeutil holds the window arithmetic shared by every monitor:
// given a last-update timestamp and a window length, how long until the
// value turns stale / evictable?
package timeutil

import "time"

// Until returns the time remaining until a window measured from updatedAt
// elapses. A zero or negative result means the window has already elapsed.
func Until(updatedAt time.Time, window time.Duration, now time.Time) time.Duration {
	return window - now.Sub(updatedAt)
}

/*
Remaining is the optional-aware variant of Until.

Both inputs must be present for a window to exist at all:
- a zero updatedAt means the value was never produced
- a nil window means the concern is not configured

When either is missing, ok is false and the caller must not arm a timer.
*/
func Remaining(updatedAt time.Time, window *time.Duration, now time.Time) (time.Duration, bool) {
	if updatedAt.IsZero() || window == nil {
		return 0, false
	}
	return Until(updatedAt, *window, now), true
}

// Elapsed reports whether the window measured from updatedAt has fully
// passed. A missing window never elapses.
func Elapsed(updatedAt time.Time, window *time.Duration, now time.Time) bool {
	d, ok := Remaining(updatedAt, window, now)
	return ok && d <= 0
}
