// Package freshness holds the cache-staleness rules for stored threat
// records.
package freshness

import (
	"time"
)

// DefaultWindow is how long a provider verdict stays servable from cache
// before the upstream is re-queried.
const DefaultWindow = 7 * 24 * time.Hour

// Checker evaluates record freshness against a configurable window
type Checker struct {
	window time.Duration
}

// NewChecker creates a checker with the given window; non-positive values
// fall back to DefaultWindow.
func NewChecker(window time.Duration) *Checker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Checker{window: window}
}

// Window returns the configured freshness window
func (c *Checker) Window() time.Duration {
	return c.window
}

// Fresh reports whether data last updated at lastUpdate is still servable
// at the instant now. A nil or zero lastUpdate is never fresh: a record
// whose provider reported no timestamp must always be refetched.
func (c *Checker) Fresh(lastUpdate *time.Time, now time.Time) bool {
	if lastUpdate == nil || lastUpdate.IsZero() {
		return false
	}
	return now.Sub(*lastUpdate) < c.window
}

// StaleBefore returns the cutoff instant: records with last_update older
// than the returned time are due for a refresh.
func (c *Checker) StaleBefore(now time.Time) time.Time {
	return now.Add(-c.window)
}
