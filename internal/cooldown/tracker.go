// Package cooldown enforces the per-(platform,asset) waiting period
// between trade entries.
package cooldown

import (
	"sync"
	"time"
)

// OpenPositions is the slice of the trade store the tracker needs.
type OpenPositions interface {
	HasOpenTrade(platform, asset string) (bool, error)
}

// Tracker remembers the last trade time per platform+asset key and
// decides whether a new entry is allowed. The effective window doubles
// while a position is still open for the key, so the bot does not
// stack entries on an unresolved position.
type Tracker struct {
	mu        sync.Mutex
	lastTrade map[string]time.Time

	base      time.Duration
	positions OpenPositions
	now       func() time.Time
}

// NewTracker builds a tracker with the given base window.
func NewTracker(base time.Duration, positions OpenPositions) *Tracker {
	return &Tracker{
		lastTrade: make(map[string]time.Time),
		base:      base,
		positions: positions,
		now:       time.Now,
	}
}

// Seed loads last-trade times recovered from storage. Called once at
// startup so a restart does not reset every cooldown.
func (t *Tracker) Seed(times map[string]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range times {
		if existing, ok := t.lastTrade[k]; !ok || v.After(existing) {
			t.lastTrade[k] = v
		}
	}
}

// RecordTrade marks a successful entry for the key. Only called after
// the broker accepted the order; blocked or rejected attempts never
// extend the window.
func (t *Tracker) RecordTrade(platform, asset string) {
	t.mu.Lock()
	t.lastTrade[platform+"|"+asset] = t.now()
	t.mu.Unlock()
}

// Allowed reports whether a new entry may proceed and, when it may
// not, how long until it can. A key with no recorded trade is always
// allowed. Errors from the position lookup fall back to the base
// window rather than blocking the attempt outright.
func (t *Tracker) Allowed(platform, asset string) (bool, time.Duration) {
	key := platform + "|" + asset

	t.mu.Lock()
	last, seen := t.lastTrade[key]
	t.mu.Unlock()

	if !seen {
		return true, 0
	}

	window := t.base
	if open, err := t.positions.HasOpenTrade(platform, asset); err == nil && open {
		window *= 2
	}

	elapsed := t.now().Sub(last)
	if elapsed >= window {
		return true, 0
	}
	return false, window - elapsed
}

// Remaining returns the outstanding wait for every tracked key. Used
// by the status endpoint.
func (t *Tracker) Remaining() map[string]time.Duration {
	t.mu.Lock()
	keys := make(map[string]time.Time, len(t.lastTrade))
	for k, v := range t.lastTrade {
		keys[k] = v
	}
	t.mu.Unlock()

	out := make(map[string]time.Duration)
	for key, last := range keys {
		window := t.base
		sep := -1
		for i := range key {
			if key[i] == '|' {
				sep = i
				break
			}
		}
		if sep > 0 {
			if open, err := t.positions.HasOpenTrade(key[:sep], key[sep+1:]); err == nil && open {
				window *= 2
			}
		}
		if rem := window - t.now().Sub(last); rem > 0 {
			out[key] = rem
		}
	}
	return out
}
