package event_poller

import (
	"sync"
	"time"

	"github.com/klokku/outlook-calendar/internal/utils"
)

// Throttle caches the result of a fetch function and calls it at most once
// per interval. A failed fetch keeps the previous result and does not count
// as a fetch, so the next call after the failure tries again.
type Throttle[T any] struct {
	interval time.Duration
	clock    utils.Clock

	mu        sync.Mutex
	lastFetch time.Time
	last      T
}

func NewThrottle[T any](interval time.Duration, clock utils.Clock) *Throttle[T] {
	return &Throttle[T]{interval: interval, clock: clock}
}

// Do returns the cached value when the last successful fetch is more recent
// than the interval, otherwise it calls fetch. The boolean reports whether
// fetch was called.
func (t *Throttle[T]) Do(fetch func() (T, error)) (T, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if !t.lastFetch.IsZero() && now.Sub(t.lastFetch) < t.interval {
		return t.last, false, nil
	}

	value, err := fetch()
	if err != nil {
		return t.last, true, err
	}
	t.last = value
	t.lastFetch = now
	return value, true, nil
}

// Last returns the cached value and the time it was fetched.
func (t *Throttle[T]) Last() (T, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.lastFetch
}
