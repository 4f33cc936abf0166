// Package ratelimit provides a fixed-window attempt limiter keyed by
// an arbitrary string. Used to throttle credential guessing on the
// login endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts attempts per key in a fixed window. When the window
// expires the key's count resets.
type Limiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// New builds a limiter allowing max attempts per key per window.
// max <= 0 or window <= 0 disables limiting.
func New(max int, win time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  win,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records an attempt for key and reports whether it is within
// the limit. The attempt is counted even when denied, so a client
// hammering the endpoint never slips through on window rollover.
func (l *Limiter) Allow(key string) bool {
	if l.max <= 0 || l.window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.max
}

// Reset clears the count for key. Called after a successful attempt so
// legitimate users are not locked out by their own typos.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
}

// Prune drops expired windows. Call periodically on long-lived
// limiters to bound memory.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
}
