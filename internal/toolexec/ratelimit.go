package toolexec

import (
	"sync"
	"time"
)

// DefaultRateWindow is the length of a tool's admission window.
const DefaultRateWindow = 60 * time.Second

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter counts admissions per tool inside a fixed window that resets
// lazily: a window is only rolled over by the next Admit call after it
// expired, never by a timer.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	window  time.Duration
	clock   Clock
}

// NewRateLimiter creates a limiter. Non-positive window falls back to
// DefaultRateWindow; a nil clock falls back to SystemClock.
func NewRateLimiter(window time.Duration, clock Clock) *RateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		window:  window,
		clock:   clock,
	}
}

// Admit charges one call to name. A non-positive limit always admits and
// leaves no state behind.
func (l *RateLimiter) Admit(name string, limit int) error {
	if limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.windows[name]
	if !ok {
		w = &rateWindow{start: now}
		l.windows[name] = w
	}
	if now.Sub(w.start) >= l.window {
		w.start = now
		w.count = 0
	}
	if w.count >= limit {
		return &RateLimitError{
			Tool:       name,
			Limit:      limit,
			Window:     l.window,
			RetryAfter: l.window - now.Sub(w.start),
		}
	}
	w.count++
	return nil
}

// Count returns the admissions recorded in name's current window. An
// expired window reports zero without being reset.
func (l *RateLimiter) Count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[name]
	if !ok {
		return 0
	}
	if l.clock.Now().Sub(w.start) >= l.window {
		return 0
	}
	return w.count
}

// Reset discards name's window.
func (l *RateLimiter) Reset(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, name)
}
