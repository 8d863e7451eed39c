package orchestrator

import (
	"sync"
	"time"
)

// RatePolicy is the fixed-window ceiling for one route. A zero Ceiling means
// the orchestrator default applies.
type RatePolicy struct {
	Ceiling int           `yaml:"ceiling"`
	Window  time.Duration `yaml:"window"`
}

// windowLimiter tracks rolling counters keyed by (route, caller). Windows are
// created lazily and reset when they elapse; the map is size-bounded the same
// way the platform bounds its per-key limiters.
type windowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

const maxTrackedWindows = 10000

func newWindowLimiter() *windowLimiter {
	return &windowLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// allow consumes one request from the (route, caller) window. When the
// ceiling is already reached it rejects without incrementing and reports how
// long until the window resets.
func (l *windowLimiter) allow(route, caller string, policy RatePolicy) (bool, time.Duration) {
	key := route + "|" + caller
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		if len(l.windows) >= maxTrackedWindows {
			l.evictExpiredLocked(now)
		}
		w = &window{}
		l.windows[key] = w
	}

	if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(policy.Window)
	}

	if w.count >= policy.Ceiling {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

func (l *windowLimiter) evictExpiredLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
