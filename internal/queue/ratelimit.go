package queue

import (
	"sync"
	"time"
)

// RateLimiter admits at most rate actions per key inside a sliding window.
// Expired timestamps are pruned lazily on every call.
type RateLimiter struct {
	mu     sync.Mutex
	rate   int
	window time.Duration
	stamps map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter builds a limiter admitting rate actions per window.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rate:   rate,
		window: window,
		stamps: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records and admits one action for key if the window has capacity.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(key, now)
	if len(kept) >= l.rate {
		return false
	}
	l.stamps[key] = append(kept, now)
	return true
}

// Remaining reports how many actions key may still take in the current window.
func (l *RateLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, l.now())
	if n := l.rate - len(kept); n > 0 {
		return n
	}
	return 0
}

func (l *RateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	stamps := l.stamps[key]
	kept := stamps[:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.stamps[key] = kept
	return kept
}
