package memstore

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// RateLimiter is a sliding-log limiter: a key may make limit calls in any
// window-long span. Entries idle for a window are evicted by the cache janitor.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   *cache.Cache
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		hits:   cache.New(window, 2*window),
	}
}

func (l *RateLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var log []time.Time
	if v, ok := l.hits.Get(key); ok {
		log = trim(v.([]time.Time), now.Add(-l.window))
	}
	if len(log) >= l.limit {
		l.hits.Set(key, log, cache.DefaultExpiration)
		return false
	}
	l.hits.Set(key, append(log, now), cache.DefaultExpiration)
	return true
}

// Prune drops keys with no hits inside the window and reports how many went.
func (l *RateLimiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	n := 0
	for key, item := range l.hits.Items() {
		log := trim(item.Object.([]time.Time), cutoff)
		if len(log) == 0 {
			l.hits.Delete(key)
			n++
			continue
		}
		l.hits.Set(key, log, cache.DefaultExpiration)
	}
	return n
}

// trim returns the suffix of log newer than cutoff.
func trim(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	return append([]time.Time(nil), log[i:]...)
}
