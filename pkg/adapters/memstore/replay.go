package memstore

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// ReplayStore remembers keys for window. Claims are atomic within a process.
type ReplayStore struct {
	mu     sync.Mutex
	window time.Duration
	seen   *cache.Cache
}

func NewReplayStore(window time.Duration) *ReplayStore {
	return &ReplayStore{
		window: window,
		seen:   cache.New(window, 2*window),
	}
}

func (s *ReplayStore) Claim(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key, now) {
		return false
	}
	s.seen.Set(key, now, cache.DefaultExpiration)
	return true
}

func (s *ReplayStore) Contains(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(key, now)
}

func (s *ReplayStore) live(key string, now time.Time) bool {
	v, ok := s.seen.Get(key)
	return ok && now.Sub(v.(time.Time)) < s.window
}

func (s *ReplayStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, item := range s.seen.Items() {
		if now.Sub(item.Object.(time.Time)) >= s.window {
			s.seen.Delete(key)
			n++
		}
	}
	return n
}

// Len is the number of keys currently held, expired or not.
func (s *ReplayStore) Len() int {
	return s.seen.ItemCount()
}
