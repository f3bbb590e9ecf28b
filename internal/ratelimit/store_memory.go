package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore implements Store with a per-key sliding window. Suitable for
// single-instance deployments and tests; replicas do not share counters.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

type slidingWindow struct {
	hits   []time.Time
	window time.Duration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{windows: make(map[string]*slidingWindow)}
}

// Allow records a hit unless the key already spent its limit within the
// window. Denied hits are not recorded, so a throttled caller cannot push its
// own reset time forward.
func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		w = &slidingWindow{window: window}
		s.windows[key] = w
	}

	now := time.Now()
	w.expire(now)

	if len(w.hits) >= limit {
		return &Result{
			Allowed: false,
			Limit:   limit,
			ResetAt: w.hits[0].Add(window),
		}, nil
	}

	w.hits = append(w.hits, now)
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.hits),
		ResetAt:   w.hits[0].Add(window),
	}, nil
}

// Reset clears the counter for a key.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// expire drops hits that have left the window. Hits are appended in time
// order, so the suffix after the first survivor is the live window.
func (w *slidingWindow) expire(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for ; i < len(w.hits); i++ {
		if w.hits[i].After(cutoff) {
			break
		}
	}
	w.hits = w.hits[i:]
}
