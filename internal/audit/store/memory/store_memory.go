// Package memory holds the in-process audit event log.
package memory

import (
	"context"
	"sync"

	"attesto/internal/audit"
	id "attesto/pkg/domain"
)

// InMemoryStore is an ordered, append-only event log. One slice carries
// commit order; per-subject reads filter it rather than maintaining a second
// index that could disagree with the log.
type InMemoryStore struct {
	mu        sync.RWMutex
	log       []audit.Event
	published map[uint64]struct{}
	nextSeq   uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{published: make(map[uint64]struct{}), nextSeq: 1}
}

// Clear empties the log. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.published = make(map[uint64]struct{})
	s.nextSeq = 1
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Seq = s.nextSeq
	s.nextSeq++
	s.log = append(s.log, event)
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject id.Principal) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []audit.Event
	for _, e := range s.log {
		if e.Subject == subject {
			events = append(events, e)
		}
	}
	return events, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.log...), nil
}

// ListRecent returns the last N events in commit order.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.log) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.log[start:]...), nil
}

// NextBatch returns up to limit unpublished events in commit order.
func (s *InMemoryStore) NextBatch(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var batch []audit.Event
	for _, e := range s.log {
		if len(batch) >= limit {
			break
		}
		if _, ok := s.published[e.Seq]; ok {
			continue
		}
		batch = append(batch, e)
	}
	return batch, nil
}

// MarkPublished acknowledges external publication of the given sequences.
func (s *InMemoryStore) MarkPublished(_ context.Context, seqs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seq := range seqs {
		s.published[seq] = struct{}{}
	}
	return nil
}
