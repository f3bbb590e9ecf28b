package store

import (
	"context"
	"sync"

	"attesto/internal/issuer/models"
	id "attesto/pkg/domain"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[id.Principal]*models.IssuerGrant
	// order preserves grant insertion order for List.
	order []id.Principal
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{grants: make(map[id.Principal]*models.IssuerGrant)}
}

// Grant records an authorization. Granting an already authorized issuer is a
// no-op that returns the original grant.
func (s *InMemoryStore) Grant(_ context.Context, grant *models.IssuerGrant) (*models.IssuerGrant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.grants[grant.Issuer]; ok {
		clone := *existing
		return &clone, false, nil
	}
	clone := *grant
	s.grants[grant.Issuer] = &clone
	s.order = append(s.order, grant.Issuer)
	stored := clone
	return &stored, true, nil
}

func (s *InMemoryStore) IsAuthorized(_ context.Context, issuer id.Principal) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[issuer]
	return ok, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.IssuerGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.IssuerGrant, 0, len(s.order))
	for _, issuer := range s.order {
		clone := *s.grants[issuer]
		out = append(out, &clone)
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants), nil
}
