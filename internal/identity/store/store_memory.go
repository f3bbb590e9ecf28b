// Package store provides identity document persistence. The in-memory
// implementation backs tests and single-node deployments; PostgreSQL backs
// everything else.
package store

import (
	"context"
	"sync"

	"attesto/internal/identity/models"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[id.Principal]*models.IdentityDocument
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{documents: make(map[id.Principal]*models.IdentityDocument)}
}

// Create inserts a document, rejecting a second document for the same owner.
func (s *InMemoryStore) Create(_ context.Context, doc *models.IdentityDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.Owner]; ok {
		return sentinel.ErrConflict
	}
	clone := *doc
	s.documents[doc.Owner] = &clone
	return nil
}

func (s *InMemoryStore) FindByOwner(_ context.Context, owner id.Principal) (*models.IdentityDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[owner]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

// Execute runs validate and mutate on the owner's document while holding the
// store lock, so the check and the change apply atomically.
func (s *InMemoryStore) Execute(
	_ context.Context,
	owner id.Principal,
	validate func(*models.IdentityDocument) error,
	mutate func(*models.IdentityDocument),
) (*models.IdentityDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[owner]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := *doc
	if err := validate(&working); err != nil {
		return nil, err
	}
	mutate(&working)

	s.documents[owner] = &working
	clone := working
	return &clone, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}
