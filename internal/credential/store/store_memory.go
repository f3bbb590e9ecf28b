// Package store provides credential record persistence: the records
// themselves, the per-subject issuance index, and the per-issuer sequence
// counters that feed the fingerprint derivation. The in-memory
// implementation backs tests and single-node deployments; PostgreSQL backs
// everything else.
package store

import (
	"context"
	"sync"

	"attesto/internal/credential/models"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu           sync.RWMutex
	records      map[id.CredentialID]*models.CredentialRecord
	subjectIndex map[id.Principal][]id.CredentialID
	sequences    map[id.Principal]uint64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records:      make(map[id.CredentialID]*models.CredentialRecord),
		subjectIndex: make(map[id.Principal][]id.CredentialID),
		sequences:    make(map[id.Principal]uint64),
	}
}

// Issue allocates the issuer's next sequence number, hands it to build, and
// commits the built record together with its subject index entry. The
// sequence is consumed only on success: when build fails nothing is written
// and the same number is handed out again next time.
func (s *InMemoryStore) Issue(
	_ context.Context,
	issuer id.Principal,
	build func(sequence uint64) (*models.CredentialRecord, error),
) (*models.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sequence := s.sequences[issuer] + 1
	rec, err := build(sequence)
	if err != nil {
		return nil, err
	}

	clone := *rec
	s.records[clone.ID] = &clone
	s.subjectIndex[clone.Subject] = append(s.subjectIndex[clone.Subject], clone.ID)
	s.sequences[issuer] = sequence

	result := clone
	return &result, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, credID id.CredentialID) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[credID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

// Execute runs validate and mutate on the record while holding the store
// lock, so the check and the change apply atomically.
func (s *InMemoryStore) Execute(
	_ context.Context,
	credID id.CredentialID,
	validate func(*models.CredentialRecord) error,
	mutate func(*models.CredentialRecord),
) (*models.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[credID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := *rec
	if err := validate(&working); err != nil {
		return nil, err
	}
	mutate(&working)

	s.records[credID] = &working
	clone := working
	return &clone, nil
}

// ListBySubject returns the subject's full issuance index in issuance order,
// revoked and expired entries included. Unknown subjects get an empty index,
// not an error: an empty index is a valid answer.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject id.Principal) ([]id.CredentialID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index := s.subjectIndex[subject]
	out := make([]id.CredentialID, len(index))
	copy(out, index)
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
