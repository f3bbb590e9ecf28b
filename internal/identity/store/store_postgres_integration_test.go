//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attesto/internal/identity/models"
	"attesto/internal/identity/store"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
	"attesto/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "identities")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newDocument(owner string) *models.IdentityDocument {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	doc, err := models.NewIdentityDocument(id.Principal(owner), "z6Mk"+uuid.NewString(), "https://agent.example/"+owner, now)
	s.Require().NoError(err)
	return doc
}

func (s *PostgresStoreSuite) TestCreateAndFindRoundTrip() {
	ctx := context.Background()
	doc := s.newDocument("did:example:"+uuid.NewString())

	s.Require().NoError(s.store.Create(ctx, doc))

	found, err := s.store.FindByOwner(ctx, doc.Owner)
	s.Require().NoError(err)
	s.Equal(doc.Owner, found.Owner)
	s.Equal(doc.PublicKey, found.PublicKey)
	s.Equal(doc.ServiceEndpoint, found.ServiceEndpoint)
	s.True(found.Active)
	s.WithinDuration(doc.CreatedAt, found.CreatedAt, time.Microsecond)
	s.WithinDuration(doc.UpdatedAt, found.UpdatedAt, time.Microsecond)
}

func (s *PostgresStoreSuite) TestFindUnknownOwner() {
	_, err := s.store.FindByOwner(context.Background(), id.Principal("did:example:"+uuid.NewString()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentCreateSameOwner verifies the one-document-per-principal
// invariant under contention: exactly one of 50 racing registrations wins.
func (s *PostgresStoreSuite) TestConcurrentCreateSameOwner() {
	ctx := context.Background()
	owner := "did:example:" + uuid.NewString()
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			doc := s.newDocument(owner)
			err := s.store.Create(ctx, doc)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get conflict error")

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestExecutePersistsUpdate() {
	ctx := context.Background()
	doc := s.newDocument("did:example:"+uuid.NewString())
	s.Require().NoError(s.store.Create(ctx, doc))

	later := doc.CreatedAt.Add(time.Hour)
	updated, err := s.store.Execute(ctx, doc.Owner,
		func(d *models.IdentityDocument) error { return d.CanUpdate() },
		func(d *models.IdentityDocument) { d.ApplyUpdate("z6MkRotated", "https://agent.example/next", later) },
	)
	s.Require().NoError(err)
	s.Equal("z6MkRotated", updated.PublicKey)

	found, err := s.store.FindByOwner(ctx, doc.Owner)
	s.Require().NoError(err)
	s.Equal("z6MkRotated", found.PublicKey)
	s.Equal("https://agent.example/next", found.ServiceEndpoint)
	s.WithinDuration(later, found.UpdatedAt, time.Microsecond)
	s.WithinDuration(doc.CreatedAt, found.CreatedAt, time.Microsecond, "creation time never changes")
}

func (s *PostgresStoreSuite) TestExecuteValidationFailureWritesNothing() {
	ctx := context.Background()
	doc := s.newDocument("did:example:"+uuid.NewString())
	s.Require().NoError(s.store.Create(ctx, doc))

	wantErr := errors.New("rejected")
	_, err := s.store.Execute(ctx, doc.Owner,
		func(*models.IdentityDocument) error { return wantErr },
		func(d *models.IdentityDocument) { d.PublicKey = "z6MkNever" },
	)
	s.ErrorIs(err, wantErr)

	found, err := s.store.FindByOwner(ctx, doc.Owner)
	s.Require().NoError(err)
	s.Equal(doc.PublicKey, found.PublicKey)
}

func (s *PostgresStoreSuite) TestExecuteUnknownOwner() {
	_, err := s.store.Execute(context.Background(), id.Principal("did:example:ghost"),
		func(*models.IdentityDocument) error { return nil },
		func(*models.IdentityDocument) {},
	)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentUpdatesDistinctOwners verifies independent rows do not
// contend: 50 parallel updates across 50 owners all succeed.
func (s *PostgresStoreSuite) TestConcurrentUpdatesDistinctOwners() {
	ctx := context.Background()
	const goroutines = 50

	owners := make([]id.Principal, goroutines)
	for i := range owners {
		doc := s.newDocument("did:example:"+uuid.NewString())
		s.Require().NoError(s.store.Create(ctx, doc))
		owners[i] = doc.Owner
	}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(owner id.Principal) {
			defer wg.Done()
			_, err := s.store.Execute(ctx, owner,
				func(d *models.IdentityDocument) error { return d.CanUpdate() },
				func(d *models.IdentityDocument) {
					d.ApplyUpdate("z6Mk"+uuid.NewString(), d.ServiceEndpoint, time.Now().UTC())
				},
			)
			if err != nil {
				failures.Add(1)
			}
		}(owners[i])
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load(), "updates to distinct owners should not interfere")
}
