package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attesto/internal/issuer/models"
	id "attesto/pkg/domain"
)

type IssuerStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestIssuerStoreSuite(t *testing.T) {
	suite.Run(t, new(IssuerStoreSuite))
}

func (s *IssuerStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *IssuerStoreSuite) newGrant(issuer string, at time.Time) *models.IssuerGrant {
	grant, err := models.NewIssuerGrant(id.Principal(issuer), "did:example:admin", at)
	s.Require().NoError(err)
	return grant
}

func (s *IssuerStoreSuite) TestGrantAndCheck() {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	s.Run("unknown issuer is not authorized", func() {
		ok, err := s.store.IsAuthorized(s.ctx, "did:example:unknown")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("granted issuer is authorized", func() {
		stored, created, err := s.store.Grant(s.ctx, s.newGrant("did:example:university", now))
		s.Require().NoError(err)
		s.True(created)
		s.Equal(id.Principal("did:example:university"), stored.Issuer)

		ok, err := s.store.IsAuthorized(s.ctx, "did:example:university")
		s.Require().NoError(err)
		s.True(ok)
	})
}

func (s *IssuerStoreSuite) TestRepeatGrantKeepsOriginal() {
	first := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	_, created, err := s.store.Grant(s.ctx, s.newGrant("did:example:university", first))
	s.Require().NoError(err)
	s.True(created)

	repeat, err := models.NewIssuerGrant("did:example:university", "did:example:other-admin", later)
	s.Require().NoError(err)
	stored, created, err := s.store.Grant(s.ctx, repeat)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(id.Principal("did:example:admin"), stored.AuthorizedBy, "first authorization metadata must survive")
	s.Equal(first, stored.GrantedAt)

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *IssuerStoreSuite) TestListPreservesGrantOrder() {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	issuers := []string{"did:example:c", "did:example:a", "did:example:b"}
	for i, issuer := range issuers {
		_, _, err := s.store.Grant(s.ctx, s.newGrant(issuer, base.Add(time.Duration(i)*time.Minute)))
		s.Require().NoError(err)
	}

	grants, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(grants, 3)
	for i, issuer := range issuers {
		s.Equal(id.Principal(issuer), grants[i].Issuer)
	}
}

func (s *IssuerStoreSuite) TestCloneIsolation() {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	stored, _, err := s.store.Grant(s.ctx, s.newGrant("did:example:university", now))
	s.Require().NoError(err)

	// Tampering with the returned grant must not reach the store.
	stored.AuthorizedBy = "did:example:mallory"

	grants, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.Principal("did:example:admin"), grants[0].AuthorizedBy)
}
