//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attesto/internal/issuer/models"
	"attesto/internal/issuer/store"
	id "attesto/pkg/domain"
	"attesto/pkg/testutil/containers"
)

const cachedIssuersKey = "issuers:authorized"

type RedisGrantCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *store.RedisGrantCache
}

func TestRedisGrantCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisGrantCacheSuite))
}

func (s *RedisGrantCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = store.NewRedisGrantCache(s.redis.Client)
}

func (s *RedisGrantCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisGrantCacheSuite) grantTo(inner store.Store, issuer id.Principal) {
	grant, err := models.NewIssuerGrant(issuer, "did:example:admin", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	_, _, err = inner.Grant(context.Background(), grant)
	s.Require().NoError(err)
}

func (s *RedisGrantCacheSuite) TestReadThroughCachesPositiveAnswer() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())

	inner := store.NewInMemory()
	s.grantTo(inner, issuer)
	cached := store.NewCachedStore(inner, s.cache)

	authorized, err := cached.IsAuthorized(ctx, issuer)
	s.Require().NoError(err)
	s.True(authorized)

	// The miss populated the membership set.
	member, err := s.redis.Client.SIsMember(ctx, cachedIssuersKey, issuer.String()).Result()
	s.Require().NoError(err)
	s.True(member, "positive answer should be cached after the first check")

	authorized, err = cached.IsAuthorized(ctx, issuer)
	s.Require().NoError(err)
	s.True(authorized)
}

func (s *RedisGrantCacheSuite) TestCachedPositiveAnswersWithoutStore() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())

	s.Require().NoError(s.cache.Add(ctx, issuer))

	// An empty inner store proves the answer came from the cache. Safe only
	// because grants are additive: a cached positive cannot go stale.
	cached := store.NewCachedStore(store.NewInMemory(), s.cache)
	authorized, err := cached.IsAuthorized(ctx, issuer)
	s.Require().NoError(err)
	s.True(authorized)
}

func (s *RedisGrantCacheSuite) TestNegativeAnswerIsNeverCached() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())

	cached := store.NewCachedStore(store.NewInMemory(), s.cache)
	authorized, err := cached.IsAuthorized(ctx, issuer)
	s.Require().NoError(err)
	s.False(authorized)

	member, err := s.redis.Client.SIsMember(ctx, cachedIssuersKey, issuer.String()).Result()
	s.Require().NoError(err)
	s.False(member, "absence means unknown, not unauthorized; caching it would block a later grant")
}

func (s *RedisGrantCacheSuite) TestGrantPopulatesCacheOnReadNotWrite() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())

	cached := store.NewCachedStore(store.NewInMemory(), s.cache)
	grant, err := models.NewIssuerGrant(issuer, "did:example:admin", time.Now().UTC())
	s.Require().NoError(err)
	_, created, err := cached.Grant(ctx, grant)
	s.Require().NoError(err)
	s.True(created)

	// Grant may run inside an uncommitted transaction; caching happens on
	// the first read instead.
	member, err := s.redis.Client.SIsMember(ctx, cachedIssuersKey, issuer.String()).Result()
	s.Require().NoError(err)
	s.False(member, "writes must not populate the cache")

	authorized, err := cached.IsAuthorized(ctx, issuer)
	s.Require().NoError(err)
	s.True(authorized)

	member, err = s.redis.Client.SIsMember(ctx, cachedIssuersKey, issuer.String()).Result()
	s.Require().NoError(err)
	s.True(member)
}
