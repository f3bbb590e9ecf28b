package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"attesto/internal/issuer/models"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/circuit"
)

var (
	grantCacheCheckDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attesto_issuer_grant_cache_check_duration_ms",
		Help:    "Latency of cached issuer authorization checks in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
	grantCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attesto_issuer_grant_cache_hits_total",
		Help: "Issuer authorization checks answered by the cache",
	})
	grantCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attesto_issuer_grant_cache_misses_total",
		Help: "Issuer authorization checks that fell through to the store",
	})
)

const (
	// Redis key holding the set of authorized issuer principals
	authorizedIssuersKey = "issuers:authorized"
)

// RedisGrantCache is a positive membership cache of authorized issuers.
// Absence means "unknown", never "unauthorized": grants are additive and
// permanent, so a cached positive can never go stale and a lost cache only
// costs a store read.
type RedisGrantCache struct {
	client *redis.Client
}

// NewRedisGrantCache constructs a Redis-backed grant cache. The client
// lifecycle is managed externally.
func NewRedisGrantCache(client *redis.Client) *RedisGrantCache {
	return &RedisGrantCache{client: client}
}

func (c *RedisGrantCache) Add(ctx context.Context, issuer id.Principal) error {
	return c.client.SAdd(ctx, authorizedIssuersKey, issuer.String()).Err()
}

func (c *RedisGrantCache) Contains(ctx context.Context, issuer id.Principal) (bool, error) {
	start := time.Now()
	defer func() {
		grantCacheCheckDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()
	return c.client.SIsMember(ctx, authorizedIssuersKey, issuer.String()).Result()
}

// GrantCache is the cache contract CachedStore layers over its inner store.
type GrantCache interface {
	Add(ctx context.Context, issuer id.Principal) error
	Contains(ctx context.Context, issuer id.Principal) (bool, error)
}

// cacheProbeEvery is how many authorization checks pass between cache probes
// while the breaker is open.
const cacheProbeEvery = 100

// CachedStore fronts a persistent grant store with a membership cache on the
// credential issuance hot path. Cache failures never fail a check: a circuit
// breaker sidelines the cache after repeated errors and lets an occasional
// probe through until it recovers.
type CachedStore struct {
	inner   Store
	cache   GrantCache
	logger  *slog.Logger
	breaker *circuit.Breaker

	skipped atomic.Uint64
}

// CachedStoreOption configures a CachedStore.
type CachedStoreOption func(*CachedStore)

// WithLogger sets the logger for cache state transitions.
func WithLogger(logger *slog.Logger) CachedStoreOption {
	return func(s *CachedStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCachedStore wraps inner with cache.
func NewCachedStore(inner Store, cache GrantCache, opts ...CachedStoreOption) *CachedStore {
	s := &CachedStore{
		inner:   inner,
		cache:   cache,
		logger:  slog.Default(),
		breaker: circuit.New("issuer-grant-cache"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Grant delegates to the persistent store. The cache is populated on read,
// not on write: Grant runs inside the caller's transaction, and caching
// before commit could leak a grant that later rolls back.
func (s *CachedStore) Grant(ctx context.Context, grant *models.IssuerGrant) (*models.IssuerGrant, bool, error) {
	return s.inner.Grant(ctx, grant)
}

// IsAuthorized answers from the cache when possible and reads through to the
// store on a miss, caching a positive answer for the next check.
func (s *CachedStore) IsAuthorized(ctx context.Context, issuer id.Principal) (bool, error) {
	if s.cacheUsable() {
		hit, err := s.cache.Contains(ctx, issuer)
		switch {
		case err != nil:
			s.recordCacheFailure(ctx, err)
		case hit:
			s.recordCacheSuccess(ctx)
			grantCacheHits.Inc()
			return true, nil
		default:
			s.recordCacheSuccess(ctx)
			grantCacheMisses.Inc()
		}
	}

	authorized, err := s.inner.IsAuthorized(ctx, issuer)
	if err != nil || !authorized {
		return authorized, err
	}

	if s.cacheUsable() {
		if err := s.cache.Add(ctx, issuer); err != nil {
			s.recordCacheFailure(ctx, err)
		} else {
			s.recordCacheSuccess(ctx)
		}
	}
	return true, nil
}

func (s *CachedStore) List(ctx context.Context) ([]*models.IssuerGrant, error) {
	return s.inner.List(ctx)
}

func (s *CachedStore) Count(ctx context.Context) (int, error) {
	return s.inner.Count(ctx)
}

func (s *CachedStore) cacheUsable() bool {
	if !s.breaker.IsOpen() {
		return true
	}
	// Let the occasional check through so recovery is noticed.
	return s.skipped.Add(1)%cacheProbeEvery == 0
}

func (s *CachedStore) recordCacheFailure(ctx context.Context, err error) {
	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.logger.ErrorContext(ctx, "issuer grant cache sidelined after repeated errors",
			"error", err,
		)
	}
}

func (s *CachedStore) recordCacheSuccess(ctx context.Context) {
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "issuer grant cache recovered")
	}
}
