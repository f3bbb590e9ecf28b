// Command server runs the attesto registry: identity, issuer and credential
// APIs over one HTTP listener, with audit events streamed to Kafka when a
// broker is configured.
//
// Deployment shape is driven entirely by environment: without DATABASE_URL
// the registry runs on in-memory stores (useful for development and tests),
// without REDIS_URL the issuer grant cache is skipped, without KAFKA_BROKERS
// audit events stay in the store.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"attesto/internal/audit"
	"attesto/internal/audit/relay"
	auditmem "attesto/internal/audit/store/memory"
	auditpg "attesto/internal/audit/store/postgres"
	credentialhandler "attesto/internal/credential/handler"
	credmetrics "attesto/internal/credential/metrics"
	credentialsvc "attesto/internal/credential/service"
	credstore "attesto/internal/credential/store"
	httpapi "attesto/internal/http"
	identityhandler "attesto/internal/identity/handler"
	identitymetrics "attesto/internal/identity/metrics"
	identitysvc "attesto/internal/identity/service"
	identitystore "attesto/internal/identity/store"
	issuerhandler "attesto/internal/issuer/handler"
	issuermetrics "attesto/internal/issuer/metrics"
	"attesto/internal/issuer/policy"
	issuersvc "attesto/internal/issuer/service"
	issuerstore "attesto/internal/issuer/store"
	jwttoken "attesto/internal/jwt_token"
	"attesto/internal/platform/config"
	"attesto/internal/platform/httpserver"
	"attesto/internal/platform/logger"
	"attesto/internal/platform/postgres"
	platformredis "attesto/internal/platform/redis"
	"attesto/internal/ratelimit"
)

const (
	jwtIssuer   = "attesto"
	jwtAudience = "attesto-api"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres. Absent configuration selects the in-memory stores.
	db, err := postgres.Open(cfg.Database)
	if err != nil {
		fatal(log, "postgres connection failed", err)
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			fatal(log, "postgres migration failed", err)
		}
		log.Info("postgres connected")
	} else {
		log.Warn("DATABASE_URL not set, state will not survive a restart")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		fatal(log, "redis connection failed", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("redis connected, issuer grant cache enabled")
	}

	// Audit trail. The store doubles as the Kafka outbox; in postgres
	// deployments sync mode appends inside the operation's transaction.
	var auditStore audit.Store
	var auditOutbox audit.Outbox
	if db != nil {
		pgAudit := auditpg.New(db)
		auditStore = pgAudit
		auditOutbox = pgAudit
	} else {
		memAudit := auditmem.NewInMemoryStore()
		auditStore = memAudit
		auditOutbox = memAudit
	}

	auditMetrics := audit.NewMetrics()
	auditOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(auditMetrics),
	}
	if cfg.Audit.Mode == "async" {
		auditOpts = append(auditOpts, audit.WithAsyncBuffer(cfg.Audit.BufferSize))
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)
	defer publisher.Close()

	authorizer, err := policy.New(cfg.Issuer.Mode, cfg.Issuer.Allowlist, cfg.Issuer.AdminTokenHash, log)
	if err != nil {
		fatal(log, "issuer policy configuration invalid", err)
	}
	log.Info("issuer authorization policy loaded", "mode", cfg.Issuer.Mode)

	// Stores and services. One transaction runner serves all three services;
	// with in-memory stores each service falls back to its sharded lock.
	var registryTx *registryPostgresTx
	if db != nil {
		registryTx = newRegistryPostgresTx(db, cfg.Database.TxTimeout)
	}

	var identityStore identitysvc.Store
	identityOpts := []identitysvc.Option{
		identitysvc.WithLogger(log),
		identitysvc.WithAuditPublisher(publisher),
		identitysvc.WithMetrics(identitymetrics.New()),
	}
	if db != nil {
		identityStore = identitystore.NewPostgres(db)
		identityOpts = append(identityOpts, identitysvc.WithStoreTx(registryTx))
	} else {
		identityStore = identitystore.NewInMemory()
	}
	identities := identitysvc.New(identityStore, identityOpts...)

	var grantStore issuerstore.Store
	issuerOpts := []issuersvc.Option{
		issuersvc.WithLogger(log),
		issuersvc.WithAuditPublisher(publisher),
		issuersvc.WithMetrics(issuermetrics.New()),
	}
	if db != nil {
		grantStore = issuerstore.NewPostgres(db)
		issuerOpts = append(issuerOpts, issuersvc.WithStoreTx(registryTx))
	} else {
		grantStore = issuerstore.NewInMemory()
	}
	if redisClient != nil {
		grantStore = issuerstore.NewCachedStore(grantStore,
			issuerstore.NewRedisGrantCache(redisClient.Client),
			issuerstore.WithLogger(log),
		)
	}
	issuers := issuersvc.New(grantStore, authorizer, issuerOpts...)

	var credentialStore credentialsvc.Store
	credentialOpts := []credentialsvc.Option{
		credentialsvc.WithLogger(log),
		credentialsvc.WithAuditPublisher(publisher),
		credentialsvc.WithMetrics(credmetrics.New()),
	}
	if db != nil {
		credentialStore = credstore.NewPostgres(db)
		credentialOpts = append(credentialOpts, credentialsvc.WithStoreTx(registryTx))
	} else {
		credentialStore = credstore.NewInMemory()
	}
	credentials := credentialsvc.New(credentialStore, identities, issuers, credentialOpts...)

	// HTTP surface.
	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, jwtIssuer, jwtAudience)

	routerOpts := []httpapi.Option{}
	if db != nil {
		routerOpts = append(routerOpts, httpapi.WithReadyCheck("postgres", db.PingContext))
	}
	if redisClient != nil {
		routerOpts = append(routerOpts, httpapi.WithReadyCheck("redis", redisClient.Health))
	}

	// Throttling for the public read surface. Redis shares the counters
	// across replicas; without it each replica counts alone.
	if cfg.RateLimit.PerMinute > 0 {
		var limitStore ratelimit.Store
		if redisClient != nil {
			limitStore = ratelimit.NewRedisStore(redisClient.Client)
		} else {
			limitStore = ratelimit.NewInMemoryStore()
		}
		limiter := ratelimit.New(limitStore, cfg.RateLimit.PerMinute, time.Minute,
			ratelimit.WithLogger(log),
			ratelimit.WithMetrics(ratelimit.NewMetrics()),
		)
		routerOpts = append(routerOpts, httpapi.WithRateLimit(limiter.Limit))
	}

	router := httpapi.New(httpapi.Handlers{
		Identity:   identityhandler.New(identities, log),
		Issuer:     issuerhandler.New(issuers, log),
		Credential: credentialhandler.New(credentials, log),
	}, jwttoken.NewJWTServiceAdapter(jwtService), log, routerOpts...)

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("attesto registry listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Audit relay. Runs only when a broker is configured.
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			fatal(log, "kafka client construction failed", err)
		}
		defer kafkaClient.Close()

		auditRelay := relay.New(auditOutbox, kafkaClient, cfg.Kafka.AuditTopic,
			relay.WithLogger(log),
			relay.WithMetrics(auditMetrics),
		)
		if err := auditRelay.EnsureTopic(ctx); err != nil {
			log.Warn("audit topic creation failed, relying on broker auto-create",
				"topic", cfg.Kafka.AuditTopic,
				"error", err,
			)
		}
		log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic, "brokers", cfg.Kafka.Brokers)

		g.Go(func() error {
			if err := auditRelay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		fatal(log, "server exited", err)
	}
	log.Info("shutdown complete")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
