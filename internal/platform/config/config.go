// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; only production
// concerns (database, brokers, signing keys) demand explicit values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	registry "attesto/contracts/registry"
	platformstrings "attesto/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Database captures PostgreSQL configuration. An empty URL selects the
// in-memory stores.
type Database struct {
	URL       string
	TxTimeout time.Duration
}

// RedisConfig captures Redis connection tuning. An empty URL disables the
// issuer grant cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures audit stream configuration. No brokers means no Kafka sink.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Audit captures how lifecycle events are published.
type Audit struct {
	// Mode is "sync" (events appended before the operation returns) or
	// "async" (buffered worker).
	Mode       string
	BufferSize int
}

// RateLimit captures throttling of the public read surface. Zero disables it.
type RateLimit struct {
	PerMinute int
}

// IssuerPolicy captures which authorization policy guards AuthorizeIssuer.
type IssuerPolicy struct {
	// Mode is "open", "allowlist", or "admin_token".
	Mode string
	// Allowlist holds principals permitted to authorize issuers in
	// allowlist mode.
	Allowlist []string
	// AdminTokenHash is the bcrypt hash checked in admin_token mode.
	AdminTokenHash string
}

// Config is the full runtime configuration.
type Config struct {
	Server    Server
	Database  Database
	Redis     RedisConfig
	Kafka     Kafka
	Audit     Audit
	RateLimit RateLimit
	Issuer    IssuerPolicy
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envStr("ATTESTO_ADDR", ":8080"),
			JWTSigningKey:   envStr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			LogLevel:        envStr("LOG_LEVEL", "info"),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: Database{
			URL:       os.Getenv("DATABASE_URL"),
			TxTimeout: envDuration("DATABASE_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    envList("KAFKA_BROKERS"),
			AuditTopic: envStr("KAFKA_AUDIT_TOPIC", registry.TopicAuditEvents),
		},
		Audit: Audit{
			Mode:       strings.ToLower(envStr("AUDIT_MODE", "sync")),
			BufferSize: envInt("AUDIT_BUFFER_SIZE", 256),
		},
		RateLimit: RateLimit{
			PerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Issuer: IssuerPolicy{
			Mode:           strings.ToLower(envStr("ISSUER_POLICY", "open")),
			Allowlist:      platformstrings.DedupeAndTrim(envList("ISSUER_ALLOWLIST")),
			AdminTokenHash: os.Getenv("ISSUER_ADMIN_TOKEN_HASH"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
