// Package relay streams committed audit events to Kafka.
//
// The relay tails the audit store's outbox in commit order, produces each
// batch to the audit topic, and acknowledges the batch back to the store.
// Events are keyed by subject so per-subject ordering survives partitioning.
// Broker trouble trips a circuit breaker; the registry itself never blocks
// on Kafka.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	registry "attesto/contracts/registry"
	"attesto/internal/audit"
	"attesto/pkg/platform/circuit"
)

// Relay drains an audit outbox into a Kafka topic.
type Relay struct {
	outbox  audit.Outbox
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	metrics *audit.Metrics
	breaker *circuit.Breaker

	interval  time.Duration
	batchSize int
	// openProbeEvery throttles probe attempts while the breaker is open.
	openProbeEvery int
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *audit.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithInterval sets how often the outbox is polled.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize caps how many events one poll publishes.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// New constructs a Relay over the given outbox and Kafka client.
func New(outbox audit.Outbox, client *kgo.Client, topic string, opts ...Option) *Relay {
	r := &Relay{
		outbox:         outbox,
		client:         client,
		topic:          topic,
		breaker:        circuit.New("audit-kafka"),
		interval:       time.Second,
		batchSize:      100,
		openProbeEvery: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureTopic creates the audit topic if the broker does not have it yet.
// Partition and replication counts follow broker defaults.
func (r *Relay) EnsureTopic(ctx context.Context) error {
	adm := kadm.NewClient(r.client)
	resp, err := adm.CreateTopics(ctx, -1, -1, nil, r.topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Run polls the outbox until ctx is cancelled, then attempts one final flush
// so a clean shutdown leaves no committed event behind.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	sinceOpen := 0
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = r.publishBatch(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if r.breaker.IsOpen() {
				sinceOpen++
				if sinceOpen < r.openProbeEvery {
					continue
				}
				sinceOpen = 0
			}
			if err := r.publishBatch(ctx); err != nil && r.logger != nil {
				r.logger.WarnContext(ctx, "audit relay publish failed",
					"topic", r.topic,
					"error", err,
				)
			}
		}
	}
}

func (r *Relay) publishBatch(ctx context.Context) error {
	events, err := r.outbox.NextBatch(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("load outbox batch: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(events))
	seqs := make([]uint64, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(registry.AuditEvent{
			ID:             event.ID,
			Category:       string(event.Category),
			Timestamp:      event.Timestamp.Format(time.RFC3339Nano),
			Subject:        event.Subject.String(),
			Action:         event.Action,
			CredentialID:   event.CredentialID,
			CredentialType: event.CredentialType,
			Issuer:         event.Issuer.String(),
			Decision:       event.Decision,
			Reason:         event.Reason,
			RequestID:      event.RequestID,
			ActorID:        event.ActorID,
			IP:             event.IP,
			UserAgent:      event.UserAgent,
		})
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(event.Subject.String()),
			Value: payload,
		})
		seqs = append(seqs, event.Seq)
	}

	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		r.recordFailure(ctx)
		return fmt.Errorf("produce audit batch: %w", err)
	}

	if err := r.outbox.MarkPublished(ctx, seqs); err != nil {
		return fmt.Errorf("acknowledge audit batch: %w", err)
	}

	r.recordSuccess(ctx, len(records))
	return nil
}

func (r *Relay) recordFailure(ctx context.Context) {
	if r.metrics != nil {
		r.metrics.IncRelayFailures()
	}
	_, change := r.breaker.RecordFailure()
	if change.Opened {
		if r.metrics != nil {
			r.metrics.SetRelayBreakerOpen(true)
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "audit relay circuit opened",
				"breaker", r.breaker.Name(),
			)
		}
	}
}

func (r *Relay) recordSuccess(ctx context.Context, published int) {
	if r.metrics != nil {
		r.metrics.IncRelayPublished(published)
	}
	_, change := r.breaker.RecordSuccess()
	if change.Closed {
		if r.metrics != nil {
			r.metrics.SetRelayBreakerOpen(false)
		}
		if r.logger != nil {
			r.logger.InfoContext(ctx, "audit relay circuit closed",
				"breaker", r.breaker.Name(),
			)
		}
	}
}
