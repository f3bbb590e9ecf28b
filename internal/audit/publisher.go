package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	id "attesto/pkg/domain"
	"attesto/pkg/requestcontext"
)

// ErrBufferFull is returned by async Emit when the inbox is saturated and
// the context does not allow waiting.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher captures structured audit events.
//
// In sync mode (the default) Emit appends before returning, and in postgres
// deployments the append joins the caller's transaction: if the event cannot
// be recorded the operation fails with it. In async mode Emit enqueues to a
// buffered inbox drained by a background goroutine; saturation drops the
// event rather than the request.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics

	inbox chan Event
	done  chan struct{}
	once  sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for drop and persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithAsyncBuffer switches the publisher to async mode with the given inbox
// capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

// NewPublisher constructs a Publisher over the given store.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an event. Missing envelope fields (ID, timestamp, category,
// request correlation) are filled from context before the event reaches the
// store, so call sites only supply what they know.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	p.enrich(ctx, &base)

	if p.inbox == nil {
		if err := p.store.Append(ctx, base); err != nil {
			if p.logger != nil {
				p.logger.ErrorContext(ctx, "audit event persistence failed",
					"action", base.Action,
					"subject", base.Subject,
					"error", err,
				)
			}
			return err
		}
		p.countEmitted(base)
		return nil
	}

	select {
	case p.inbox <- base:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.countDropped()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit event dropped",
				"action", base.Action,
				"subject", base.Subject,
			)
		}
		return ErrBufferFull
	}
}

// List returns all events for a subject in commit order.
func (p *Publisher) List(ctx context.Context, subject id.Principal) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Close drains the async inbox. Safe to call in sync mode and more than once.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.once.Do(func() {
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.store.Append(context.Background(), event); err != nil {
			if p.logger != nil {
				p.logger.Error("audit event persistence failed",
					"action", event.Action,
					"subject", event.Subject,
					"error", err,
				)
			}
			continue
		}
		p.countEmitted(event)
	}
}

func (p *Publisher) enrich(ctx context.Context, e *Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.Category == "" {
		e.Category = AuditEvent(e.Action).Category()
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.IP == "" {
		e.IP = requestcontext.ClientIP(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = normalizeUserAgent(requestcontext.UserAgent(ctx))
	}
	if e.ActorID == "" {
		if caller := requestcontext.Principal(ctx); !caller.IsNil() {
			e.ActorID = caller.String()
		}
	}
}

func (p *Publisher) countEmitted(e Event) {
	if p.metrics != nil {
		p.metrics.IncEmitted(string(e.Category))
	}
}

func (p *Publisher) countDropped() {
	if p.metrics != nil {
		p.metrics.IncDropped()
	}
}
