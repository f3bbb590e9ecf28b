package audit

import (
	"context"

	id "attesto/pkg/domain"
)

// Store is the append-only event log. Append assigns the event's Seq;
// within one registry transition it must observe the same transaction as
// the domain stores, so stream order equals commit order.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject id.Principal) ([]Event, error)
	ListAll(ctx context.Context) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Outbox is the relay's view of a store: events pending external publication
// in commit order, and an acknowledgement that a batch made it out.
type Outbox interface {
	NextBatch(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, seqs []uint64) error
}
