package service

import (
	"context"
	"sync"
	"time"

	dErrors "attesto/pkg/domain-errors"
	"attesto/pkg/requestcontext"
)

// StoreTx provides the atomic boundary for grant mutations. The callback
// receives a context that carries the transaction; stores pick it up from
// there. Implementations wrap a database transaction or, in-memory, a
// sharded lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sharded mutexes spread unrelated callers across locks instead of
// serializing every grant behind one global mutex.
const numTxShards = 128

// defaultTxTimeout is the maximum duration for a grant transaction.
const defaultTxTimeout = 5 * time.Second

type inMemoryStoreTx struct {
	shards  [numTxShards]sync.Mutex
	timeout time.Duration
}

func newInMemoryStoreTx() *inMemoryStoreTx {
	return &inMemoryStoreTx{}
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

// selectShard picks a shard from the caller principal, or shard 0 when the
// context carries none.
func (t *inMemoryStoreTx) selectShard(ctx context.Context) int {
	if principal := requestcontext.Principal(ctx); !principal.IsNil() {
		return int(hashPrincipal(principal.String()) % numTxShards)
	}
	return 0
}

// hashPrincipal uses FNV-1a for even shard distribution.
func hashPrincipal(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
