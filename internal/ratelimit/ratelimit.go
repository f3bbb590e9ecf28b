// Package ratelimit throttles the registry's public surface by client
// address. Verification and resolution take no authentication, so the per-IP
// window is the only thing standing between the registry and a scripted
// caller; mutations are left to the authentication layer.
package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the window reopens for a denied caller.
	ResetAt time.Time
}

// Store counts requests per key within a rolling window.
type Store interface {
	// Allow records a hit against key and reports whether it fit the limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
