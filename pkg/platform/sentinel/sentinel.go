package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about stored records, not precondition
// failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: a uniqueness or insert-once constraint was violated
// - ErrInvalidState: record is in the wrong state for the requested mutation
// - ErrUnavailable: backing service temporarily unreachable
//
// For precondition violations (unauthorized caller, bad input), use
// pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
