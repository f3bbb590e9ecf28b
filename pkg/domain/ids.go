// Package domain holds the identifier types shared across the registry.
//
// A Principal is the opaque actor handle supplied by the execution
// environment (auth middleware, test harness, or CLI). The registry never
// inspects its structure; it only compares principals for equality and uses
// them as store keys. Parsing exists purely to reject garbage at trust
// boundaries.
package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "attesto/pkg/domain-errors"
)

// MaxPrincipalLength bounds principal handles at store keys and wire inputs.
// Generous enough for any DID method string, small enough to stop abuse.
const MaxPrincipalLength = 255

// Principal is an opaque, globally unique actor handle. The zero value is
// the null principal and never refers to an actor.
type Principal string

// Nil is the null principal.
const Nil Principal = ""

func (p Principal) String() string {
	return string(p)
}

// IsNil reports whether this is the null principal.
func (p Principal) IsNil() bool {
	return p == Nil
}

// ParsePrincipal validates an incoming principal handle. It rejects empty,
// oversized, non-UTF-8 input, handles containing control or invisible format
// characters, and handles with surrounding whitespace, all of which indicate
// a malformed or hostile caller. Structure beyond that is deliberately not
// validated: principals are opaque.
func ParsePrincipal(s string) (Principal, error) {
	if s == "" {
		return Nil, dErrors.New(dErrors.CodeInvalidArgument, "principal is required")
	}
	if len(s) > MaxPrincipalLength {
		return Nil, dErrors.New(dErrors.CodeInvalidArgument, "principal exceeds maximum length")
	}
	if !utf8.ValidString(s) {
		return Nil, dErrors.New(dErrors.CodeInvalidArgument, "principal must be valid UTF-8")
	}
	if strings.TrimSpace(s) != s {
		return Nil, dErrors.New(dErrors.CodeInvalidArgument, "principal has surrounding whitespace")
	}
	for _, r := range s {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return Nil, dErrors.New(dErrors.CodeInvalidArgument, "principal contains control characters")
		}
	}
	return Principal(s), nil
}
