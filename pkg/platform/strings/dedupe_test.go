package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "single element",
			input:    []string{"did:example:a"},
			expected: []string{"did:example:a"},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  did:example:a  ", "did:example:b  ", "  did:example:c"},
			expected: []string{"did:example:a", "did:example:b", "did:example:c"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"a", "b", "a", "c", "b"},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"a", "", "  ", "b"},
			expected: []string{"a", "b"},
		},
		{
			name:     "combined: trim, dedupe, remove empty",
			input:    []string{"  a ", "b", "a", "", "  ", "b"},
			expected: []string{"a", "b"},
		},
		{
			name:     "preserves case",
			input:    []string{"Issuer", "issuer", "ISSUER"},
			expected: []string{"Issuer", "issuer", "ISSUER"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrim(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "lowercases and dedupes",
			input:    []string{"Log", "log", "LOG"},
			expected: []string{"log"},
		},
		{
			name:     "trims, lowercases, and dedupes",
			input:    []string{"  LOG ", "kafka", "Log", "KAFKA"},
			expected: []string{"log", "kafka"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrimLower(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
