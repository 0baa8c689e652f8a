package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

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
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "lowercases and dedupes",
			input:    []string{"Budget", "budget", "BUDGET"},
			expected: []string{"budget"},
		},
		{
			name:     "trims, lowercases, and drops empties preserving order",
			input:    []string{"  URGENT ", "budget", "Urgent", "", "  "},
			expected: []string{"urgent", "budget"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}
