package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPointerTag(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"invoices", true},
		{"approved", false},      // state tag
		{"session:s7", false},    // contains ":"
		{"system:stats", false},  // contains ":"
		{"draft", false},
		{"kafka", true},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPointerTag(tt.tag))
		})
	}
}

func TestSessionTag(t *testing.T) {
	tag, ok := SessionTag([]string{"approved", "session:s7", "invoices"})
	assert.True(t, ok)
	assert.Equal(t, "session:s7", tag)

	_, ok = SessionTag([]string{"approved", "invoices"})
	assert.False(t, ok)
}

func TestSchemaPriority(t *testing.T) {
	assert.Equal(t, 1, SchemaPriority("tool.catalog.v1"))
	assert.Equal(t, 5, SchemaPriority("user.message.v1"))
	assert.Equal(t, 5, SchemaPriority("agent.response.v1"))
	assert.Equal(t, 10, SchemaPriority("something.else.v1"))
	assert.Less(t, SchemaPriority("tool.catalog.v1"), SchemaPriority("agent.catalog.v1"))
}
