package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/medic/internal/config"
)

func TestShortID(t *testing.T) {
	assert.Equal(t, "12345678", shortID("1234567890abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		debug bool
	}{
		{"debug", true},
		{"info", false},
		{"WARN", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			for _, format := range []string{"text", "json"} {
				logger := newLogger(config.LogConfig{Level: tt.level, Format: format})
				assert.Equal(t, tt.debug, logger.Enabled(t.Context(), -4))
			}
		})
	}
}
