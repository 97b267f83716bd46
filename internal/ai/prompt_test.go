package ai

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/types"
)

func TestBuildPrompt(t *testing.T) {
	code := 5
	var stack []string
	for i := 0; i < 60; i++ {
		stack = append(stack, fmt.Sprintf("frame %d", i))
	}
	in := PromptInput{
		Event: types.ErrorEvent{
			Kind:           types.KindError,
			Message:        "SQLITE_BUSY: database is locked",
			StackTrace:     strings.Join(stack, "\n"),
			NativeCode:     &code,
			ProcessContext: types.ProcessContext{Platform: "linux", Arch: "amd64", GoVersion: "go1.25.0"},
		},
		Classification: types.DatabaseLocked,
		Severity:       types.SeverityHigh,
		Remediation:    types.RemediationResult{Attempted: true, Strategy: "lock", Success: true, Retries: 2, Message: "lock cleared"},
	}

	p := BuildPrompt(in)
	assert.Contains(t, p, "Classification: DATABASE_LOCKED")
	assert.Contains(t, p, "Severity: high")
	assert.Contains(t, p, "Native code: 5")
	assert.Contains(t, p, "SQLITE_BUSY: database is locked")
	assert.Contains(t, p, "frame 39")
	assert.NotContains(t, p, "frame 40\n")
	assert.Contains(t, p, "(20 more lines)")
	assert.Contains(t, p, "- platform: linux/amd64")
	assert.Contains(t, p, "- strategy: lock")

	msgs := Messages(in)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[0].Content, "## Root Cause")
}

func TestBuildPrompt_NotAttempted(t *testing.T) {
	p := BuildPrompt(PromptInput{Event: types.ErrorEvent{Message: "boom"}, Classification: types.Unknown})
	assert.Contains(t, p, "- not attempted")
	assert.NotContains(t, p, "Stack trace")
	assert.NotContains(t, p, "Native code")
}

func TestSystemPromptHeadingsParse(t *testing.T) {
	for _, h := range []string{"## Root Cause", "## Fixes", "## Best Practices", "## References"} {
		assert.Contains(t, SystemPrompt, h)
	}

	reply := "## Root Cause\nlocked\n## Fixes\n- a\n## Best Practices\n- b\n## References\n- c"
	s := ParseSections(reply)
	assert.Equal(t, "locked", s.RootCause)
	assert.Equal(t, []string{"a"}, s.Fixes)
	assert.Equal(t, []string{"b"}, s.BestPractices)
	assert.Equal(t, []string{"c"}, s.References)
}
