package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/medic/internal/types"
)

func sampleRecord() *types.AnalysisRecord {
	at := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	code := 5
	return &types.AnalysisRecord{
		ID:      "a1",
		ErrorID: "e1",
		Event: types.ErrorEvent{
			ID:         "e1",
			Kind:       types.KindError,
			Message:    "SQLITE_BUSY: database is locked | retry\nsecond line",
			StackTrace: "main.write()\n\t/src/db.go:12",
			NativeCode: &code,
			OccurredAt: at,
			ProcessContext: types.ProcessContext{
				Platform: "linux", Arch: "amd64", GoVersion: "go1.25.0", PID: 42,
			},
		},
		Classification: types.DatabaseLocked,
		Severity:       types.SeverityHigh,
		Keywords:       []string{"sqlite_busy", "database", "locked"},
		Remediation: types.RemediationResult{
			Attempted: true, Success: true, Strategy: "lock", Retries: 2,
			Message: "lock cleared after 2 attempt(s)",
			Extra:   map[string]any{"max_retries": 5, "storage_handle": "default"},
		},
		AIEnabled: true,
		AIDiagnosis: &types.AIAnalysis{
			Available: true, Provider: "anthropic", Model: "claude-sonnet-4-5",
			RootCause: "Two writers", Fixes: []string{"Enable WAL", "Serialize writes"},
			References: []string{"https://sqlite.org/wal.html"},
		},
		RelatedIssues: []types.RelatedIssue{
			{ID: "a0", Classification: types.DatabaseLocked, Severity: types.SeverityHigh, Status: types.StatusFixed, Message: "locked | again"},
		},
		Recommendations: []types.Recommendation{
			{Priority: types.PriorityHigh, Category: "severity", Title: "High-severity failure", Description: "degrades", Action: "Investigate"},
		},
		Status:    types.StatusAnalyzed,
		CreatedAt: at,
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleRecord())

	for _, want := range []string{
		"# Error Analysis a1",
		"| Classification | DATABASE_LOCKED |",
		"| Native code | 5 |",
		"| Occurred | 2025-01-02T15:04:05Z |",
		"## Message",
		"## Stack Trace\n\n```\nmain.write()\n\t/src/db.go:12\n```",
		"Strategy `lock` succeeded after 2 retries.",
		"- **max_retries**: 5\n- **storage_handle**: default",
		"Model: `claude-sonnet-4-5` (anthropic)",
		"### Fixes\n\n1. Enable WAL\n2. Serialize writes",
		"### References\n\n- https://sqlite.org/wal.html",
		`| a0 | DATABASE_LOCKED | high | fixed | locked \| again |`,
		"- **[HIGH] High-severity failure** (severity): degrades\n  - Action: Investigate",
		"```yaml\nplatform: linux",
		"pid: 42",
	} {
		assert.Contains(t, md, want)
	}

	// Table cells stay on one line with pipes escaped
	assert.Contains(t, md, `| Message | SQLITE_BUSY: database is locked \| retry |`)
	assert.NotContains(t, md, "### Best Practices")
}

func TestMarkdown_Degraded(t *testing.T) {
	rec := sampleRecord()
	rec.Event.Message = "boom"
	rec.Event.StackTrace = ""
	rec.Remediation = types.NotAttempted(types.Unknown)
	rec.AIDiagnosis = types.Unavailable("529 overloaded")
	rec.RelatedIssues = nil
	rec.Recommendations = nil

	md := Markdown(rec)
	assert.NotContains(t, md, "## Message")
	assert.NotContains(t, md, "## Stack Trace")
	assert.Contains(t, md, "Not attempted: no remediation strategy for UNKNOWN")
	assert.Contains(t, md, "_AI diagnosis unavailable: 529 overloaded_")
	assert.Contains(t, md, "## Related Issues\n\nNone found.")
	assert.Contains(t, md, "## Recommendations\n\nNone.")

	rec.AIEnabled = false
	assert.Contains(t, Markdown(rec), "_AI diagnosis disabled._")
}

func TestMarkdown_SectionOrder(t *testing.T) {
	md := Markdown(sampleRecord())
	order := []string{"## Summary", "## Stack Trace", "## Remediation", "## AI Diagnosis",
		"## Related Issues", "## Recommendations", "## Runtime Context"}
	last := -1
	for _, h := range order {
		i := strings.Index(md, h)
		assert.Greater(t, i, last, h)
		last = i
	}
}
