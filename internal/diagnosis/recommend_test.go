package diagnosis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/types"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"stop words and short tokens dropped", "Error: failed to open the database file", []string{"open", "database", "file"}},
		{"lowercased and deduplicated", "Redis REDIS redis timeout", []string{"redis", "timeout"}},
		{"capped", "alpha bravo charlie delta echo foxtrot golf", []string{"alpha", "bravo", "charlie", "delta", "echo"}},
		{"punctuation splits", "connect ECONNREFUSED 127.0.0.1:11434", []string{"connect", "econnrefused", "11434"}},
		{"underscores kept", "SQLITE_BUSY: database is locked", []string{"sqlite_busy", "database", "locked"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.message))
		})
	}
}

func titles(recs []types.Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Title)
	}
	return out
}

func TestRecommend_SortedByPriority(t *testing.T) {
	rec := &types.AnalysisRecord{
		Classification: types.DiskFull,
		Severity:       types.SeverityCritical,
		Remediation:    types.NotAttempted(types.DiskFull),
		AIDiagnosis:    &types.AIAnalysis{Available: true, Fixes: []string{"Delete old logs"}},
		RelatedIssues:  make([]types.RelatedIssue, 3),
	}
	recs := Recommend(rec)
	require.NotEmpty(t, recs)

	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Priority.Rank(), recs[i].Priority.Rank())
	}
	assert.Equal(t, types.PriorityUrgent, recs[0].Priority)
	assert.Contains(t, titles(recs), "Recurring failure")
	assert.Contains(t, titles(recs), "Apply AI-suggested fix")
	assert.Contains(t, titles(recs), "Manual intervention required")
	assert.Contains(t, titles(recs), "Suggested fix")
}

func TestRecommend_Remediation(t *testing.T) {
	ok := Recommend(&types.AnalysisRecord{
		Classification: types.DatabaseLocked,
		Severity:       types.SeverityHigh,
		Remediation:    types.RemediationResult{Attempted: true, Success: true, Message: "lock cleared"},
	})
	assert.Contains(t, titles(ok), "Automatic remediation succeeded")

	failed := Recommend(&types.AnalysisRecord{
		Classification: types.OutOfMemory,
		Severity:       types.SeverityCritical,
		Remediation:    types.RemediationResult{Attempted: true, Message: "still low"},
	})
	for _, r := range failed {
		if r.Title == "Automatic remediation failed" {
			assert.Equal(t, types.PriorityUrgent, r.Priority)
		}
	}
	assert.Contains(t, titles(failed), "Automatic remediation failed")
}

func TestRecommend_PreviouslyResolved(t *testing.T) {
	recs := Recommend(&types.AnalysisRecord{
		Classification: types.Unknown,
		Severity:       types.SeverityLow,
		RelatedIssues: []types.RelatedIssue{
			{ID: "a", Status: types.StatusAnalyzed},
			{ID: "b", Status: types.StatusFixed, Resolution: "bumped pool size"},
		},
	})
	var found *types.Recommendation
	for i := range recs {
		if recs[i].Title == "Previously resolved" {
			found = &recs[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "bumped pool size", found.Action)
	assert.Contains(t, titles(recs), "Related incidents found")
}

func TestRecommend_AIUnavailable(t *testing.T) {
	recs := Recommend(&types.AnalysisRecord{
		Classification: types.Unknown,
		Severity:       types.SeverityLow,
		AIDiagnosis:    types.Unavailable("timeout"),
	})
	assert.Contains(t, titles(recs), "AI diagnosis unavailable")
}
