// Package storetest is the behavioral test suite every analysis store
// adapter runs against
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/types"
)

// Store is the adapter surface under test
type Store interface {
	Insert(ctx context.Context, rec *types.AnalysisRecord) error
	Update(ctx context.Context, id string, upd types.StatusUpdate) error
	Get(ctx context.Context, id string) (*types.AnalysisRecord, error)
	List(ctx context.Context, filter types.HistoryFilter) ([]*types.AnalysisRecord, error)
	FindRelated(ctx context.Context, keywords []string, classification types.Classification, excludeID string, limit int) ([]types.RelatedIssue, error)
	Stats(ctx context.Context, days int) (*types.Stats, error)
	Trend(ctx context.Context, days int) ([]types.TrendPoint, error)
	Delete(ctx context.Context, id string) error
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Opener returns an empty store. Cleanup is registered on t.
type Opener func(t *testing.T) Store

// Run executes the suite
func Run(t *testing.T, open Opener) {
	t.Run("InsertGet", func(t *testing.T) { testInsertGet(t, open(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("List", func(t *testing.T) { testList(t, open(t)) })
	t.Run("SearchLiteral", func(t *testing.T) { testSearchLiteral(t, open(t)) })
	t.Run("FindRelated", func(t *testing.T) { testFindRelated(t, open(t)) })
	t.Run("StatsTrend", func(t *testing.T) { testStatsTrend(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("Cleanup", func(t *testing.T) { testCleanup(t, open(t)) })
}

// now is truncated to the millisecond, the coarsest resolution any adapter
// stores
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Record builds a valid analyzed record
func Record(id string, c types.Classification, sev types.Severity, msg string, keywords []string, created time.Time) *types.AnalysisRecord {
	return &types.AnalysisRecord{
		ID:      id,
		ErrorID: "err-" + id,
		Event: types.ErrorEvent{
			ID:         "err-" + id,
			Kind:       types.KindError,
			Message:    msg,
			OccurredAt: created,
		},
		Classification:  c,
		Severity:        sev,
		Keywords:        keywords,
		Remediation:     types.NotAttempted(c),
		RelatedIssues:   []types.RelatedIssue{},
		Recommendations: []types.Recommendation{},
		Status:          types.StatusAnalyzed,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func testInsertGet(t *testing.T, s Store) {
	ctx := context.Background()
	created := now()
	code := 5

	rec := Record("a1", types.DatabaseLocked, types.SeverityHigh, "SQLITE_BUSY: database is locked", []string{"sqlite_busy", "database", "locked"}, created)
	rec.Event.StackTrace = "goroutine 1 [running]:\nmain.main()"
	rec.Event.NativeCode = &code
	rec.Event.ProcessContext = types.ProcessContext{Platform: "linux", Arch: "amd64", PID: 42}
	rec.Remediation = types.RemediationResult{
		Attempted: true, Classification: types.DatabaseLocked, Strategy: "lock",
		Success: true, Retries: 2, Message: "lock cleared", Extra: map[string]any{"max_retries": float64(5)},
	}
	rec.AIEnabled = true
	rec.AIDiagnosis = &types.AIAnalysis{Available: true, Provider: "anthropic", RootCause: "two writers", Fixes: []string{"enable WAL"}}
	rec.RelatedIssues = []types.RelatedIssue{{ID: "old", Classification: types.DatabaseLocked, Severity: types.SeverityHigh, Status: types.StatusFixed, CreatedAt: created.Add(-time.Hour)}}
	rec.Recommendations = []types.Recommendation{{Priority: types.PriorityHigh, Category: "storage", Title: "Enable WAL"}}

	require.NoError(t, s.Insert(ctx, rec))
	assert.Error(t, s.Insert(ctx, rec), "insert is not an upsert")

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, rec.ErrorID, got.ErrorID)
	assert.Equal(t, rec.Event.Message, got.Event.Message)
	assert.Equal(t, rec.Event.StackTrace, got.Event.StackTrace)
	require.NotNil(t, got.Event.NativeCode)
	assert.Equal(t, 5, *got.Event.NativeCode)
	assert.Equal(t, 42, got.Event.ProcessContext.PID)
	assert.Equal(t, types.DatabaseLocked, got.Classification)
	assert.Equal(t, types.SeverityHigh, got.Severity)
	assert.Equal(t, rec.Keywords, got.Keywords)
	if diff := cmp.Diff(rec.Remediation, got.Remediation); diff != "" {
		t.Errorf("remediation mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.AIEnabled)
	if diff := cmp.Diff(rec.AIDiagnosis, got.AIDiagnosis); diff != "" {
		t.Errorf("AI diagnosis mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, got.RelatedIssues, 1)
	assert.Equal(t, "old", got.RelatedIssues[0].ID)
	if diff := cmp.Diff(rec.Recommendations, got.Recommendations); diff != "" {
		t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, types.StatusAnalyzed, got.Status)
	assert.True(t, created.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, created)
	assert.Nil(t, got.ResolvedAt)

	bad := Record("", types.Unknown, types.SeverityLow, "x", nil, created)
	assert.Error(t, s.Insert(ctx, bad))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testUpdate(t *testing.T, s Store) {
	ctx := context.Background()
	created := now()
	require.NoError(t, s.Insert(ctx, Record("u1", types.DiskFull, types.SeverityCritical, "no space left on device", nil, created)))

	at := created.Add(time.Minute)
	require.NoError(t, s.Update(ctx, "u1", types.StatusUpdate{Status: types.StatusFixing, At: at}))
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFixing, got.Status)
	assert.Nil(t, got.ResolvedAt)
	assert.True(t, at.Equal(got.UpdatedAt))

	resolved := created.Add(2 * time.Minute)
	require.NoError(t, s.Update(ctx, "u1", types.StatusUpdate{Status: types.StatusFixed, Resolution: "freed disk", At: resolved}))
	got, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFixed, got.Status)
	assert.Equal(t, "freed disk", got.Resolution)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, resolved.Equal(*got.ResolvedAt))

	assert.ErrorIs(t, s.Update(ctx, "missing", types.StatusUpdate{Status: types.StatusFixed, At: resolved}), types.ErrNotFound)
}

func testList(t *testing.T, s Store) {
	ctx := context.Background()
	base := now().Add(-time.Hour)
	fixtures := []*types.AnalysisRecord{
		Record("l1", types.DatabaseLocked, types.SeverityHigh, "database is locked", nil, base),
		Record("l2", types.ConnectionRefused, types.SeverityHigh, "connect ECONNREFUSED 127.0.0.1:11434", nil, base.Add(time.Minute)),
		Record("l3", types.DiskFull, types.SeverityCritical, "no space left on device", nil, base.Add(2*time.Minute)),
		Record("l4", types.DatabaseLocked, types.SeverityHigh, "database table is locked", nil, base.Add(3*time.Minute)),
	}
	fixtures[3].Status = types.StatusIgnored
	for _, r := range fixtures {
		require.NoError(t, s.Insert(ctx, r))
	}

	all, err := s.List(ctx, types.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"l4", "l3", "l2", "l1"}, ids(all))

	byClass, err := s.List(ctx, types.HistoryFilter{Classification: types.DatabaseLocked})
	require.NoError(t, err)
	assert.Equal(t, []string{"l4", "l1"}, ids(byClass))

	bySev, err := s.List(ctx, types.HistoryFilter{Severity: types.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, []string{"l3"}, ids(bySev))

	byStatus, err := s.List(ctx, types.HistoryFilter{Status: types.StatusIgnored})
	require.NoError(t, err)
	assert.Equal(t, []string{"l4"}, ids(byStatus))

	search, err := s.List(ctx, types.HistoryFilter{Search: "ECONNREFUSED"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, ids(search))

	page, err := s.List(ctx, types.HistoryFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"l3", "l2"}, ids(page))
}

func testSearchLiteral(t *testing.T, s Store) {
	ctx := context.Background()
	base := now().Add(-time.Hour)
	for _, r := range []*types.AnalysisRecord{
		Record("s1", types.DiskFull, types.SeverityCritical, "volume 100% full", nil, base),
		Record("s2", types.DiskFull, types.SeverityCritical, "volume 1000 blocks full", nil, base.Add(time.Minute)),
		Record("s3", types.FileNotFound, types.SeverityMedium, "open cache_db: no such file", nil, base.Add(2*time.Minute)),
		Record("s4", types.FileNotFound, types.SeverityMedium, "open cachexdb: no such file", nil, base.Add(3*time.Minute)),
	} {
		require.NoError(t, s.Insert(ctx, r))
	}

	percent, err := s.List(ctx, types.HistoryFilter{Search: "100%"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(percent))

	underscore, err := s.List(ctx, types.HistoryFilter{Search: "cache_db"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, ids(underscore))
}

func testFindRelated(t *testing.T, s Store) {
	ctx := context.Background()
	base := now().Add(-time.Hour)
	require.NoError(t, s.Insert(ctx, Record("r1", types.DatabaseLocked, types.SeverityHigh, "database is locked", []string{"database", "locked"}, base)))
	require.NoError(t, s.Insert(ctx, Record("r2", types.FileNotFound, types.SeverityMedium, "open medic.db: no such file", []string{"open", "medic"}, base.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, Record("r3", types.DiskFull, types.SeverityCritical, "database or disk is full", []string{"database", "disk", "full"}, base.Add(2*time.Minute))))
	require.NoError(t, s.Insert(ctx, Record("r4", types.DatabaseLocked, types.SeverityHigh, "table is locked", []string{"table"}, base.Add(3*time.Minute))))

	related, err := s.FindRelated(ctx, []string{"database", "sqlite_busy"}, types.DatabaseLocked, "r4", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r1"}, relatedIDs(related), "keyword or classification match, newest first, excluding self")

	related, err = s.FindRelated(ctx, nil, types.DatabaseLocked, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"r4"}, relatedIDs(related))

	related, err = s.FindRelated(ctx, []string{"nothing"}, types.Unknown, "", 5)
	require.NoError(t, err)
	assert.NotNil(t, related)
	assert.Empty(t, related)
}

func testStatsTrend(t *testing.T, s Store) {
	ctx := context.Background()
	recent := now().Add(-time.Hour)
	old := now().AddDate(0, 0, -30)

	locked := Record("s1", types.DatabaseLocked, types.SeverityHigh, "database is locked", nil, recent)
	locked.Remediation = types.RemediationResult{Attempted: true, Success: true}
	failed := Record("s2", types.DatabaseLocked, types.SeverityHigh, "database is locked", nil, recent)
	failed.Remediation = types.RemediationResult{Attempted: true, Success: false}
	full := Record("s3", types.DiskFull, types.SeverityCritical, "disk full", nil, recent)
	ancient := Record("s4", types.Unknown, types.SeverityLow, "old", nil, old)
	for _, r := range []*types.AnalysisRecord{locked, failed, full, ancient} {
		require.NoError(t, s.Insert(ctx, r))
	}

	stats, err := s.Stats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Days)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.BySeverity[types.SeverityHigh])
	assert.Equal(t, 1, stats.BySeverity[types.SeverityCritical])
	assert.Equal(t, 2, stats.ByClassification[types.DatabaseLocked])
	assert.Equal(t, 3, stats.ByStatus[types.StatusAnalyzed])
	assert.Equal(t, 2, stats.Remediated)
	assert.Equal(t, 1, stats.RemediationSucceeded)
	assert.InDelta(t, 0.5, stats.RemediationSuccessRate, 0.0001)

	all, err := s.Stats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)

	trend, err := s.Trend(ctx, 7)
	require.NoError(t, err)
	total, critical, high := 0, 0, 0
	for i, p := range trend {
		if i > 0 {
			assert.Less(t, trend[i-1].Day, p.Day)
		}
		total += p.Total
		critical += p.Critical
		high += p.High
	}
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, critical)
	assert.Equal(t, 2, high)
}

func testDelete(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, Record("d1", types.Unknown, types.SeverityLow, "x", nil, now())))
	require.NoError(t, s.Delete(ctx, "d1"))

	_, err := s.Get(ctx, "d1")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "d1"), types.ErrNotFound)
}

// 10 records older than the cutoff and 5 newer: exactly 10 are deleted
func testCleanup(t *testing.T, s Store) {
	ctx := context.Background()
	cutoff := now().AddDate(0, 0, -30)

	for i := 0; i < 10; i++ {
		created := cutoff.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, s.Insert(ctx, Record(fmt.Sprintf("old-%d", i), types.Unknown, types.SeverityLow, "old", nil, created)))
	}
	for i := 0; i < 5; i++ {
		created := cutoff.Add(time.Duration(i+1) * time.Hour)
		require.NoError(t, s.Insert(ctx, Record(fmt.Sprintf("new-%d", i), types.Unknown, types.SeverityLow, "new", nil, created)))
	}

	deleted, err := s.CleanupOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 10, deleted)

	remaining, err := s.List(ctx, types.HistoryFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, remaining, 5)

	deleted, err = s.CleanupOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func ids(recs []*types.AnalysisRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func relatedIDs(related []types.RelatedIssue) []string {
	out := make([]string, 0, len(related))
	for _, r := range related {
		out = append(out, r.ID)
	}
	return out
}
