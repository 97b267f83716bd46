package diagnosis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/cache"
	"github.com/steveyegge/medic/internal/capture"
	"github.com/steveyegge/medic/internal/remediation"
	"github.com/steveyegge/medic/internal/retry"
	"github.com/steveyegge/medic/internal/types"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func lockRegistry() *remediation.Registry {
	return remediation.NewRegistry(remediation.Deps{
		Storage:   map[string]remediation.StorageTuner{remediation.DefaultStorageHandle: okTuner{}},
		Scheduler: &retry.Scheduler{Sleep: noSleep},
		Sleep:     noSleep,
	})
}

func TestAnalyze_DatabaseLocked(t *testing.T) {
	store := newCountingStore()
	client := &fakeAI{models: []string{"claude-sonnet-4-5"}, content: diagnosisReply}
	c := New(Config{
		Store:      store,
		Remediator: lockRegistry(),
		AI:         client,
		AIEnabled:  true,
		Model:      "claude-sonnet-4-5",
	})

	rec := c.Analyze(context.Background(), errors.New("SQLITE_BUSY: database is locked"))

	assert.Equal(t, types.DatabaseLocked, rec.Classification)
	assert.Equal(t, types.SeverityHigh, rec.Severity)
	assert.Equal(t, types.StatusAnalyzed, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.NotEqual(t, rec.ID, rec.ErrorID)

	assert.True(t, rec.Remediation.Attempted)
	assert.True(t, rec.Remediation.Success)
	assert.Equal(t, "lock", rec.Remediation.Strategy)
	assert.EqualValues(t, 5, rec.Remediation.Extra["max_retries"])

	require.NotNil(t, rec.AIDiagnosis)
	assert.True(t, rec.AIDiagnosis.Available)
	assert.Equal(t, "claude-sonnet-4-5", rec.AIDiagnosis.Model)
	assert.Equal(t, "Two writers hold the database at once.", rec.AIDiagnosis.RootCause)
	assert.Equal(t, []string{"Enable WAL mode", "Serialize writes through one connection"}, rec.AIDiagnosis.Fixes)

	assert.Equal(t, 1, store.insertCount(), "persisted exactly once")
	got, err := c.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DatabaseLocked, got.Classification)
	assert.NotEmpty(t, rec.Recommendations)
}

func TestAnalyze_AIErrorDegrades(t *testing.T) {
	client := &fakeAI{models: []string{"m1"}, chatErr: errOverloaded}
	c := New(Config{Store: newCountingStore(), AI: client, AIEnabled: true})

	rec := c.Analyze(context.Background(), errors.New("connect ECONNREFUSED 127.0.0.1:11434"))

	assert.Equal(t, types.ConnectionRefused, rec.Classification)
	require.NotNil(t, rec.AIDiagnosis)
	assert.False(t, rec.AIDiagnosis.Available)
	assert.Contains(t, rec.AIDiagnosis.Error, "overloaded")
	assert.Equal(t, "m1", rec.AIDiagnosis.Model)

	// Everything else is still populated
	assert.Equal(t, types.StatusAnalyzed, rec.Status)
	assert.NotEmpty(t, rec.Keywords)
	assert.False(t, rec.Remediation.Attempted, "no remediator configured")
	assert.NotEmpty(t, rec.Recommendations)

	var sawUnavailable bool
	for _, r := range rec.Recommendations {
		if r.Category == "ai" && r.Title == "AI diagnosis unavailable" {
			sawUnavailable = true
		}
	}
	assert.True(t, sawUnavailable)
}

func TestAnalyze_AIPanicDegrades(t *testing.T) {
	c := New(Config{AI: &fakeAI{models: []string{"m1"}, panics: true}, AIEnabled: true})
	rec := c.Analyze(context.Background(), errors.New("boom"))
	require.NotNil(t, rec.AIDiagnosis)
	assert.False(t, rec.AIDiagnosis.Available)
	assert.Contains(t, rec.AIDiagnosis.Error, "panicked")
}

func TestAnalyze_AIDisabled(t *testing.T) {
	client := &fakeAI{models: []string{"m1"}, content: diagnosisReply}
	c := New(Config{AI: client, AIEnabled: false})

	rec := c.Analyze(context.Background(), errors.New("boom"))
	assert.False(t, rec.AIEnabled)
	assert.Nil(t, rec.AIDiagnosis)
	assert.Zero(t, client.chats)

	c = New(Config{AI: client, AIEnabled: true})
	rec = c.AnalyzeEvent(context.Background(), capture.NormalizeText("boom", ""), Options{DisableAI: true})
	assert.Nil(t, rec.AIDiagnosis)
	assert.Zero(t, client.chats)
}

func TestAnalyze_ModelCache(t *testing.T) {
	client := &fakeAI{models: []string{"first", "second"}, content: diagnosisReply}
	models := cache.NewMemory("models", 0)
	c := New(Config{AI: client, AIEnabled: true, Model: "missing", Models: models})

	c.Analyze(context.Background(), errors.New("one"))
	c.Analyze(context.Background(), errors.New("two"))

	assert.Equal(t, 1, client.listCalls, "resolved model is cached")
	assert.Equal(t, "first", client.lastModel, "falls back to the first listed model")

	require.NoError(t, models.Clear(context.Background()))
	c.Analyze(context.Background(), errors.New("three"))
	assert.Equal(t, 2, client.listCalls)
}

func TestAnalyze_NoModels(t *testing.T) {
	client := &fakeAI{}
	c := New(Config{AI: client, AIEnabled: true})
	rec := c.Analyze(context.Background(), errors.New("boom"))
	require.NotNil(t, rec.AIDiagnosis)
	assert.False(t, rec.AIDiagnosis.Available)
	assert.Zero(t, client.chats)
}

func TestAnalyze_RemediatorPanic(t *testing.T) {
	c := New(Config{Remediator: &stubRemediator{panics: true}})
	rec := c.Analyze(context.Background(), errors.New("SQLITE_BUSY: database is locked"))

	assert.True(t, rec.Remediation.Attempted)
	assert.False(t, rec.Remediation.Success)
	assert.Contains(t, rec.Remediation.Message, "panicked")
	assert.Equal(t, types.StatusAnalyzed, rec.Status)
}

func TestAnalyze_NoCollaborators(t *testing.T) {
	c := New(Config{})
	rec := c.Analyze(context.Background(), errors.New("something odd happened"))

	assert.Equal(t, types.Unknown, rec.Classification)
	assert.False(t, rec.Remediation.Attempted)
	assert.Nil(t, rec.AIDiagnosis)
	assert.Empty(t, rec.RelatedIssues)
	assert.NotNil(t, rec.RelatedIssues)
	assert.Equal(t, types.StatusAnalyzed, rec.Status)
}

func TestAnalyze_PersistFailureIsSwallowed(t *testing.T) {
	store := newCountingStore()
	store.insertErr = errors.New("disk full")
	c := New(Config{Store: store})

	rec := c.Analyze(context.Background(), errors.New("boom"))
	assert.Equal(t, types.StatusAnalyzed, rec.Status)
	assert.Equal(t, 1, store.insertCount())

	_, err := c.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAnalyze_RelatedIssues(t *testing.T) {
	store := newCountingStore()
	c := New(Config{Store: store})
	ctx := context.Background()

	first := c.Analyze(ctx, errors.New("connect ECONNREFUSED 127.0.0.1:6379 redis"))
	second := c.Analyze(ctx, errors.New("connect ECONNREFUSED 127.0.0.1:6379 redis"))

	require.NotEmpty(t, second.RelatedIssues)
	assert.Equal(t, first.ID, second.RelatedIssues[0].ID)
	for _, r := range second.RelatedIssues {
		assert.NotEqual(t, second.ID, r.ID, "current record is excluded")
	}

	store.relatedErr = errors.New("query timeout")
	third := c.Analyze(ctx, errors.New("connect ECONNREFUSED 127.0.0.1:6379 redis"))
	assert.Empty(t, third.RelatedIssues)
	assert.Equal(t, types.StatusAnalyzed, third.Status)
}

func TestAnalyze_IgnoresCallerCancellation(t *testing.T) {
	store := newCountingStore()
	c := New(Config{Store: store})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := c.Analyze(ctx, errors.New("boom"))
	assert.Equal(t, types.StatusAnalyzed, rec.Status)
	assert.Equal(t, 1, store.insertCount())
}

func TestHandleEvent(t *testing.T) {
	store := newCountingStore()
	c := New(Config{Store: store})
	c.HandleEvent(context.Background(), capture.NormalizeCrash(capture.CrashPayload{Signal: "SIGSEGV"}))
	assert.Equal(t, 1, store.insertCount())
}

// trapProcess records every process-control call
type trapProcess struct {
	calls []string
}

func (p *trapProcess) RestartManagedService(ctx context.Context, name string) error {
	p.calls = append(p.calls, "restart:"+name)
	return nil
}

func (p *trapProcess) TerminateProcessOnPort(ctx context.Context, port int) (int, error) {
	p.calls = append(p.calls, "terminate")
	return 1, nil
}

func (p *trapProcess) Chmod(path string, mode os.FileMode) error {
	p.calls = append(p.calls, "chmod:"+path)
	return nil
}

func (p *trapProcess) MkdirAll(path string) error {
	p.calls = append(p.calls, "mkdir:"+path)
	return nil
}

func TestAnalyze_CapturedStackNeverTargetsResources(t *testing.T) {
	proc := &trapProcess{}
	c := New(Config{
		Store: newCountingStore(),
		Remediator: remediation.NewRegistry(remediation.Deps{
			Process:   proc,
			Scheduler: &retry.Scheduler{Sleep: noSleep},
			Sleep:     noSleep,
		}),
	})

	rec := c.Analyze(context.Background(), errors.New("listen: bind: address already in use"))
	require.Contains(t, rec.Event.StackTrace, ".go:")
	assert.Equal(t, types.AddressInUse, rec.Classification)
	assert.True(t, rec.Remediation.Attempted)
	assert.False(t, rec.Remediation.Success)

	rec = c.Analyze(context.Background(), errors.New("EACCES: permission denied"))
	assert.Equal(t, types.PermissionDenied, rec.Classification)
	assert.False(t, rec.Remediation.Success)

	assert.Empty(t, proc.calls)
}
