package diagnosis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/steveyegge/medic/internal/ai"
	"github.com/steveyegge/medic/internal/remediation"
	"github.com/steveyegge/medic/internal/storage/memory"
	"github.com/steveyegge/medic/internal/types"
)

const diagnosisReply = `## Root Cause
Two writers hold the database at once.

## Fixes
- Enable WAL mode
- Serialize writes through one connection

## Best Practices
- Keep transactions short

## References
- https://sqlite.org/wal.html
`

type fakeAI struct {
	mu        sync.Mutex
	models    []string
	listErr   error
	chatErr   error
	content   string
	panics    bool
	chats     int
	listCalls int
	lastModel string
}

func (f *fakeAI) Chat(ctx context.Context, messages []ai.Message, opts ai.ChatOptions) (*ai.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("sdk bug")
	}
	f.chats++
	f.lastModel = opts.Model
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &ai.ChatResponse{Content: f.content}, nil
}

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.models, f.listErr
}

// countingStore counts inserts and can be made to fail them
type countingStore struct {
	*memory.Store
	mu         sync.Mutex
	inserts    int
	insertErr  error
	relatedErr error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New()}
}

func (s *countingStore) Insert(ctx context.Context, rec *types.AnalysisRecord) error {
	s.mu.Lock()
	s.inserts++
	err := s.insertErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Insert(ctx, rec)
}

func (s *countingStore) FindRelated(ctx context.Context, keywords []string, c types.Classification, excludeID string, limit int) ([]types.RelatedIssue, error) {
	if s.relatedErr != nil {
		return nil, s.relatedErr
	}
	return s.Store.FindRelated(ctx, keywords, c, excludeID, limit)
}

func (s *countingStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

type stubRemediator struct {
	result types.RemediationResult
	panics bool
	calls  int
}

func (r *stubRemediator) Remediate(ctx context.Context, event types.ErrorEvent, c types.Classification, rctx remediation.Context) types.RemediationResult {
	r.calls++
	if r.panics {
		panic("strategy table corrupted")
	}
	res := r.result
	res.Classification = c
	return res
}

type okTuner struct{}

func (okTuner) EnableWAL(ctx context.Context) error                       { return nil }
func (okTuner) SetBusyTimeout(ctx context.Context, d time.Duration) error { return nil }
func (okTuner) SetSynchronous(ctx context.Context, mode string) error     { return nil }
func (okTuner) Checkpoint(ctx context.Context) error                      { return nil }
func (okTuner) Ping(ctx context.Context) error                            { return nil }

var errOverloaded = errors.New("529 overloaded_error: Overloaded")
