package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/types"
)

// fakeSleeper records requested delays without sleeping
type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	return ctx.Err()
}

var testPolicy = types.RemediationPolicy{
	MaxRetries:   3,
	BaseDelay:    100 * time.Millisecond,
	MaxDelay:     time.Second,
	GrowthFactor: 2,
	Timeout:      time.Second,
}

func TestRunWithBackoff_SucceedsOnThirdAttempt(t *testing.T) {
	fs := &fakeSleeper{}
	s := &Scheduler{Sleep: fs.sleep}

	var calls int32
	out := s.RunWithBackoff(context.Background(), func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("database is locked")
		}
		return "ok", nil
	}, testPolicy)

	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, "ok", out.Result)
	assert.NoError(t, out.Err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, fs.delays)
	assert.Equal(t, 700*time.Millisecond, out.TotalDelay)
}

func TestRunWithBackoff_AlwaysFailingStopsAtMaxRetries(t *testing.T) {
	s := &Scheduler{Sleep: (&fakeSleeper{}).sleep}

	var calls int32
	out := s.RunWithBackoff(context.Background(), func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("still broken")
	}, testPolicy)

	assert.False(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.EqualError(t, out.Err, "still broken")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "operation must not run a 4th time")
}

func TestRunWithBackoff_DelayCappedAtMax(t *testing.T) {
	fs := &fakeSleeper{}
	s := &Scheduler{Sleep: fs.sleep}
	p := testPolicy
	p.MaxRetries = 5
	p.MaxDelay = 300 * time.Millisecond

	s.RunWithBackoff(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("no")
	}, p)

	require.Len(t, fs.delays, 5)
	for _, d := range fs.delays {
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
	assert.Equal(t, 300*time.Millisecond, fs.delays[4])
}

func TestRunWithBackoff_AttemptTimeout(t *testing.T) {
	s := &Scheduler{Sleep: (&fakeSleeper{}).sleep}
	p := testPolicy
	p.MaxRetries = 1
	p.Timeout = 20 * time.Millisecond

	out := s.RunWithBackoff(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, p)

	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestRunWithBackoff_PanicIsFailure(t *testing.T) {
	s := &Scheduler{Sleep: (&fakeSleeper{}).sleep}
	p := testPolicy
	p.MaxRetries = 2

	var calls int32
	out := s.RunWithBackoff(context.Background(), func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return 42, nil
	}, p)

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 42, out.Result)
}

func TestRunWithBackoff_NilOperationWaitsOnce(t *testing.T) {
	fs := &fakeSleeper{}
	s := &Scheduler{Sleep: fs.sleep}

	out := s.RunWithBackoff(context.Background(), nil, testPolicy)

	assert.True(t, out.Success)
	assert.Equal(t, 0, out.Attempts)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, fs.delays)
	assert.Equal(t, Wait(testPolicy), out.TotalDelay)
}

func TestRunWithBackoff_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Scheduler{Sleep: (&fakeSleeper{}).sleep}

	var calls int32
	out := s.RunWithBackoff(ctx, func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}, testPolicy)

	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRunWithBackoff_ZeroRetries(t *testing.T) {
	s := &Scheduler{Sleep: (&fakeSleeper{}).sleep}
	p := testPolicy
	p.MaxRetries = 0

	out := s.RunWithBackoff(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	}, p)

	assert.False(t, out.Success)
	assert.Error(t, out.Err)
}

func TestRunWithBackoff_RealSleeper(t *testing.T) {
	p := types.RemediationPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Timeout: time.Second}
	var calls int32
	out := RunWithBackoff(context.Background(), func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("once")
		}
		return nil, nil
	}, p)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
}
