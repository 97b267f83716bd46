// Package retry implements the bounded exponential-backoff executor used by
// remediation strategies.
//
// RunWithBackoff never panics and never returns an error value of its own:
// exhaustion is reported through Outcome.Success=false. Every call owns its
// delay and timeout state, so concurrent calls do not interfere.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/medic/internal/types"
)

// Operation is a retryable unit of work. The context carries the per-attempt
// timeout.
type Operation func(ctx context.Context) (any, error)

// Outcome is the structured result of RunWithBackoff
type Outcome struct {
	Success    bool
	Result     any
	Err        error // Last error seen, nil on success
	Attempts   int
	TotalDelay time.Duration
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Scheduler runs operations with backoff. The zero value uses a real sleeper.
type Scheduler struct {
	Sleep  Sleeper
	Logger *slog.Logger
}

func realSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var defaultScheduler = &Scheduler{}

// RunWithBackoff runs op with the default scheduler
func RunWithBackoff(ctx context.Context, op Operation, policy types.RemediationPolicy) Outcome {
	return defaultScheduler.RunWithBackoff(ctx, op, policy)
}

// Wait is the delay used when there is no operation: the second step of the
// backoff curve, capped at MaxDelay.
func Wait(policy types.RemediationPolicy) time.Duration {
	p := policy.WithDefaults()
	d := time.Duration(float64(p.BaseDelay) * p.GrowthFactor)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// RunWithBackoff attempts op up to policy.MaxRetries times. Each attempt
// sleeps the current delay first, then runs op under the current timeout.
// A nil op degrades to a single wait that reports success.
func (s *Scheduler) RunWithBackoff(ctx context.Context, op Operation, policy types.RemediationPolicy) Outcome {
	sleep := s.Sleep
	if sleep == nil {
		sleep = realSleep
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := policy.WithDefaults()

	if op == nil {
		d := Wait(p)
		if err := sleep(ctx, d); err != nil {
			return Outcome{Success: false, Err: err, TotalDelay: d}
		}
		return Outcome{Success: true, TotalDelay: d}
	}

	var (
		out     Outcome
		delay   = p.BaseDelay
		timeout = p.Timeout
	)

	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		if err := sleep(ctx, delay); err != nil {
			out.Err = fmt.Errorf("backoff interrupted: %w", err)
			return out
		}
		out.TotalDelay += delay
		out.Attempts = attempt

		result, err := runAttempt(ctx, op, timeout)
		if err == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retries", "attempts", attempt)
			}
			out.Success = true
			out.Result = result
			out.Err = nil
			return out
		}
		out.Err = err

		logger.Debug("retryable operation failed",
			"attempt", attempt, "max", p.MaxRetries, "delay", delay, "error", err)

		delay = time.Duration(float64(delay) * p.GrowthFactor)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		timeout = time.Duration(float64(timeout) * p.TimeoutGrowth)
	}

	if out.Err == nil && p.MaxRetries <= 0 {
		out.Err = fmt.Errorf("no attempts allowed by policy")
	}
	return out
}

type attemptResult struct {
	value any
	err   error
}

// runAttempt executes one attempt under timeout. An operation that ignores
// its context is abandoned when the timeout fires; its result is discarded.
func runAttempt(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("operation panicked: %v", r)}
			}
		}()
		v, err := op(attemptCtx)
		done <- attemptResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("attempt exceeded timeout %v: %w", timeout, attemptCtx.Err())
	}
}
