package remediation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/medic/internal/types"
)

// busyTimeout is the lock-wait timeout applied during lock recovery
const busyTimeout = 5 * time.Second

// lockRecovery tunes the storage engine for concurrent access, checkpoints
// it, then retries the caller's operation (or a ping) with LockPolicy.
func (s *strategies) lockRecovery(ctx context.Context, req Request) types.RemediationResult {
	handle := req.StorageHandle
	if handle == "" {
		handle = DefaultStorageHandle
	}
	tuner := s.deps.Storage[handle]

	var applied, failed []string
	if tuner != nil {
		s.deps.Locks.Do("storage:"+handle, func() {
			steps := []struct {
				name string
				fn   func() error
			}{
				{"wal", func() error { return tuner.EnableWAL(ctx) }},
				{"busy_timeout", func() error { return tuner.SetBusyTimeout(ctx, busyTimeout) }},
				{"synchronous", func() error { return tuner.SetSynchronous(ctx, "NORMAL") }},
				{"checkpoint", func() error { return tuner.Checkpoint(ctx) }},
			}
			for _, step := range steps {
				if err := bestEffort(step.fn); err != nil {
					s.logger.Warn("storage tuning step failed", "handle", handle, "step", step.name, "error", err)
					failed = append(failed, step.name)
					continue
				}
				applied = append(applied, step.name)
			}
		})
	}

	op := req.Operation
	if op == nil && tuner != nil {
		op = func(ctx context.Context) (any, error) { return nil, tuner.Ping(ctx) }
	}

	out := s.deps.Scheduler.RunWithBackoff(ctx, op, LockPolicy)

	res := types.RemediationResult{
		Attempted: true,
		Success:   out.Success,
		Retries:   out.Attempts,
		Extra: map[string]any{
			"storage_handle": handle,
			"tuned":          applied,
			"tuning_failed":  failed,
			"max_retries":    LockPolicy.MaxRetries,
			"base_delay":     LockPolicy.BaseDelay.String(),
			"total_delay":    out.TotalDelay.String(),
		},
	}
	if tuner == nil {
		res.Extra["tuning_skipped"] = fmt.Sprintf("no storage tuner for handle %q", handle)
	}

	if out.Success {
		res.Message = fmt.Sprintf("lock cleared after %d attempt(s)", out.Attempts)
		if len(applied) > 0 {
			res.Message += "; applied " + strings.Join(applied, ", ")
		}
	} else {
		res.Message = fmt.Sprintf("lock persisted after %d attempt(s): %v", out.Attempts, out.Err)
	}
	return res
}

// bestEffort runs fn and converts a panic into an error
func bestEffort(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panicked: %v", r)
		}
	}()
	return fn()
}
