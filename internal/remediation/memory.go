package remediation

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/steveyegge/medic/internal/types"
)

// memoryRelief forces a GC, returns freed memory to the OS and clears every
// registered cache independently
func (s *strategies) memoryRelief(ctx context.Context, req Request) types.RemediationResult {
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	runtime.GC()
	debug.FreeOSMemory()

	cleared := []string{}
	failed := map[string]string{}
	if s.deps.Caches != nil {
		cr := s.deps.Caches.ClearAll(ctx)
		cleared = cr.Cleared
		failed = cr.Failed
		for name, err := range failed {
			s.logger.Warn("cache clear failed", "cache", name, "error", err)
		}
	}

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	msg := fmt.Sprintf("gc run, heap %s -> %s", formatBytes(before.HeapAlloc), formatBytes(after.HeapAlloc))
	if len(cleared) > 0 {
		msg += "; cleared " + strings.Join(cleared, ", ")
	}
	return types.RemediationResult{
		Attempted: true,
		Success:   true,
		Message:   msg,
		Extra: map[string]any{
			"caches_cleared": cleared,
			"caches_failed":  failed,
			"heap_before":    before.HeapAlloc,
			"heap_after":     after.HeapAlloc,
		},
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
