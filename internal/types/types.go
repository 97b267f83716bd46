package types

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// Sentinel errors returned by management operations. Pipeline stages never
// return these to the host; they are for callers of Get/History/Transition.
var (
	ErrNotFound          = errors.New("analysis not found")
	ErrNotConfigured     = errors.New("analysis store not configured")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// EventKind identifies the channel a failure was captured from
type EventKind string

const (
	KindError     EventKind = "error"     // Reported error value
	KindPanic     EventKind = "panic"     // Recovered panic (uncaught exception)
	KindRejection EventKind = "rejection" // Failed asynchronous operation nobody waited on
	KindCrash     EventKind = "crash"     // OS-level crash payload from the crash collector
)

// IsValid checks if the kind value is valid
func (k EventKind) IsValid() bool {
	switch k {
	case KindError, KindPanic, KindRejection, KindCrash:
		return true
	}
	return false
}

// ErrorEvent is the canonical, normalized representation of a captured failure.
// Treat it as immutable once constructed; it is passed by value.
type ErrorEvent struct {
	ID             string         `json:"id"`
	Kind           EventKind      `json:"kind"`
	Message        string         `json:"message"`
	StackTrace     string         `json:"stack_trace,omitempty"`
	NativeCode     *int           `json:"native_code,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	ProcessContext ProcessContext `json:"process_context"`
}

// Validate checks if the event has valid field values
func (e ErrorEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("invalid event kind: %s", e.Kind)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// Text returns the message and stack trace joined, which is what the
// classifier and keyword extraction look at.
func (e ErrorEvent) Text() string {
	if e.StackTrace == "" {
		return e.Message
	}
	return e.Message + "\n" + e.StackTrace
}

// Summary returns the first line of the message, truncated for display
func (e ErrorEvent) Summary() string {
	line := e.Message
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) > 120 {
		line = line[:117] + "..."
	}
	return line
}

// ProcessContext is a diagnostic snapshot of the host process taken when a
// failure was captured. It is never used for control flow.
type ProcessContext struct {
	Platform     string        `json:"platform" yaml:"platform"`
	Arch         string        `json:"arch" yaml:"arch"`
	GoVersion    string        `json:"go_version" yaml:"go_version"`
	PID          int           `json:"pid" yaml:"pid"`
	Hostname     string        `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Uptime       time.Duration `json:"uptime" yaml:"uptime"`
	HeapAlloc    uint64        `json:"heap_alloc" yaml:"heap_alloc"`
	HeapSys      uint64        `json:"heap_sys" yaml:"heap_sys"`
	NumGoroutine int           `json:"num_goroutine" yaml:"num_goroutine"`
}

var processStart = time.Now()

// SnapshotProcess captures the current process context
func SnapshotProcess() ProcessContext {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	hostname, _ := os.Hostname()
	return ProcessContext{
		Platform:     runtime.GOOS,
		Arch:         runtime.GOARCH,
		GoVersion:    runtime.Version(),
		PID:          os.Getpid(),
		Hostname:     hostname,
		Uptime:       time.Since(processStart).Round(time.Second),
		HeapAlloc:    mem.HeapAlloc,
		HeapSys:      mem.HeapSys,
		NumGoroutine: runtime.NumGoroutine(),
	}
}
