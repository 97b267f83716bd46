// Package capture turns failures from the host process into canonical
// ErrorEvents and delivers them to an analyzer.
//
// Three channels exist: ErrorChannel for reported error values, PanicChannel
// for recovered panics, and CrashChannel for payloads pushed by an external
// crash collector. A Hub fans all of them into a bounded queue drained by a
// worker pool.
package capture

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/medic/internal/types"
)

// StackTracer is implemented by errors that carry their own stack trace
type StackTracer interface {
	StackTrace() string
}

type coder interface {
	Code() int
}

// now is swapped in tests
var now = time.Now

// Normalize converts an error value into an ErrorEvent of kind error
func Normalize(err error) types.ErrorEvent {
	return normalize(err, types.KindError)
}

func normalize(err error, kind types.EventKind) types.ErrorEvent {
	event := newEvent(kind)
	if err == nil {
		event.Message = "nil error reported"
		return event
	}
	event.Message = err.Error()

	var st StackTracer
	if errors.As(err, &st) {
		event.StackTrace = st.StackTrace()
	} else {
		event.StackTrace = trimStack(debug.Stack())
	}

	var c coder
	var errno syscall.Errno
	switch {
	case errors.As(err, &c):
		code := c.Code()
		event.NativeCode = &code
	case errors.As(err, &errno):
		code := int(errno)
		event.NativeCode = &code
	}
	return event
}

// NormalizeText builds an error event from a message and stack captured
// elsewhere, e.g. pasted into the CLI. No local stack is collected.
func NormalizeText(message, stack string) types.ErrorEvent {
	event := newEvent(types.KindError)
	event.Message = message
	event.StackTrace = stack
	return event
}

// NormalizePanic converts a recovered panic value into an ErrorEvent
func NormalizePanic(v any, stack []byte) types.ErrorEvent {
	event := newEvent(types.KindPanic)
	switch x := v.(type) {
	case error:
		event.Message = x.Error()
	case string:
		event.Message = x
	default:
		event.Message = fmt.Sprintf("panic: %v", v)
	}
	if len(stack) > 0 {
		event.StackTrace = trimStack(stack)
	}
	return event
}

// CrashPayload is what an external crash collector reports about a process
// that died
type CrashPayload struct {
	Signal    string    `json:"signal"`
	Reason    string    `json:"reason,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Dump      string    `json:"dump,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizeCrash converts a crash payload into an ErrorEvent of kind crash
func NormalizeCrash(p CrashPayload) types.ErrorEvent {
	event := newEvent(types.KindCrash)
	if !p.Timestamp.IsZero() {
		event.OccurredAt = p.Timestamp
	}

	signal := p.Signal
	if signal == "" {
		signal = "unknown"
	}
	msg := "process crashed: unexpected signal " + signal
	if p.Reason != "" {
		msg += ": " + p.Reason
	}
	if p.ExitCode != nil {
		msg += fmt.Sprintf(" (exit code %d)", *p.ExitCode)
		code := *p.ExitCode
		event.NativeCode = &code
	}
	event.Message = msg
	event.StackTrace = p.Dump
	return event
}

func newEvent(kind types.EventKind) types.ErrorEvent {
	return types.ErrorEvent{
		ID:             uuid.NewString(),
		Kind:           kind,
		OccurredAt:     now(),
		ProcessContext: types.SnapshotProcess(),
	}
}

// trimStack drops the frames belonging to stack collection and capture
// itself, keeping the goroutine header.
func trimStack(stack []byte) string {
	lines := strings.Split(strings.TrimRight(string(stack), "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}
	out := []string{lines[0]}
	for i := 1; i < len(lines); i += 2 {
		fn := lines[i]
		if strings.HasPrefix(fn, "runtime/debug.") ||
			strings.HasPrefix(fn, "panic(") ||
			strings.Contains(fn, "/internal/capture.") {
			continue
		}
		out = append(out, fn)
		if i+1 < len(lines) {
			out = append(out, lines[i+1])
		}
	}
	return strings.Join(out, "\n")
}
