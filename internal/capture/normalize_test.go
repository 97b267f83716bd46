package capture

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/types"
)

type codedErr struct{ code int }

func (e codedErr) Error() string { return fmt.Sprintf("coded failure %d", e.code) }
func (e codedErr) Code() int     { return e.code }

type tracedErr struct{}

func (tracedErr) Error() string      { return "traced" }
func (tracedErr) StackTrace() string { return "at frame one\nat frame two" }

func TestNormalize(t *testing.T) {
	event := Normalize(errors.New("connect ECONNREFUSED 127.0.0.1:11434"))

	require.NoError(t, event.Validate())
	assert.Equal(t, types.KindError, event.Kind)
	assert.Equal(t, "connect ECONNREFUSED 127.0.0.1:11434", event.Message)
	assert.NotEmpty(t, event.StackTrace)
	assert.NotContains(t, event.StackTrace, "runtime/debug.Stack")
	assert.Nil(t, event.NativeCode)
	assert.Equal(t, os.Getpid(), event.ProcessContext.PID)
}

func TestNormalize_NativeCode(t *testing.T) {
	event := Normalize(fmt.Errorf("wrapped: %w", codedErr{code: 5}))
	require.NotNil(t, event.NativeCode)
	assert.Equal(t, 5, *event.NativeCode)

	event = Normalize(fmt.Errorf("dial: %w", syscall.ECONNREFUSED))
	require.NotNil(t, event.NativeCode)
	assert.Equal(t, int(syscall.ECONNREFUSED), *event.NativeCode)
}

func TestNormalize_OwnStackTrace(t *testing.T) {
	event := Normalize(tracedErr{})
	assert.Equal(t, "at frame one\nat frame two", event.StackTrace)
}

func TestNormalize_Nil(t *testing.T) {
	event := Normalize(nil)
	assert.Equal(t, "nil error reported", event.Message)
	assert.NoError(t, event.Validate())
}

func TestNormalize_UniqueIDs(t *testing.T) {
	a := NormalizeText("x", "")
	b := NormalizeText("x", "")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNormalizeText(t *testing.T) {
	event := NormalizeText("SQLITE_BUSY: database is locked", "at db.go:12")
	assert.Equal(t, types.KindError, event.Kind)
	assert.Equal(t, "at db.go:12", event.StackTrace)
	assert.Equal(t, "SQLITE_BUSY: database is locked\nat db.go:12", event.Text())
}

func TestNormalizePanic(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "index out of range", "index out of range"},
		{"error", errors.New("nil map write"), "nil map write"},
		{"other", 42, "panic: 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NormalizePanic(tt.value, debug.Stack())
			assert.Equal(t, types.KindPanic, event.Kind)
			assert.Equal(t, tt.want, event.Message)
			assert.NotEmpty(t, event.StackTrace)
		})
	}
}

func TestNormalizeCrash(t *testing.T) {
	code := 139
	at := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	event := NormalizeCrash(CrashPayload{
		Signal:    "SIGSEGV",
		Reason:    "nil map write",
		ExitCode:  &code,
		Dump:      "goroutine 1 [running]:",
		Timestamp: at,
	})

	assert.Equal(t, types.KindCrash, event.Kind)
	assert.Equal(t, "process crashed: unexpected signal SIGSEGV: nil map write (exit code 139)", event.Message)
	assert.Equal(t, "goroutine 1 [running]:", event.StackTrace)
	assert.Equal(t, at, event.OccurredAt)
	require.NotNil(t, event.NativeCode)
	assert.Equal(t, 139, *event.NativeCode)
}

func TestNormalizeCrash_Minimal(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	defer func() { now = orig }()

	event := NormalizeCrash(CrashPayload{})
	assert.Equal(t, "process crashed: unexpected signal unknown", event.Message)
	assert.Equal(t, fixed, event.OccurredAt)
	assert.Nil(t, event.NativeCode)
}

func TestTrimStack(t *testing.T) {
	stack := "goroutine 7 [running]:\n" +
		"runtime/debug.Stack()\n\t/go/src/runtime/debug/stack.go:24 +0x5e\n" +
		"github.com/steveyegge/medic/internal/capture.normalize(...)\n\t/src/normalize.go:40\n" +
		"main.handler()\n\t/src/main.go:12 +0x1d\n"

	got := trimStack([]byte(stack))
	assert.Equal(t, "goroutine 7 [running]:\nmain.handler()\n\t/src/main.go:12 +0x1d", got)
}
