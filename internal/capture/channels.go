package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/steveyegge/medic/internal/types"
)

// Handler receives captured events. Handlers must not block.
type Handler func(types.ErrorEvent)

// FailureChannel is a source of failure events
type FailureChannel interface {
	Name() string
	Subscribe(h Handler) (unsubscribe func())
}

// fanout is the subscriber list shared by the built-in channels
type fanout struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func (f *fanout) Subscribe(h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[int]Handler)
	}
	id := f.next
	f.next++
	f.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}
}

func (f *fanout) emit(event types.ErrorEvent) {
	f.mu.RLock()
	handlers := make([]Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// ErrorChannel delivers error values the host reports explicitly
type ErrorChannel struct {
	fanout
}

// NewErrorChannel creates an error channel
func NewErrorChannel() *ErrorChannel { return &ErrorChannel{} }

// Name implements FailureChannel
func (c *ErrorChannel) Name() string { return "error" }

// Report captures err. Nil errors are ignored.
func (c *ErrorChannel) Report(err error) {
	if err == nil {
		return
	}
	c.emit(Normalize(err))
}

// ReportText captures a failure described by text, e.g. forwarded from
// another process
func (c *ErrorChannel) ReportText(message, stack string) {
	c.emit(NormalizeText(message, stack))
}

// Watch runs fn in a new goroutine and captures its error as a rejection,
// for asynchronous work nobody waits on
func (c *ErrorChannel) Watch(fn func() error) {
	go func() {
		if err := fn(); err != nil {
			c.emit(normalize(err, types.KindRejection))
		}
	}()
}

// PanicChannel captures panics from goroutines it wraps. A recovered panic
// is delivered as an event and never re-raised.
type PanicChannel struct {
	fanout
}

// NewPanicChannel creates a panic channel
func NewPanicChannel() *PanicChannel { return &PanicChannel{} }

// Name implements FailureChannel
func (c *PanicChannel) Name() string { return "panic" }

// Go runs fn in a new goroutine with panic capture
func (c *PanicChannel) Go(fn func()) {
	go func() {
		defer c.Recover()
		fn()
	}()
}

// Recover must be deferred directly by the function that may panic
func (c *PanicChannel) Recover() {
	if r := recover(); r != nil {
		c.emit(NormalizePanic(r, debug.Stack()))
	}
}

// CrashChannel receives crash payloads from an external collector
type CrashChannel struct {
	fanout
	logger *slog.Logger
}

// NewCrashChannel creates a crash channel
func NewCrashChannel(logger *slog.Logger) *CrashChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashChannel{logger: logger.With("component", "capture", "channel", "crash")}
}

// Name implements FailureChannel
func (c *CrashChannel) Name() string { return "crash" }

// Push captures one crash payload
func (c *CrashChannel) Push(p CrashPayload) {
	c.emit(NormalizeCrash(p))
}

// ReadFrom consumes JSON-lines crash payloads until r is exhausted or ctx is
// done. Malformed lines are logged and skipped. Returns the number of
// payloads delivered.
func (c *CrashChannel) ReadFrom(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	delivered := 0
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var p CrashPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Warn("skipping malformed crash payload", "line", line, "error", err)
			continue
		}
		c.Push(p)
		delivered++
	}
	if err := scanner.Err(); err != nil {
		return delivered, fmt.Errorf("failed to read crash payloads: %w", err)
	}
	return delivered, nil
}
