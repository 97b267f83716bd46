package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/steveyegge/medic/internal/classify"
	"github.com/steveyegge/medic/internal/metrics"
	"github.com/steveyegge/medic/internal/types"
)

// GuardConfig holds the protection settings applied around AI calls
type GuardConfig struct {
	Timeout time.Duration // Per-call timeout (default: 60s)

	// Circuit breaker settings
	CircuitBreakerEnabled bool          // Enable circuit breaker (default: true)
	FailureThreshold      int           // Failures before opening circuit (default: 5)
	SuccessThreshold      int           // Successes in half-open before closing (default: 2)
	OpenTimeout           time.Duration // How long to keep circuit open (default: 30s)

	MaxConcurrentCalls int     // Maximum in-flight calls (default: 3, 0 = unlimited)
	RequestsPerSecond  float64 // Call pacing (default: 2, 0 = unlimited)
	Burst              int     // Limiter burst (default: 1)

	Logger *slog.Logger
}

// DefaultGuardConfig returns the default guard configuration
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    3,
		RequestsPerSecond:     2,
		Burst:                 1,
	}
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, block requests (fail fast)
	CircuitHalfOpen                     // Testing recovery, allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing provider until it has had time to
// recover
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	logger           *slog.Logger

	now func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		logger:           logger,
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen while the circuit is open and the open
// timeout has not elapsed
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure while probing reopens immediately
		cb.transition(CircuitOpen)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// must be called with lock held
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successCount = 0
	if to == CircuitClosed {
		cb.failureCount = 0
	}
	cb.logger.Info("circuit breaker state transition",
		"from", from.String(), "to", to.String(), "failures", cb.failureCount)
}

// Guarded wraps a Client with the breaker, concurrency cap and limiter.
// Calls beyond the cap queue on the semaphore.
type Guarded struct {
	inner   Client
	timeout time.Duration
	breaker *CircuitBreaker
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Compile-time check that Guarded implements Client
var _ Client = (*Guarded)(nil)

// NewGuarded wraps inner. Zero-valued fields of cfg fall back to
// DefaultGuardConfig.
func NewGuarded(inner Client, cfg GuardConfig) *Guarded {
	def := DefaultGuardConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ai")

	g := &Guarded{inner: inner, timeout: cfg.Timeout, logger: logger}
	if cfg.CircuitBreakerEnabled {
		g.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout, logger)
	}
	if cfg.MaxConcurrentCalls > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return g
}

// Breaker returns the circuit breaker, nil when disabled
func (g *Guarded) Breaker() *CircuitBreaker { return g.breaker }

// Chat calls the inner client under the guards
func (g *Guarded) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	var resp *ChatResponse
	err := g.call(ctx, "chat", func(ctx context.Context) error {
		r, err := g.inner.Chat(ctx, messages, opts)
		resp = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListModels calls the inner client under the guards
func (g *Guarded) ListModels(ctx context.Context) ([]string, error) {
	var models []string
	err := g.call(ctx, "list models", func(ctx context.Context) error {
		m, err := g.inner.ListModels(ctx)
		models = m
		return err
	})
	return models, err
}

func (g *Guarded) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			g.logger.Warn("AI call blocked by circuit breaker", "operation", operation)
			return fmt.Errorf("%s failed: %w", operation, err)
		}
	}

	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to acquire concurrency slot for %s: %w", operation, err)
		}
		defer g.sem.Release(1)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait for %s: %w", operation, err)
		}
	}

	metrics.AICallsInFlight.Inc()
	defer metrics.AICallsInFlight.Dec()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		if g.breaker != nil {
			g.breaker.RecordSuccess()
		}
		return nil
	}

	// Client-side errors say nothing about provider health
	if g.breaker != nil && isTransient(err) {
		g.breaker.RecordFailure()
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}

// isTransient reports whether err looks like a provider-side or transport
// failure, using the same classifier the engine applies to host errors
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch classify.ClassifyText(err.Error()) {
	case types.RateLimited, types.ServerError, types.ProviderOverloaded,
		types.RequestTimeout, types.ConnectionRefused, types.ConnectionReset,
		types.ConnectionTimeout, types.NetworkUnreachable, types.DNSFailure:
		return true
	}
	return false
}
