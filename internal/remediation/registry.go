// Package remediation maps failure classifications to corrective strategies.
//
// Strategies are plain functions registered per classification at
// construction time. Several classifications share one strategy (both
// SQLite lock codes route to lock recovery). Remediate never panics and
// never returns an error: strategy failures, including panics, come back as
// an attempted, unsuccessful RemediationResult.
package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/medic/internal/cache"
	"github.com/steveyegge/medic/internal/keylock"
	"github.com/steveyegge/medic/internal/procctl"
	"github.com/steveyegge/medic/internal/reconnect"
	"github.com/steveyegge/medic/internal/retry"
	"github.com/steveyegge/medic/internal/types"
)

// DefaultStorageHandle names the storage handle used when a request does
// not specify one
const DefaultStorageHandle = "default"

// StorageTuner is the storage-engine tuning collaborator used by lock
// recovery. Each call is independent and best-effort.
type StorageTuner interface {
	EnableWAL(ctx context.Context) error
	SetBusyTimeout(ctx context.Context, d time.Duration) error
	SetSynchronous(ctx context.Context, mode string) error
	Checkpoint(ctx context.Context) error
	Ping(ctx context.Context) error
}

// ServiceReconnector probes and restarts dependent services
type ServiceReconnector interface {
	Catalog() *reconnect.Catalog
	ReconnectService(ctx context.Context, svc reconnect.Service) reconnect.Result
	Probe(ctx context.Context, svc reconnect.Service) error
}

// Context is the caller-supplied remediation context
type Context struct {
	// Operation is the failed operation, retried by strategies that retry.
	// Optional.
	Operation retry.Operation
	// StorageHandle selects the storage tuner for lock recovery. Empty
	// means DefaultStorageHandle.
	StorageHandle string
}

// Request is what a strategy receives
type Request struct {
	Event          types.ErrorEvent
	Classification types.Classification
	Operation      retry.Operation
	StorageHandle  string
}

// Strategy performs one corrective action. It reports through the result;
// the registry fills Classification and Strategy.
type Strategy func(ctx context.Context, req Request) types.RemediationResult

// Deps are the collaborators strategies act through. Any may be nil; a
// strategy whose collaborator is missing reports an unsuccessful attempt.
type Deps struct {
	Storage     map[string]StorageTuner
	Reconnector ServiceReconnector
	Process     procctl.Controller
	Caches      *cache.Registry
	Locks       *keylock.Locker
	Scheduler   *retry.Scheduler

	// PortReleaseWait is how long port reclamation waits after terminating
	// listeners. Default: 500ms.
	PortReleaseWait time.Duration
	// Sleep waits for port release; replaced in tests
	Sleep retry.Sleeper

	Logger *slog.Logger
}

type entry struct {
	name string
	fn   Strategy
}

// Registry holds the classification to strategy table
type Registry struct {
	mu         sync.RWMutex
	strategies map[types.Classification]entry
	deps       Deps
	logger     *slog.Logger
}

// NewRegistry builds a registry with the built-in strategies bound to deps
func NewRegistry(deps Deps) *Registry {
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = &retry.Scheduler{Logger: deps.Logger}
	}
	if deps.PortReleaseWait <= 0 {
		deps.PortReleaseWait = 500 * time.Millisecond
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := &Registry{
		strategies: make(map[types.Classification]entry),
		deps:       deps,
		logger:     deps.Logger.With("component", "remediation"),
	}

	s := &strategies{deps: deps, logger: r.logger}
	r.Register("lock", s.lockRecovery, types.DatabaseLocked, types.DatabaseBusy)
	r.Register("reconnect", s.serviceReconnect, types.ConnectionRefused, types.ConnectionTimeout)
	r.Register("cleanup", s.resourceCleanup, types.PermissionDenied, types.FileNotFound)
	r.Register("port", s.portReclaim, types.AddressInUse)
	r.Register("memory", s.memoryRelief, types.OutOfMemory)
	r.Register("retry", s.genericRetry, GenericRetryClassifications()...)
	return r
}

// Register binds fn to each classification, replacing any existing binding
func (r *Registry) Register(name string, fn Strategy, classes ...types.Classification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range classes {
		r.strategies[c] = entry{name: name, fn: fn}
	}
}

// Lookup returns the strategy name bound to c
func (r *Registry) Lookup(c types.Classification) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.strategies[c]
	return e.name, ok
}

// Registered returns every classification with a strategy, sorted
func (r *Registry) Registered() []types.Classification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Classification, 0, len(r.strategies))
	for c := range r.strategies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Remediate runs the strategy registered for classification. Without one it
// returns an unattempted result and touches no collaborator.
func (r *Registry) Remediate(ctx context.Context, event types.ErrorEvent, classification types.Classification, rctx Context) types.RemediationResult {
	r.mu.RLock()
	e, ok := r.strategies[classification]
	r.mu.RUnlock()
	if !ok {
		return types.NotAttempted(classification)
	}

	req := Request{
		Event:          event,
		Classification: classification,
		Operation:      rctx.Operation,
		StorageHandle:  rctx.StorageHandle,
	}

	start := time.Now()
	res := r.run(ctx, e, req)
	res.Classification = classification
	res.Strategy = e.name

	r.logger.Info("remediation finished",
		"classification", classification,
		"strategy", e.name,
		"success", res.Success,
		"retries", res.Retries,
		"duration", time.Since(start).Round(time.Millisecond))
	return res
}

func (r *Registry) run(ctx context.Context, e entry, req Request) (res types.RemediationResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("remediation strategy panicked", "strategy", e.name, "panic", p)
			res = types.RemediationResult{
				Attempted: true,
				Success:   false,
				Message:   fmt.Sprintf("strategy %s panicked: %v", e.name, p),
			}
		}
	}()
	return e.fn(ctx, req)
}

// Unremediable lists classifications that intentionally have no strategy.
// Together with the registered set it covers every classification.
func Unremediable() []types.Classification {
	return []types.Classification{
		types.DatabaseCorrupt,
		types.DatabaseReadonly,
		types.DatabaseConstraint,
		types.DiskFull,
		types.TLSError,
		types.StackOverflow,
		types.AuthFailed,
		types.AccessForbidden,
		types.ResourceNotFound,
		types.ProcessCrash,
		types.Deadlock,
		types.ModelNotFound,
		types.ContextLengthExceeded,
		types.ValidationError,
		types.NilReference,
		types.TypeError,
		types.IndexOutOfRange,
		types.Unknown,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// strategies binds the built-in strategy functions to their collaborators
type strategies struct {
	deps   Deps
	logger *slog.Logger
}
