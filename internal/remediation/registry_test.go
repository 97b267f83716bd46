package remediation

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/cache"
	"github.com/steveyegge/medic/internal/reconnect"
	"github.com/steveyegge/medic/internal/types"
)

func event(msg string) types.ErrorEvent {
	return types.ErrorEvent{ID: "e1", Kind: types.KindError, Message: msg, OccurredAt: time.Now()}
}

func TestRegistry_CoversEveryClassification(t *testing.T) {
	r := NewRegistry(Deps{})

	seen := make(map[types.Classification]bool)
	for _, c := range r.Registered() {
		seen[c] = true
	}
	for _, c := range Unremediable() {
		assert.False(t, seen[c], "%s is both registered and unremediable", c)
		seen[c] = true
	}

	var missing []string
	for _, c := range types.AllClassifications() {
		if !seen[c] {
			missing = append(missing, string(c))
		}
	}
	sort.Strings(missing)
	assert.Empty(t, missing, "classifications with no strategy decision")
	assert.Len(t, seen, len(types.AllClassifications()))
}

func TestRemediate_NoStrategyTouchesNothing(t *testing.T) {
	rec := &recorder{}
	deps, _, _, _ := testDeps(rec)
	r := NewRegistry(deps)

	for _, c := range Unremediable() {
		res := r.Remediate(context.Background(), event("whatever"), c, Context{})
		assert.False(t, res.Attempted, "%s", c)
		assert.Equal(t, c, res.Classification)
	}
	assert.Empty(t, rec.all(), "no collaborator may be called")
}

func TestRemediate_StrategyPanicBecomesFailure(t *testing.T) {
	r := NewRegistry(Deps{})
	r.Register("explode", func(ctx context.Context, req Request) types.RemediationResult {
		panic("kaboom")
	}, types.Deadlock)

	res := r.Remediate(context.Background(), event("deadlock"), types.Deadlock, Context{})
	assert.True(t, res.Attempted)
	assert.False(t, res.Success)
	assert.Equal(t, "explode", res.Strategy)
	assert.Contains(t, res.Message, "kaboom")
}

func TestLockRecovery_SQLiteBusy(t *testing.T) {
	rec := &recorder{}
	deps, _, _, _ := testDeps(rec)
	r := NewRegistry(deps)

	res := r.Remediate(context.Background(), event("SQLITE_BUSY: database is locked"), types.DatabaseLocked, Context{})

	assert.True(t, res.Attempted)
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, "lock", res.Strategy)
	assert.Equal(t, 5, res.Extra["max_retries"])
	assert.Equal(t, []string{"wal", "busy_timeout", "synchronous"}, res.Extra["tuned"])
	assert.Equal(t, []string{"checkpoint"}, res.Extra["tuning_failed"])
	assert.Equal(t, 1, rec.count("ping"))
}

func TestLockRecovery_ExhaustsFiveRetries(t *testing.T) {
	rec := &recorder{}
	deps, _, _, _ := testDeps(rec)
	r := NewRegistry(deps)

	var calls int
	op := func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("database is locked")
	}
	res := r.Remediate(context.Background(), event("database is locked"), types.DatabaseBusy, Context{Operation: op})

	assert.False(t, res.Success)
	assert.Equal(t, 5, res.Retries)
	assert.Equal(t, 5, calls)
	assert.Contains(t, res.Message, "lock persisted")
}

func TestLockRecovery_UnknownHandle(t *testing.T) {
	rec := &recorder{}
	deps, _, _, _ := testDeps(rec)
	r := NewRegistry(deps)

	res := r.Remediate(context.Background(), event("database is locked"), types.DatabaseLocked,
		Context{StorageHandle: "analytics", Operation: func(ctx context.Context) (any, error) { return nil, nil }})

	assert.True(t, res.Success)
	assert.Contains(t, res.Extra["tuning_skipped"], "analytics")
	assert.Zero(t, rec.count("wal"))
}

func TestServiceReconnect_ReconnectsBeforeRetry(t *testing.T) {
	rec := &recorder{}
	deps, _, rc, _ := testDeps(rec)
	rc.result = reconnect.Result{Success: false, Restarted: true, Message: "still down"}
	rc.probeErr = errors.New("connection refused")
	r := NewRegistry(deps)

	res := r.Remediate(context.Background(), event("connect ECONNREFUSED 127.0.0.1:11434"), types.ConnectionRefused, Context{})

	events := rec.all()
	require.NotEmpty(t, events)
	assert.Equal(t, "reconnect:ollama", events[0], "reconnector must run before any retry sleep")
	assert.Equal(t, "ollama", res.Extra["service"])
	assert.False(t, res.Success)
	assert.Equal(t, ReconnectPolicy.MaxRetries, res.Retries)
	assert.Equal(t, 3, rec.count("probe:ollama"))
	assert.Equal(t, 1, rec.count("restart:ollama"))
	assert.Equal(t, true, res.Extra["restart_requested"])
}

func TestServiceReconnect_HealthyRunsOperationOnce(t *testing.T) {
	rec := &recorder{}
	deps, _, rc, _ := testDeps(rec)
	rc.result = reconnect.Result{Success: true, Message: "ollama reachable"}
	r := NewRegistry(deps)

	var calls int
	res := r.Remediate(context.Background(), event("dial tcp 127.0.0.1:11434: connect: connection refused"),
		types.ConnectionRefused, Context{Operation: func(ctx context.Context) (any, error) {
			calls++
			return nil, nil
		}})

	assert.True(t, res.Success)
	assert.Equal(t, 1, calls)
	assert.Zero(t, rec.count("probe:ollama"))
}

func TestServiceReconnect_UnidentifiedService(t *testing.T) {
	rec := &recorder{}
	deps, _, _, _ := testDeps(rec)
	r := NewRegistry(deps)

	res := r.Remediate(context.Background(), event("connection refused"), types.ConnectionRefused, Context{})
	assert.True(t, res.Attempted)
	assert.False(t, res.Success)
	assert.Empty(t, rec.all())
}

func TestPortReclaim_SamePortSerializes(t *testing.T) {
	rec := &recorder{}
	deps, _, _, proc := testDeps(rec)
	proc.hold = 10 * time.Millisecond
	proc.killed = 1
	r := NewRegistry(deps)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.Remediate(context.Background(), event("listen tcp :8080: bind: address already in use"), types.AddressInUse, Context{})
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, proc.maxInFlight)
	assert.Equal(t, 5, rec.count("terminate"))
}

// barrierProcess blocks each terminate until two are in flight
type barrierProcess struct {
	fakeProcess
	wg sync.WaitGroup
}

func (b *barrierProcess) TerminateProcessOnPort(ctx context.Context, port int) (int, error) {
	b.wg.Done()
	done := make(chan struct{})
	go func() { b.wg.Wait(); close(done) }()
	select {
	case <-done:
		return 0, nil
	case <-time.After(2 * time.Second):
		return 0, errors.New("ports did not run in parallel")
	}
}

func TestPortReclaim_DifferentPortsRunInParallel(t *testing.T) {
	rec := &recorder{}
	deps, _, _, _ := testDeps(rec)
	proc := &barrierProcess{fakeProcess: fakeProcess{rec: rec}}
	proc.wg.Add(2)
	deps.Process = proc
	r := NewRegistry(deps)

	var wg sync.WaitGroup
	for _, msg := range []string{"listen tcp :8080: bind: address already in use", "listen tcp :9090: bind: address already in use"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			res := r.Remediate(context.Background(), event(msg), types.AddressInUse, Context{})
			assert.True(t, res.Success, res.Message)
		}(msg)
	}
	wg.Wait()
}

func TestResourceCleanup(t *testing.T) {
	rec := &recorder{}
	deps, _, _, _ := testDeps(rec)
	r := NewRegistry(deps)

	dir := t.TempDir()
	res := r.Remediate(context.Background(), event("open "+dir+": permission denied"), types.PermissionDenied, Context{})
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, "0755", res.Extra["mode"])
	assert.Equal(t, 1, rec.count("chmod:"+dir))

	missing := filepath.Join(dir, "nested", "state.json")
	res = r.Remediate(context.Background(), event("ENOENT: no such file or directory, open '"+missing+"'"), types.FileNotFound, Context{})
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, 1, rec.count("mkdir:"+filepath.Dir(missing)))

	res = r.Remediate(context.Background(), event("permission denied"), types.PermissionDenied, Context{})
	assert.False(t, res.Success)
}

type brokenCache struct{}

func (brokenCache) Name() string                    { return "broken" }
func (brokenCache) Clear(ctx context.Context) error { return errors.New("redis down") }

func TestMemoryRelief_ClearsCachesIndependently(t *testing.T) {
	caches := cache.NewRegistry()
	mem := cache.NewMemory("models", 0)
	mem.Set("model:x", "y")
	require.NoError(t, caches.Register(mem))
	require.NoError(t, caches.Register(brokenCache{}))

	r := NewRegistry(Deps{Caches: caches})
	res := r.Remediate(context.Background(), event("fatal error: runtime: out of memory"), types.OutOfMemory, Context{})

	assert.True(t, res.Success)
	assert.Equal(t, []string{"models"}, res.Extra["caches_cleared"])
	assert.Equal(t, map[string]string{"broken": "redis down"}, res.Extra["caches_failed"])
	assert.Zero(t, mem.Len())
}

func TestGenericRetry(t *testing.T) {
	rec := &recorder{}
	deps, _, _, _ := testDeps(rec)
	r := NewRegistry(deps)

	res := r.Remediate(context.Background(), event("429 Too Many Requests"), types.RateLimited, Context{})
	assert.True(t, res.Success)
	assert.Equal(t, "retry", res.Strategy)
	assert.True(t, strings.HasPrefix(res.Message, "waited"))
	assert.Equal(t, ThrottlePolicy.MaxRetries, res.Extra["max_retries"])

	var calls int
	res = r.Remediate(context.Background(), event("unexpected end of JSON input"), types.ParseError,
		Context{Operation: func(ctx context.Context) (any, error) {
			calls++
			return nil, errors.New("still bad")
		}})
	assert.False(t, res.Success)
	assert.Equal(t, ParsePolicy.MaxRetries, calls)
}

func TestPolicies_Valid(t *testing.T) {
	for _, p := range []types.RemediationPolicy{LockPolicy, ReconnectPolicy, ParsePolicy, ThrottlePolicy, NetworkPolicy, TimeoutPolicy} {
		assert.NoError(t, p.Validate())
	}
	assert.Equal(t, 5, LockPolicy.MaxRetries)
	assert.Equal(t, TimeoutPolicy, PolicyFor(types.RequestTimeout))
	assert.Equal(t, NetworkPolicy, PolicyFor(types.DNSFailure))
}

func TestExtractPort(t *testing.T) {
	tests := []struct {
		text string
		port int
		ok   bool
	}{
		{"listen tcp :8080: bind: address already in use", 8080, true},
		{"listen EADDRINUSE: address already in use 0.0.0.0:3000", 3000, true},
		{"Port 5000 is already in use", 5000, true},
		{"address already in use", 0, false},
	}
	for _, tt := range tests {
		port, ok := ExtractPort(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.port, port, tt.text)
	}
}

func TestExtractPath(t *testing.T) {
	tests := []struct {
		text string
		path string
		ok   bool
	}{
		{"open /etc/shadow: permission denied", "/etc/shadow", true},
		{"EACCES: permission denied, open '/srv/app/data.db'", "/srv/app/data.db", true},
		{"mkdir /var/lib/medic/cache: no such file or directory", "/var/lib/medic/cache", true},
		{"permission denied", "", false},
	}
	for _, tt := range tests {
		path, ok := ExtractPath(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.path, path, tt.text)
	}
}
