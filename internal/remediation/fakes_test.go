package remediation

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/medic/internal/reconnect"
	"github.com/steveyegge/medic/internal/retry"
)

// recorder is a shared, ordered call log
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.events...)
}

func (r *recorder) count(e string) int {
	n := 0
	for _, got := range r.all() {
		if got == e {
			n++
		}
	}
	return n
}

type fakeTuner struct {
	rec     *recorder
	pingErr error
}

func (f *fakeTuner) EnableWAL(ctx context.Context) error { f.rec.add("wal"); return nil }
func (f *fakeTuner) SetBusyTimeout(ctx context.Context, d time.Duration) error {
	f.rec.add("busy_timeout")
	return nil
}
func (f *fakeTuner) SetSynchronous(ctx context.Context, mode string) error {
	f.rec.add("synchronous:" + mode)
	return nil
}
func (f *fakeTuner) Checkpoint(ctx context.Context) error { panic("checkpoint exploded") }
func (f *fakeTuner) Ping(ctx context.Context) error      { f.rec.add("ping"); return f.pingErr }

type fakeReconnector struct {
	rec      *recorder
	catalog  *reconnect.Catalog
	result   reconnect.Result
	probeErr error
}

func (f *fakeReconnector) Catalog() *reconnect.Catalog { return f.catalog }

func (f *fakeReconnector) ReconnectService(ctx context.Context, svc reconnect.Service) reconnect.Result {
	f.rec.add("reconnect:" + svc.Name)
	res := f.result
	res.Service = svc.Name
	return res
}

func (f *fakeReconnector) Probe(ctx context.Context, svc reconnect.Service) error {
	f.rec.add("probe:" + svc.Name)
	return f.probeErr
}

type fakeProcess struct {
	rec *recorder

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	hold        time.Duration
	killed      int
}

func (f *fakeProcess) RestartManagedService(ctx context.Context, name string) error {
	f.rec.add("restart:" + name)
	return nil
}

func (f *fakeProcess) TerminateProcessOnPort(ctx context.Context, port int) (int, error) {
	f.rec.add("terminate")
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.hold)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return f.killed, nil
}

func (f *fakeProcess) Chmod(path string, mode os.FileMode) error {
	f.rec.add("chmod:" + path)
	return nil
}

func (f *fakeProcess) MkdirAll(path string) error {
	f.rec.add("mkdir:" + path)
	return nil
}

// testDeps wires every collaborator to fakes sharing one recorder. Sleeps
// are recorded instead of waited.
func testDeps(rec *recorder) (Deps, *fakeTuner, *fakeReconnector, *fakeProcess) {
	tuner := &fakeTuner{rec: rec}
	rc := &fakeReconnector{rec: rec, catalog: reconnect.NewCatalog(reconnect.DefaultServices()...)}
	proc := &fakeProcess{rec: rec}
	sleep := func(ctx context.Context, d time.Duration) error {
		rec.add("sleep")
		return ctx.Err()
	}
	deps := Deps{
		Storage:     map[string]StorageTuner{DefaultStorageHandle: tuner},
		Reconnector: rc,
		Process:     proc,
		Scheduler:   &retry.Scheduler{Sleep: sleep},
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
	return deps, tuner, rc, proc
}
