package control

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/capture"
	"github.com/steveyegge/medic/internal/types"
)

// socketPath stays short; unix socket paths are limited to ~104 bytes
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "medic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "m.sock")
}

func startServer(t *testing.T, h Handler) (*Server, *Client) {
	t.Helper()
	path := socketPath(t)
	srv, err := NewServer(path, h, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	client := NewClient(path)
	client.SetTimeout(2 * time.Second)
	return srv, client
}

type sink struct {
	mu     sync.Mutex
	events []types.ErrorEvent
}

func (s *sink) HandleEvent(ctx context.Context, e types.ErrorEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *sink) snapshot() []types.ErrorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ErrorEvent(nil), s.events...)
}

func TestNewServer_RequiresHandler(t *testing.T) {
	_, err := NewServer(socketPath(t), nil, nil)
	assert.Error(t, err)
}

func TestServer_RoundTrip(t *testing.T) {
	cmds := make(chan Command, 1)
	srv, client := startServer(t, func(ctx context.Context, cmd Command) (map[string]any, error) {
		cmds <- cmd
		return map[string]any{"echo": cmd.Message}, nil
	})
	assert.True(t, srv.IsRunning())

	resp, err := client.Report("disk full", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "disk full", resp.Data["echo"])
	got := <-cmds
	assert.Equal(t, CommandReport, got.Type)
	assert.False(t, got.Timestamp.IsZero())
}

func TestServer_HandlerError(t *testing.T) {
	_, client := startServer(t, func(ctx context.Context, cmd Command) (map[string]any, error) {
		return nil, assert.AnError
	})
	resp, err := client.Status()
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, assert.AnError.Error(), resp.Error)
}

func TestServer_StopRemovesSocket(t *testing.T) {
	path := socketPath(t)
	srv, err := NewServer(path, func(context.Context, Command) (map[string]any, error) { return nil, nil }, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	assert.Error(t, srv.Start(context.Background()), "already running")

	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, srv.Stop())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, srv.Stop())

	_, err = NewClient(path).Status()
	assert.Error(t, err)
}

func TestServer_StopAfterContextCancelled(t *testing.T) {
	path := socketPath(t)
	srv, err := NewServer(path, func(context.Context, Command) (map[string]any, error) { return nil, nil }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !srv.IsRunning() }, 5*time.Second, 20*time.Millisecond)
	assert.Error(t, srv.Start(context.Background()), "a stopped server is not restarted")

	require.NoError(t, srv.Stop())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket file must be removed")
	assert.NoError(t, srv.Stop())
}

func TestNewServer_RemovesStaleSocket(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))
	srv, err := NewServer(path, func(context.Context, Command) (map[string]any, error) { return nil, nil }, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop())
}

func TestIntake(t *testing.T) {
	s := &sink{}
	hub, err := capture.NewHub(capture.HubConfig{Analyzer: s, QueueSize: 8, Workers: 1})
	require.NoError(t, err)
	crashes := capture.NewCrashChannel(nil)
	reports := capture.NewErrorChannel()
	require.NoError(t, hub.Register(crashes))
	require.NoError(t, hub.Register(reports))
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(func() { _ = hub.Stop(context.Background()) })

	_, client := startServer(t, Intake{Hub: hub, Crashes: crashes, Errors: reports}.Handler())

	code := 139
	resp, err := client.Crash(capture.CrashPayload{Signal: "SIGSEGV", ExitCode: &code})
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Error)

	resp, err = client.Report("connect ECONNREFUSED 127.0.0.1:6379", "at cache.go:10")
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Error)

	require.Eventually(t, func() bool { return len(s.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	kinds := map[types.EventKind]types.ErrorEvent{}
	for _, e := range s.snapshot() {
		kinds[e.Kind] = e
	}
	assert.Contains(t, kinds[types.KindCrash].Message, "SIGSEGV")
	assert.False(t, kinds[types.KindCrash].OccurredAt.IsZero())
	assert.Equal(t, "at cache.go:10", kinds[types.KindError].StackTrace)

	resp, err = client.Status()
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.ElementsMatch(t, []any{"crash", "error"}, resp.Data["channels"])
	assert.EqualValues(t, 0, resp.Data["pending"])
}

func TestIntake_Rejects(t *testing.T) {
	hub, err := capture.NewHub(capture.HubConfig{Analyzer: &sink{}})
	require.NoError(t, err)
	h := Intake{Hub: hub, Crashes: capture.NewCrashChannel(nil), Errors: capture.NewErrorChannel()}.Handler()
	ctx := context.Background()

	_, err = h(ctx, Command{Type: CommandCrash})
	assert.Error(t, err)
	_, err = h(ctx, Command{Type: CommandReport})
	assert.Error(t, err)
	_, err = h(ctx, Command{Type: "reboot"})
	assert.Error(t, err)
}
