package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// LockFileName is created next to the intake socket while watch runs
const LockFileName = "watch.lock"

// ErrLockHeld is returned when a live watch process already owns the socket
var ErrLockHeld = errors.New("another medic watch is already running")

// InstanceLock records which watch process owns the intake socket
type InstanceLock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Socket    string    `json:"socket"`
	StartedAt time.Time `json:"started_at"`
}

// LockPath returns the lock file guarding socketPath
func LockPath(socketPath string) string {
	return filepath.Join(filepath.Dir(socketPath), LockFileName)
}

// AcquireLock claims the intake socket for this process. A lock left by a
// process that no longer exists is replaced. NewServer removes whatever
// socket file it finds, so watch must hold this lock before creating one.
func AcquireLock(socketPath string) (string, error) {
	lockPath := LockPath(socketPath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create lock directory: %w", err)
	}

	if data, err := os.ReadFile(lockPath); err == nil {
		var existing InstanceLock
		if json.Unmarshal(data, &existing) == nil && existing.PID != os.Getpid() &&
			isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w (pid %d on %s, started %s)", ErrLockHeld,
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
	}

	hostname, _ := os.Hostname()
	data, err := json.MarshalIndent(InstanceLock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		Socket:    socketPath,
		StartedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseLock removes the lock file. An empty path is a no-op.
func ReleaseLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// isProcessAlive reports whether pid runs on hostname. Processes on other
// hosts, or ones we may not signal, count as alive.
func isProcessAlive(pid int, hostname string) bool {
	if pid <= 0 {
		return false
	}
	current, err := os.Hostname()
	if err != nil || !strings.EqualFold(hostname, current) {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
