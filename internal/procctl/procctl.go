// Package procctl is the process-control collaborator used by remediation:
// restarting managed services, freeing ports, and repairing filesystem
// permissions. Every method is best-effort and reports failure through its
// error; nothing here panics into the engine.
package procctl

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Controller is the abstract process-control contract
type Controller interface {
	// RestartManagedService starts (or restarts) a named managed
	// container/process
	RestartManagedService(ctx context.Context, name string) error
	// TerminateProcessOnPort kills every process listening on port and
	// returns how many were terminated. Zero means the port was already free.
	TerminateProcessOnPort(ctx context.Context, port int) (int, error)
	Chmod(path string, mode os.FileMode) error
	MkdirAll(path string) error
}

// Config holds local controller configuration
type Config struct {
	// RestartCommand is the command used to start a managed service; the
	// service name is appended. Default: ["docker", "start"].
	RestartCommand []string
	// ServiceCommands overrides RestartCommand per service name. The
	// command is run as-is.
	ServiceCommands map[string][]string
	Logger          *slog.Logger
}

// Local implements Controller against the local OS
type Local struct {
	restartCmd  []string
	serviceCmds map[string][]string
	logger      *slog.Logger

	// lookup enumerates PIDs listening on a port; replaced in tests
	lookup func(ctx context.Context, port int) ([]int, error)
	// kill terminates a PID; replaced in tests
	kill func(pid int) error
}

// Compile-time check that Local implements Controller
var _ Controller = (*Local)(nil)

// NewLocal creates a local process controller
func NewLocal(cfg Config) *Local {
	restart := cfg.RestartCommand
	if len(restart) == 0 {
		restart = []string{"docker", "start"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{
		restartCmd:  restart,
		serviceCmds: cfg.ServiceCommands,
		logger:      logger.With("component", "procctl"),
		kill:        killPID,
	}
	l.lookup = l.listeningPIDs
	return l
}

// RestartManagedService runs the configured start command for name
func (l *Local) RestartManagedService(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("service name is required")
	}

	args := l.serviceCmds[name]
	if len(args) == 0 {
		args = append(append([]string{}, l.restartCmd...), name)
	}

	path, err := exec.LookPath(args[0])
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", args[0], err)
	}

	cmd := exec.CommandContext(ctx, path, args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("restart %s failed: %w (output: %s)", name, err, strings.TrimSpace(string(output)))
	}

	l.logger.Info("restarted managed service", "service", name, "command", strings.Join(args, " "))
	return nil
}

// TerminateProcessOnPort kills the listeners on port, skipping this process
func (l *Local) TerminateProcessOnPort(ctx context.Context, port int) (int, error) {
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port: %d", port)
	}

	pids, err := l.lookup(ctx, port)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate listeners on port %d: %w", port, err)
	}

	self := os.Getpid()
	killed := 0
	var lastErr error
	for _, pid := range pids {
		if pid == self {
			l.logger.Warn("refusing to terminate own process", "port", port, "pid", pid)
			continue
		}
		if err := l.kill(pid); err != nil {
			lastErr = err
			l.logger.Warn("failed to terminate process", "port", port, "pid", pid, "error", err)
			continue
		}
		killed++
	}

	if killed == 0 && lastErr != nil {
		return 0, lastErr
	}
	return killed, nil
}

// Chmod changes the access mode of path
func (l *Local) Chmod(path string, mode os.FileMode) error {
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates path and any missing parents
func (l *Local) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func killPID(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := process.Kill(); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}

// listeningPIDs enumerates listeners using lsof on Unix and netstat on Windows
func (l *Local) listeningPIDs(ctx context.Context, port int) ([]int, error) {
	if runtime.GOOS == "windows" {
		out, err := exec.CommandContext(ctx, "netstat", "-ano", "-p", "tcp").Output()
		if err != nil {
			return nil, fmt.Errorf("netstat failed: %w", err)
		}
		return parseNetstat(string(out), port), nil
	}

	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return nil, fmt.Errorf("lsof not found in PATH: %w", err)
	}
	out, err := exec.CommandContext(ctx, lsof, "-nP", "-t",
		fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN").Output()
	if err != nil {
		// lsof exits 1 when nothing matches
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof failed: %w", err)
	}
	return parseLsof(string(out)), nil
}

// parseLsof parses `lsof -t` output: one PID per line
func parseLsof(output string) []int {
	seen := make(map[int]bool)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && pid > 0 {
			seen[pid] = true
		}
	}
	return sortedKeys(seen)
}

// parseNetstat parses `netstat -ano` rows such as
// "  TCP    0.0.0.0:8080    0.0.0.0:0    LISTENING    4242"
func parseNetstat(output string, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	seen := make(map[int]bool)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		if pid, err := strconv.Atoi(fields[4]); err == nil && pid > 0 {
			seen[pid] = true
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
