// Package control is the local intake socket of the watch daemon. Other
// processes on the host send one JSON command per connection: a crash
// payload, an error report, or a status query.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/steveyegge/medic/internal/capture"
)

// Command types
const (
	CommandCrash  = "crash"
	CommandReport = "report"
	CommandStatus = "status"
)

// Command is one request on the socket
type Command struct {
	Type      string                `json:"type"`
	Crash     *capture.CrashPayload `json:"crash,omitempty"`   // For crash
	Message   string                `json:"message,omitempty"` // For report
	Stack     string                `json:"stack,omitempty"`   // For report
	Timestamp time.Time             `json:"timestamp"`
}

// Response answers a command
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Handler executes a decoded command and returns response data
type Handler func(ctx context.Context, cmd Command) (map[string]any, error)

// Server accepts commands on a Unix domain socket
type Server struct {
	socketPath string
	handler    Handler
	logger     *slog.Logger

	mu       sync.RWMutex
	listener net.Listener
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer creates a server. A stale socket file from a crashed previous
// instance is removed.
func NewServer(socketPath string, handler Handler, logger *slog.Logger) (*Server, error) {
	if handler == nil {
		return nil, errors.New("command handler is required")
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     logger.With("component", "control", "socket", socketPath),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins listening
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("control server already started")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create control socket: %w", err)
	}
	s.listener = listener
	s.running = true
	s.logger.Info("control socket listening")

	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Bounded accept so stop and cancellation are noticed
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Warn("failed to set accept deadline", "error", err)
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Bad clients must not pin a goroutine
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.logger.Warn("failed to set connection deadline", "error", err)
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.sendError(conn, fmt.Sprintf("failed to decode command: %v", err))
		return
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	var resp Response
	data, err := s.handler(ctx, cmd)
	if err != nil {
		resp = Response{
			Success: false,
			Message: fmt.Sprintf("command %q failed: %v", cmd.Type, err),
			Error:   err.Error(),
		}
	} else {
		resp = Response{
			Success: true,
			Message: fmt.Sprintf("command %q accepted", cmd.Type),
			Data:    data,
		}
	}
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn("failed to send response", "error", err)
	}
}

func (s *Server) sendError(conn net.Conn, message string) {
	_ = json.NewEncoder(conn).Encode(Response{Success: false, Message: message, Error: message})
}

// Stop closes the listener, waits for the accept loop and removes the
// socket file. It is safe after the Start context was cancelled and safe to
// call more than once.
func (s *Server) Stop() error {
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()
	if listener == nil {
		return nil
	}

	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if cerr := listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			s.logger.Warn("error closing listener", "error", cerr)
		}

		select {
		case <-s.doneCh:
		case <-time.After(5 * time.Second):
			s.logger.Warn("timeout waiting for control server shutdown")
		}

		if rerr := os.RemoveAll(s.socketPath); rerr != nil {
			err = fmt.Errorf("failed to remove socket file: %w", rerr)
			return
		}
		s.logger.Info("control socket stopped")
	})
	return err
}

// IsRunning returns whether the server is accepting connections
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.socketPath
}
