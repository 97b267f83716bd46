package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/steveyegge/medic/internal/capture"
)

// DefaultSocketPath is where watch listens unless configured otherwise
const DefaultSocketPath = ".medic/medic.sock"

// Client sends commands to a running watch daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 10 * time.Second}
}

// SetTimeout sets the dial and round-trip timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends cmd and waits for the response
func (c *Client) SendCommand(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to medic watch (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// Crash submits a crash payload
func (c *Client) Crash(p capture.CrashPayload) (*Response, error) {
	return c.SendCommand(Command{Type: CommandCrash, Crash: &p, Timestamp: time.Now()})
}

// Report submits an error message with an optional stack trace
func (c *Client) Report(message, stack string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandReport, Message: message, Stack: stack, Timestamp: time.Now()})
}

// Status queries the hub
func (c *Client) Status() (*Response, error) {
	return c.SendCommand(Command{Type: CommandStatus, Timestamp: time.Now()})
}
