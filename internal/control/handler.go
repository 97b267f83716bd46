package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/medic/internal/capture"
)

// Intake is what the socket forwards into
type Intake struct {
	Hub     *capture.Hub
	Crashes *capture.CrashChannel
	Errors  *capture.ErrorChannel
}

// Handler dispatches socket commands into the capture channels
func (in Intake) Handler() Handler {
	return func(ctx context.Context, cmd Command) (map[string]any, error) {
		switch cmd.Type {
		case CommandCrash:
			if cmd.Crash == nil {
				return nil, errors.New("crash command needs a crash payload")
			}
			if cmd.Crash.Timestamp.IsZero() {
				cmd.Crash.Timestamp = cmd.Timestamp
			}
			in.Crashes.Push(*cmd.Crash)
			return nil, nil
		case CommandReport:
			if cmd.Message == "" {
				return nil, errors.New("report command needs a message")
			}
			in.Errors.ReportText(cmd.Message, cmd.Stack)
			return nil, nil
		case CommandStatus:
			return map[string]any{
				"channels": in.Hub.Channels(),
				"pending":  in.Hub.Pending(),
			}, nil
		default:
			return nil, fmt.Errorf("unknown command type %q", cmd.Type)
		}
	}
}
