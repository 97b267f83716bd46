package remediation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/steveyegge/medic/internal/reconnect"
	"github.com/steveyegge/medic/internal/types"
)

// serviceReconnect identifies the dependent service, runs the reconnector,
// and falls back to polling with ReconnectPolicy and finally a direct
// restart request.
func (s *strategies) serviceReconnect(ctx context.Context, req Request) types.RemediationResult {
	res := types.RemediationResult{Attempted: true, Extra: map[string]any{}}

	if s.deps.Reconnector == nil {
		res.Message = "no service reconnector configured"
		return res
	}

	svc, ok := s.deps.Reconnector.Catalog().Identify(req.Event.Message)
	if !ok {
		res.Message = "could not identify the target service from the error"
		return res
	}
	res.Extra["service"] = svc.Name
	res.Extra["address"] = svc.Address()

	rc := s.deps.Reconnector.ReconnectService(ctx, svc)
	res.Extra["reconnect"] = rc

	if rc.Success {
		if req.Operation == nil {
			res.Success = true
			res.Message = rc.Message
			return res
		}
		out := s.deps.Scheduler.RunWithBackoff(ctx, req.Operation, singleShot)
		res.Retries = out.Attempts
		res.Success = out.Success
		if out.Success {
			res.Message = fmt.Sprintf("%s; operation succeeded", rc.Message)
		} else {
			res.Message = fmt.Sprintf("%s; operation still failing: %v", rc.Message, out.Err)
		}
		return res
	}

	op := req.Operation
	if op == nil {
		op = func(ctx context.Context) (any, error) {
			return nil, s.deps.Reconnector.Probe(ctx, svc)
		}
	}
	out := s.deps.Scheduler.RunWithBackoff(ctx, op, ReconnectPolicy)
	res.Retries = out.Attempts
	if out.Success {
		res.Success = true
		res.Message = fmt.Sprintf("%s reachable after %d retry attempt(s)", svc.Name, out.Attempts)
		return res
	}

	res.Message = fmt.Sprintf("%s unreachable after reconnect and %d retries: %v", svc.Name, out.Attempts, out.Err)
	if svc.ManagedName == "" || s.deps.Process == nil {
		return res
	}

	unlock := s.deps.Locks.Lock("service:" + svc.Name)
	err := s.deps.Process.RestartManagedService(ctx, svc.ManagedName)
	unlock()

	res.Extra["restart_requested"] = true
	if err != nil {
		res.Message += fmt.Sprintf("; restart request failed: %v", err)
	} else {
		res.Message += "; restart requested"
	}
	return res
}

var portRe = regexp.MustCompile(`(?i)(?:\bport\s+|:)(\d{2,5})\b`)

// ExtractPort finds the port number in an address-in-use error
func ExtractPort(text string) (int, bool) {
	for _, m := range portRe.FindAllStringSubmatch(text, -1) {
		p, err := strconv.Atoi(m[1])
		if err == nil && p > 0 && p <= 65535 {
			return p, true
		}
	}
	return 0, false
}

// portReclaim terminates whatever is listening on the port from the error
func (s *strategies) portReclaim(ctx context.Context, req Request) types.RemediationResult {
	res := types.RemediationResult{Attempted: true, Extra: map[string]any{}}

	// The stack is never searched: frame positions look like ports
	port, ok := ExtractPort(req.Event.Message)
	if !ok {
		res.Message = "could not extract a port from the error"
		return res
	}
	res.Extra["port"] = port

	if s.deps.Process == nil {
		res.Message = "no process controller configured"
		return res
	}

	unlock := s.deps.Locks.Lock("port:" + strconv.Itoa(port))
	defer unlock()

	killed, err := s.deps.Process.TerminateProcessOnPort(ctx, port)
	res.Extra["terminated"] = killed
	if err != nil {
		res.Message = fmt.Sprintf("failed to free port %d: %v", port, err)
		return res
	}
	if killed == 0 {
		res.Success = true
		res.Message = fmt.Sprintf("port %d already free", port)
		return res
	}

	_ = s.deps.Sleep(ctx, s.deps.PortReleaseWait)
	res.Success = true
	res.Message = fmt.Sprintf("terminated %d process(es) on port %d", killed, port)
	return res
}

// genericRetry retries the caller's operation with the classification's
// policy, or waits once when there is nothing to retry
func (s *strategies) genericRetry(ctx context.Context, req Request) types.RemediationResult {
	policy := PolicyFor(req.Classification)
	out := s.deps.Scheduler.RunWithBackoff(ctx, req.Operation, policy)

	res := types.RemediationResult{
		Attempted: true,
		Success:   out.Success,
		Retries:   out.Attempts,
		Extra: map[string]any{
			"max_retries": policy.MaxRetries,
			"base_delay":  policy.BaseDelay.String(),
			"total_delay": out.TotalDelay.String(),
		},
	}
	switch {
	case req.Operation == nil && out.Success:
		res.Message = fmt.Sprintf("waited %v for transient recovery", out.TotalDelay)
	case out.Success:
		res.Message = fmt.Sprintf("operation succeeded after %d attempt(s)", out.Attempts)
	default:
		res.Message = fmt.Sprintf("operation failed after %d attempt(s): %v", out.Attempts, out.Err)
	}
	return res
}

// compile-time check that the reconnector satisfies the strategy contract
var _ ServiceReconnector = (*reconnect.Reconnector)(nil)
