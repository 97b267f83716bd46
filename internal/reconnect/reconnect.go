// Package reconnect verifies and restores reachability of dependent services.
//
// A reconnect attempt has three outcomes, none of them an error:
// healthy without action, healthy after restart, unreachable after restart.
// Transport and health-check failures are reported in Result.Message.
package reconnect

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/steveyegge/medic/internal/keylock"
)

// Restarter is the slice of the process-control collaborator reconnect needs
type Restarter interface {
	RestartManagedService(ctx context.Context, name string) error
}

// Result is the outcome of a reconnect attempt
type Result struct {
	Service   string `json:"service"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Restarted bool   `json:"restarted"`
}

// Config holds reconnector configuration
type Config struct {
	Catalog        *Catalog
	Restarter      Restarter
	Locks          *keylock.Locker // Shared with remediation so restarts of one service serialize
	DialTimeout    time.Duration   // Default: 2s
	HealthTimeout  time.Duration   // Default: 3s
	SettleInterval time.Duration   // Wait after restart before re-probing. Default: 3s
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Reconnector probes services and restarts them through the restarter
type Reconnector struct {
	catalog        *Catalog
	restarter      Restarter
	locks          *keylock.Locker
	dialTimeout    time.Duration
	healthTimeout  time.Duration
	settleInterval time.Duration
	httpClient     *http.Client
	logger         *slog.Logger

	// dial and sleep are replaced in tests
	dial  func(ctx context.Context, network, address string) (net.Conn, error)
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a reconnector
func New(cfg Config) *Reconnector {
	r := &Reconnector{
		catalog:        cfg.Catalog,
		restarter:      cfg.Restarter,
		locks:          cfg.Locks,
		dialTimeout:    cfg.DialTimeout,
		healthTimeout:  cfg.HealthTimeout,
		settleInterval: cfg.SettleInterval,
		httpClient:     cfg.HTTPClient,
		logger:         cfg.Logger,
	}
	if r.catalog == nil {
		r.catalog = NewCatalog(DefaultServices()...)
	}
	if r.locks == nil {
		r.locks = keylock.New()
	}
	if r.dialTimeout <= 0 {
		r.dialTimeout = 2 * time.Second
	}
	if r.healthTimeout <= 0 {
		r.healthTimeout = 3 * time.Second
	}
	if r.settleInterval <= 0 {
		r.settleInterval = 3 * time.Second
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: r.healthTimeout}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "reconnect")

	dialer := &net.Dialer{}
	r.dial = dialer.DialContext
	r.sleep = func(ctx context.Context, d time.Duration) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}
	return r
}

// Catalog returns the service catalog
func (r *Reconnector) Catalog() *Catalog {
	return r.catalog
}

// Reconnect probes a catalog service by name and restarts it if needed
func (r *Reconnector) Reconnect(ctx context.Context, name string) Result {
	svc, ok := r.catalog.Get(name)
	if !ok {
		return Result{Service: name, Success: false, Message: fmt.Sprintf("unknown service %q", name)}
	}
	return r.ReconnectService(ctx, svc)
}

// ReconnectService probes svc and restarts it if the probe fails. Calls for
// the same service name are serialized.
func (r *Reconnector) ReconnectService(ctx context.Context, svc Service) Result {
	unlock := r.locks.Lock("service:" + svc.Name)
	defer unlock()

	res := Result{Service: svc.Name}

	probeErr := r.Probe(ctx, svc)
	if probeErr == nil {
		res.Success = true
		res.Message = fmt.Sprintf("%s reachable at %s", svc.Name, svc.Address())
		return res
	}

	r.logger.Warn("service unreachable, attempting restart", "service", svc.Name, "address", svc.Address(), "error", probeErr)

	var notes []string
	notes = append(notes, fmt.Sprintf("probe failed: %v", probeErr))

	switch {
	case svc.ManagedName == "":
		notes = append(notes, "no managed name, restart skipped")
	case r.restarter == nil:
		notes = append(notes, "no process controller configured, restart skipped")
	default:
		if err := r.restarter.RestartManagedService(ctx, svc.ManagedName); err != nil {
			notes = append(notes, fmt.Sprintf("restart failed: %v", err))
		} else {
			notes = append(notes, "restart issued")
			res.Restarted = true
		}
	}

	// Nothing changed, so there is nothing to wait for or re-check
	if !res.Restarted {
		res.Message = strings.Join(notes, "; ")
		return res
	}

	r.sleep(ctx, r.settleInterval)
	if err := r.dialOnce(ctx, svc); err != nil {
		notes = append(notes, fmt.Sprintf("still unreachable: %v", err))
	} else {
		notes = append(notes, "reachable after restart")
		res.Success = true
	}

	res.Message = strings.Join(notes, "; ")
	return res
}

// Probe checks transport reachability and, when configured, the HTTP health
// endpoint
func (r *Reconnector) Probe(ctx context.Context, svc Service) error {
	if err := r.dialOnce(ctx, svc); err != nil {
		return err
	}
	if svc.HealthPath == "" {
		return nil
	}
	return r.healthCheck(ctx, svc)
}

func (r *Reconnector) dialOnce(ctx context.Context, svc Service) error {
	dialCtx, cancel := context.WithTimeout(ctx, r.dialTimeout)
	defer cancel()

	conn, err := r.dial(dialCtx, "tcp", svc.Address())
	if err != nil {
		return fmt.Errorf("dial %s: %w", svc.Address(), err)
	}
	_ = conn.Close()
	return nil
}

func (r *Reconnector) healthCheck(ctx context.Context, svc Service) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.healthTimeout)
	defer cancel()

	url := "http://" + svc.Address() + svc.HealthPath
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
