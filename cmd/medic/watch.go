package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/capture"
	"github.com/steveyegge/medic/internal/control"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Analyze crash payloads streamed on stdin",
	Long: `Run the capture hub. Crash payloads are read from stdin as JSON lines:

  {"signal":"SIGSEGV","reason":"nil map write","exit_code":139,"dump":"...","timestamp":"2025-01-02T15:04:05Z"}

Other processes can also submit crashes and error reports through the intake
socket (capture.socket, see 'medic send'). Each payload is analyzed in the
background. While the intake socket is up, the end of stdin does not stop
watch; it runs until interrupted. Prometheus metrics are served on
metrics.addr while the hub runs, and retention cleanup runs on
retention.cleanup_interval_hours when enabled.

Examples:
  crash-collector --json | medic watch
  medic watch --metrics-addr :9100 < crashes.jsonl`,
	Run: func(cmd *cobra.Command, args []string) {
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			cfg.Metrics.Addr = addr
		}
		if cmd.Flags().Changed("socket") {
			cfg.Capture.Socket, _ = cmd.Flags().GetString("socket")
		}

		e := mustEngine(context.Background())
		defer e.Close()

		hub, err := capture.NewHub(capture.HubConfig{
			Analyzer:  e.coordinator,
			QueueSize: cfg.Capture.QueueSize,
			Workers:   cfg.Capture.Workers,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		crashes := capture.NewCrashChannel(slog.Default())
		reports := capture.NewErrorChannel()
		for _, ch := range []capture.FailureChannel{crashes, reports} {
			if err := hub.Register(ch); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		// Workers outlive the signal context so Stop can drain the queue
		if err := hub.Start(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var intake *control.Server
		var lockPath string
		if cfg.Capture.Socket != "" {
			lockPath, err = control.AcquireLock(cfg.Capture.Socket)
			if err == nil {
				in := control.Intake{Hub: hub, Crashes: crashes, Errors: reports}
				intake, err = control.NewServer(cfg.Capture.Socket, in.Handler(), slog.Default())
			}
			if err == nil {
				err = intake.Start(ctx)
			}
			if err != nil {
				slog.Warn("intake socket disabled", "error", err)
				intake = nil
				if lockPath != "" {
					_ = control.ReleaseLock(lockPath)
					lockPath = ""
				}
			}
		}

		var srv *http.Server
		if cfg.Metrics.Enabled {
			srv = serveMetrics(cfg.Metrics.Addr)
		}
		if cfg.Retention.CleanupEnabled {
			go cleanupLoop(ctx, e, cfg.Retention.CleanupInterval())
		}

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			n, err := crashes.ReadFrom(ctx, os.Stdin)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("crash payload stream failed", "error", err)
			}
			slog.Info("crash payload stream ended", "payloads", n)
		}()

		switch waitForShutdown(ctx, readDone, intake != nil) {
		case shutdownSignal:
			slog.Info("received signal, shutting down")
		case shutdownStdin:
			slog.Info("stdin closed and no intake socket, shutting down")
		}

		if intake != nil {
			if err := intake.Stop(); err != nil {
				slog.Warn("intake socket shutdown failed", "error", err)
			}
		}
		if err := control.ReleaseLock(lockPath); err != nil {
			slog.Warn("failed to release watch lock", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := hub.Stop(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
		if srv != nil {
			_ = srv.Shutdown(shutdownCtx)
		}
	},
}

type shutdownReason int

const (
	shutdownSignal shutdownReason = iota
	shutdownStdin
)

// waitForShutdown blocks until the daemon should stop. The end of the stdin
// stream stops it only when nothing else feeds the hub.
func waitForShutdown(ctx context.Context, stdinDone <-chan struct{}, intakeActive bool) shutdownReason {
	select {
	case <-ctx.Done():
		return shutdownSignal
	case <-stdinDone:
	}
	if !intakeActive {
		return shutdownStdin
	}
	slog.Info("stdin closed, intake socket still serving")
	<-ctx.Done()
	return shutdownSignal
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func cleanupLoop(ctx context.Context, e *engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := runCleanup(ctx, e, cfg.Retention.RetentionDays, cfg.Retention.CleanupVacuum)
			if err != nil {
				slog.Error("retention cleanup failed", "error", err)
				continue
			}
			slog.Info("retention cleanup complete", "deleted", deleted)
		}
	}
}

func init() {
	watchCmd.Flags().String("metrics-addr", "", "Metrics listen address (default: metrics.addr)")
	watchCmd.Flags().String("socket", "", "Intake socket path, empty to disable (default: capture.socket)")
	rootCmd.AddCommand(watchCmd)
}
