package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/config"
)

var (
	cfgFile string
	dbPath  string
	debug   bool
	noAI    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "medic",
	Short: "Classify, remediate and diagnose runtime failures",
	Long: `medic classifies runtime failures, attempts automatic remediation
(lock recovery, service reconnects, port reclamation, memory relief), asks an
AI model for a root-cause diagnosis and keeps a searchable history of every
analysis.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Storage.Path = dbPath
		}
		if noAI {
			loaded.AI.Enabled = false
		}
		if debug {
			loaded.Log.Level = "debug"
		}
		cfg = loaded
		slog.SetDefault(newLogger(cfg.Log))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .medic/medic.yaml or ./medic.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: discover .medic/medic.db)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noAI, "no-ai", false, "Disable AI diagnosis")
}

func newLogger(lc config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
