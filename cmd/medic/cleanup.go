package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old analyses",
	Long: `Delete analyses older than the retention period.

The period defaults to retention.days from configuration (MEDIC_RETENTION_DAYS).

Examples:
  medic cleanup                    # Apply the configured retention
  medic cleanup --older-than 30    # Delete analyses older than 30 days
  medic cleanup --vacuum           # Reclaim disk space afterwards (SQLite)`,
	Run: func(cmd *cobra.Command, args []string) {
		olderThan, _ := cmd.Flags().GetInt("older-than")
		vacuum, _ := cmd.Flags().GetBool("vacuum")
		if !cmd.Flags().Changed("older-than") {
			olderThan = cfg.Retention.RetentionDays
		}
		if !cmd.Flags().Changed("vacuum") {
			vacuum = cfg.Retention.CleanupVacuum
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		e := mustEngine(ctx)
		defer e.Close()

		deleted, err := runCleanup(ctx, e, olderThan, vacuum)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted %d analysis record(s) older than %d days\n", green("✓"), deleted, olderThan)
	},
}

// runCleanup applies retention and optionally vacuums the SQLite file
func runCleanup(ctx context.Context, e *engine, olderThanDays int, vacuum bool) (int, error) {
	deleted, err := e.coordinator.Cleanup(ctx, olderThanDays)
	if err != nil {
		return deleted, err
	}
	if vacuum && deleted > 0 {
		if s, ok := e.sqliteStore(); ok {
			if err := s.VacuumDatabase(ctx); err != nil {
				return deleted, err
			}
		}
	}
	return deleted, nil
}

func init() {
	cleanupCmd.Flags().Int("older-than", 0, "Delete analyses older than this many days (default: retention.days)")
	cleanupCmd.Flags().Bool("vacuum", false, "Run VACUUM after cleanup (SQLite only)")
	rootCmd.AddCommand(cleanupCmd)
}
