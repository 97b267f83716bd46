package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/types"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize analyses by severity, classification and status",
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		e := mustEngine(ctx)
		defer e.Close()

		stats, err := e.coordinator.Stats(ctx, days)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to compute stats: %v\n", err)
			os.Exit(1)
		}
		if asJSON {
			printJSON(stats)
			return
		}

		window := fmt.Sprintf("last %d days", days)
		if days <= 0 {
			window = "all time"
		}
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Analyses (%s) ===", window)))
		fmt.Printf("Total: %d\n\n", stats.Total)

		fmt.Printf("%s\n", yellow("By severity:"))
		for _, sev := range types.AllSeverities() {
			fmt.Printf("  %-10s %d\n", severityColor(sev)(string(sev)), stats.BySeverity[sev])
		}

		fmt.Printf("\n%s\n", yellow("By classification:"))
		classes := make([]types.Classification, 0, len(stats.ByClassification))
		for c := range stats.ByClassification {
			classes = append(classes, c)
		}
		sort.Slice(classes, func(i, j int) bool {
			ci, cj := stats.ByClassification[classes[i]], stats.ByClassification[classes[j]]
			if ci != cj {
				return ci > cj
			}
			return classes[i] < classes[j]
		})
		for _, c := range classes {
			fmt.Printf("  %-26s %d\n", c, stats.ByClassification[c])
		}

		fmt.Printf("\n%s\n", yellow("By status:"))
		for _, st := range []types.Status{types.StatusAnalyzed, types.StatusFixing, types.StatusFixed, types.StatusIgnored} {
			fmt.Printf("  %s %-9s %d\n", statusIcon(st), st, stats.ByStatus[st])
		}

		fmt.Printf("\n%s\n", yellow("Remediation:"))
		fmt.Printf("  Attempted: %d\n", stats.Remediated)
		fmt.Printf("  Succeeded: %d (%.0f%%)\n\n", stats.RemediationSucceeded, stats.RemediationSuccessRate*100)
	},
}

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show daily analysis counts",
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		e := mustEngine(ctx)
		defer e.Close()

		points, err := e.coordinator.Trend(ctx, days)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to compute trend: %v\n", err)
			os.Exit(1)
		}
		if asJSON {
			printJSON(points)
			return
		}
		if len(points) == 0 {
			fmt.Printf("%s\n", gray("No analyses in range"))
			return
		}

		peak := 0
		for _, p := range points {
			if p.Total > peak {
				peak = p.Total
			}
		}
		for _, p := range points {
			width := p.Total * 40 / peak
			fmt.Printf("%s %4d %s", p.Day, p.Total, strings.Repeat("█", width))
			if p.Critical > 0 {
				fmt.Printf(" %s", red(fmt.Sprintf("%d critical", p.Critical)))
			}
			fmt.Println()
		}
	},
}

func init() {
	statsCmd.Flags().Int("days", 7, "Window in days (0 = all time)")
	statsCmd.Flags().Bool("json", false, "Print as JSON")
	trendCmd.Flags().Int("days", 30, "Window in days (0 = all time)")
	trendCmd.Flags().Bool("json", false, "Print as JSON")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(trendCmd)
}
