package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/report"
	"github.com/steveyegge/medic/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analyses",
	Long: `List stored analyses, newest first.

Examples:
  medic history
  medic history --severity critical --limit 10
  medic history --classification DATABASE_LOCKED --status analyzed
  medic history --search "11434"`,
	Run: func(cmd *cobra.Command, args []string) {
		classification, _ := cmd.Flags().GetString("classification")
		severity, _ := cmd.Flags().GetString("severity")
		status, _ := cmd.Flags().GetString("status")
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := types.HistoryFilter{
			Classification: types.Classification(classification),
			Severity:       types.Severity(severity),
			Status:         types.Status(status),
			Search:         search,
			Limit:          limit,
			Offset:         offset,
		}
		if filter.Classification != "" && !filter.Classification.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: unknown classification %q (see 'medic rules')\n", classification)
			os.Exit(1)
		}
		if filter.Severity != "" && !filter.Severity.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: unknown severity %q\n", severity)
			os.Exit(1)
		}
		if filter.Status != "" && !filter.Status.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: unknown status %q\n", status)
			os.Exit(1)
		}

		ctx := context.Background()
		e := mustEngine(ctx)
		defer e.Close()

		records, err := e.coordinator.History(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list history: %v\n", err)
			os.Exit(1)
		}
		if asJSON {
			printJSON(records)
			return
		}
		if len(records) == 0 {
			fmt.Printf("%s\n", gray("No analyses found"))
			return
		}
		for _, rec := range records {
			sev := severityColor(rec.Severity)
			fmt.Printf("%s %s  %-10s %-24s %s\n",
				statusIcon(rec.Status),
				gray(shortID(rec.ID)),
				sev(string(rec.Severity)),
				rec.Classification,
				rec.Event.Summary())
		}
		fmt.Printf("\n%d analysis record(s)\n", len(records))
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one analysis",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		e := mustEngine(ctx)
		defer e.Close()

		rec := mustGet(ctx, e, args[0])
		if asJSON {
			printJSON(rec)
			return
		}
		printRecord(rec)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <id>",
	Short: "Render an analysis as Markdown",
	Long: `Render an analysis as a Markdown report.

Examples:
  medic report 3f2a9c1e-...            # Print to stdout
  medic report 3f2a9c1e-... -o bug.md  # Write to a file`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")

		ctx := context.Background()
		e := mustEngine(ctx)
		defer e.Close()

		md := report.Markdown(mustGet(ctx, e, args[0]))
		if output == "" {
			fmt.Print(md)
			return
		}
		if err := os.WriteFile(output, []byte(md), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", green("✓"), output)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one analysis",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		e := mustEngine(ctx)
		defer e.Close()

		if err := e.coordinator.Delete(ctx, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted %s\n", green("✓"), args[0])
	},
}

// mustGet fetches an analysis or exits with a readable message
func mustGet(ctx context.Context, e *engine, id string) *types.AnalysisRecord {
	rec, err := e.coordinator.Get(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error: no analysis with id %s\n", id)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load analysis: %v\n", err)
		os.Exit(1)
	}
	return rec
}

func init() {
	historyCmd.Flags().String("classification", "", "Filter by classification")
	historyCmd.Flags().String("severity", "", "Filter by severity (critical, high, medium, low)")
	historyCmd.Flags().String("status", "", "Filter by status")
	historyCmd.Flags().String("search", "", "Free-text search in message and stack")
	historyCmd.Flags().Int("limit", types.DefaultHistoryLimit, "Maximum records to list")
	historyCmd.Flags().Int("offset", 0, "Records to skip")
	historyCmd.Flags().Bool("json", false, "Print as JSON")
	showCmd.Flags().Bool("json", false, "Print as JSON")
	reportCmd.Flags().StringP("output", "o", "", "Write the report to a file")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(deleteCmd)
}
