package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/capture"
	"github.com/steveyegge/medic/internal/diagnosis"
	"github.com/steveyegge/medic/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [message]",
	Short: "Analyze an error message",
	Long: `Classify an error, attempt remediation, request an AI diagnosis and store
the analysis.

The message comes from the arguments, or from stdin when none are given.

Examples:
  medic analyze "SQLITE_BUSY: database is locked"
  medic analyze "connect ECONNREFUSED 127.0.0.1:11434" --no-ai
  go test ./... 2>&1 | tail -20 | medic analyze --stack-file trace.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		stackFile, _ := cmd.Flags().GetString("stack-file")
		asJSON, _ := cmd.Flags().GetBool("json")
		asMarkdown, _ := cmd.Flags().GetBool("markdown")
		dryRun, _ := cmd.Flags().GetBool("no-remediate")

		message := strings.Join(args, " ")
		if message == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to read stdin: %v\n", err)
				os.Exit(1)
			}
			message = strings.TrimSpace(string(data))
		}
		if message == "" {
			fmt.Fprintf(os.Stderr, "Error: no error message given\n")
			os.Exit(1)
		}

		var stack string
		if stackFile != "" {
			data, err := os.ReadFile(stackFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to read stack file: %v\n", err)
				os.Exit(1)
			}
			stack = string(data)
		}

		if dryRun {
			cfg.Engine.RemediationEnabled = false
		}

		ctx := context.Background()
		e := mustEngine(ctx)
		defer e.Close()

		event := capture.NormalizeText(message, stack)

		var s *spinner.Spinner
		if !asJSON && !asMarkdown {
			s = spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			s.Suffix = " Analyzing..."
			s.Start()
		}
		rec := e.coordinator.AnalyzeEvent(ctx, event, diagnosis.Options{})
		if s != nil {
			s.Stop()
		}

		switch {
		case asJSON:
			printJSON(rec)
		case asMarkdown:
			fmt.Print(report.Markdown(rec))
		default:
			printRecord(rec)
		}
	},
}

func init() {
	analyzeCmd.Flags().String("stack-file", "", "File containing the stack trace")
	analyzeCmd.Flags().Bool("json", false, "Print the analysis as JSON")
	analyzeCmd.Flags().Bool("markdown", false, "Print the analysis as a Markdown report")
	analyzeCmd.Flags().Bool("no-remediate", false, "Classify and diagnose without remediation")
	rootCmd.AddCommand(analyzeCmd)
}
