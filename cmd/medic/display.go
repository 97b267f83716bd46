package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/medic/internal/types"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// severityColor returns a printer for the severity
func severityColor(s types.Severity) func(a ...interface{}) string {
	switch s {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.SeverityHigh:
		return red
	case types.SeverityMedium:
		return yellow
	default:
		return gray
	}
}

func statusIcon(s types.Status) string {
	switch s {
	case types.StatusFixed:
		return green("✓")
	case types.StatusIgnored:
		return gray("○")
	case types.StatusFixing:
		return yellow("◐")
	default:
		return red("●")
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

// printRecord writes a compact terminal view of an analysis
func printRecord(rec *types.AnalysisRecord) {
	sev := severityColor(rec.Severity)
	fmt.Printf("\n%s %s\n", statusIcon(rec.Status), cyan(rec.Event.Summary()))
	fmt.Printf("  ID:             %s\n", rec.ID)
	fmt.Printf("  Classification: %s\n", rec.Classification)
	fmt.Printf("  Severity:       %s\n", sev(string(rec.Severity)))
	fmt.Printf("  Status:         %s\n", rec.Status)
	fmt.Printf("  Analyzed:       %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if len(rec.Keywords) > 0 {
		fmt.Printf("  Keywords:       %s\n", strings.Join(rec.Keywords, ", "))
	}

	fmt.Printf("\n%s\n", yellow("Remediation:"))
	rem := rec.Remediation
	switch {
	case !rem.Attempted:
		fmt.Printf("  %s %s\n", gray("–"), gray(rem.Message))
	case rem.Success:
		fmt.Printf("  %s %s: %s\n", green("✓"), rem.Strategy, rem.Message)
	default:
		fmt.Printf("  %s %s: %s\n", red("✗"), rem.Strategy, rem.Message)
	}

	fmt.Printf("\n%s\n", yellow("AI Diagnosis:"))
	switch ai := rec.AIDiagnosis; {
	case ai == nil:
		fmt.Printf("  %s\n", gray("disabled"))
	case !ai.Available:
		fmt.Printf("  %s unavailable: %s\n", red("✗"), ai.Error)
	default:
		if ai.RootCause != "" {
			fmt.Printf("  Root cause: %s\n", ai.RootCause)
		}
		for i, fix := range ai.Fixes {
			fmt.Printf("  %d. %s\n", i+1, fix)
		}
	}

	if len(rec.RelatedIssues) > 0 {
		fmt.Printf("\n%s\n", yellow("Related:"))
		for _, r := range rec.RelatedIssues {
			fmt.Printf("  %s %s %s (%s ago)\n", statusIcon(r.Status), gray(shortID(r.ID)),
				r.Message, time.Since(r.CreatedAt).Round(time.Minute))
		}
	}

	if len(rec.Recommendations) > 0 {
		fmt.Printf("\n%s\n", yellow("Recommendations:"))
		for _, r := range rec.Recommendations {
			fmt.Printf("  [%s] %s", strings.ToUpper(string(r.Priority)), r.Title)
			if r.Description != "" {
				fmt.Printf(": %s", r.Description)
			}
			fmt.Println()
			if r.Action != "" {
				fmt.Printf("         %s %s\n", gray("→"), r.Action)
			}
		}
	}
	fmt.Println()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
