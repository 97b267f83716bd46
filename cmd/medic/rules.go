package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/classify"
	"github.com/steveyegge/medic/internal/remediation"
	"github.com/steveyegge/medic/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List classifications with severity and remediation strategy",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		// Strategy names do not depend on collaborators
		registry := remediation.NewRegistry(remediation.Deps{})

		type row struct {
			Classification types.Classification `json:"classification"`
			Family         types.Family         `json:"family"`
			Severity       types.Severity       `json:"severity"`
			Strategy       string               `json:"strategy,omitempty"`
		}
		var rows []row
		for _, c := range types.AllClassifications() {
			strategy, _ := registry.Lookup(c)
			rows = append(rows, row{
				Classification: c,
				Family:         c.Family(),
				Severity:       classify.Assess(c),
				Strategy:       strategy,
			})
		}

		if asJSON {
			printJSON(rows)
			return
		}
		fmt.Printf("%-26s %-11s %-9s %s\n", "CLASSIFICATION", "FAMILY", "SEVERITY", "STRATEGY")
		for _, r := range rows {
			strategy := r.Strategy
			if strategy == "" {
				strategy = gray("-")
			}
			fmt.Printf("%-26s %-11s %-9s %s\n", r.Classification, r.Family,
				severityColor(r.Severity)(fmt.Sprintf("%-9s", r.Severity)), strategy)
		}
	},
}

func init() {
	rulesCmd.Flags().Bool("json", false, "Print as JSON")
	rootCmd.AddCommand(rulesCmd)
}
