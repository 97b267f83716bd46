package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/medic/internal/types"
)

// transitionCmd builds a command that moves an analysis to status
func transitionCmd(use, short string, status types.Status) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			note, _ := cmd.Flags().GetString("note")

			ctx := context.Background()
			e := mustEngine(ctx)
			defer e.Close()

			rec, err := e.coordinator.Transition(ctx, args[0], status, note)
			switch {
			case errors.Is(err, types.ErrNotFound):
				fmt.Fprintf(os.Stderr, "Error: no analysis with id %s\n", args[0])
				os.Exit(1)
			case errors.Is(err, types.ErrInvalidTransition):
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			case err != nil:
				fmt.Fprintf(os.Stderr, "Error: failed to update analysis: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s %s is now %s\n", statusIcon(rec.Status), shortID(rec.ID), rec.Status)
		},
	}
	cmd.Flags().String("note", "", "Resolution note")
	return cmd
}

func init() {
	rootCmd.AddCommand(transitionCmd("resolve", "Mark an analysis fixed", types.StatusFixed))
	rootCmd.AddCommand(transitionCmd("ignore", "Mark an analysis ignored", types.StatusIgnored))
	rootCmd.AddCommand(transitionCmd("fixing", "Mark an analysis as being fixed", types.StatusFixing))
	rootCmd.AddCommand(transitionCmd("reopen", "Move an analysis back to analyzed", types.StatusAnalyzed))
}
