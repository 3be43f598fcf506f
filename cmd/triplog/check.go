// ABOUTME: Consistency check command
// ABOUTME: Scans the trip store and status history for broken invariants

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/harper/triplog/internal/recorder"
	"github.com/harper/triplog/internal/ui"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the trip store for consistency",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		ctrl, _, err := newController(ctx, recorder.SystemClock{})
		if err != nil {
			return err
		}

		violations, err := ctrl.CheckConsistency(ctx)
		if err != nil {
			return fmt.Errorf("consistency check failed: %w", err)
		}
		if len(violations) == 0 {
			color.Green("✓ Trip store is consistent")
			return nil
		}

		out := cmd.OutOrStdout()
		for _, v := range violations {
			_, _ = fmt.Fprintln(out, ui.FormatViolation(v))
		}
		return fmt.Errorf("found %d violations", len(violations))
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
