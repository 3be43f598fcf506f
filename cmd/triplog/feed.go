// ABOUTME: Feed command replaying a location script through a live controller
// ABOUTME: Writes the replayed session into the configured trip store

package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/harper/triplog/internal/replay"
	"github.com/spf13/cobra"
)

var feedCmd = &cobra.Command{
	Use:   "feed <script.yaml>",
	Short: "Replay a scripted drive into the trip store",
	Long: `Replay a YAML script of commands and provider events through the recorder.

Each step runs at its scripted time on a script clock, so a replay is
deterministic. Scripts must start after the last recorded status change;
use --now to rebase the script onto the current time.

Example script:
  start: 2024-06-01T08:00:00Z
  steps:
    - {at: 0s, command: start, name: lakefront}
    - at: 5s
      fixes:
        - {at: 5s, lat: 41.8781, lng: -87.6298, accuracy: 5}
    - {at: 60s, command: stop}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		script, err := replay.LoadScript(args[0])
		if err != nil {
			return err
		}

		rebase, _ := cmd.Flags().GetBool("now")
		if rebase {
			script.Start = time.Now().UTC()
		}
		if last, ok := history.Last(); ok && !script.Start.After(last.Timestamp) {
			return fmt.Errorf("script starts at %s, not after the last status change at %s; use --now",
				script.Start.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
		}

		clock := replay.NewClock(script.Start)
		ctrl, provider, err := newController(ctx, clock)
		if err != nil {
			return err
		}
		defer provider.Close()

		summary, err := replay.NewPlayer(ctrl, provider, clock, logger).Play(ctx, script)
		if err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}

		color.Green("✓ Replayed %s", args[0])
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "  Steps:     %d (%d commands)\n", summary.Steps, summary.Commands)
		_, _ = fmt.Fprintf(out, "  Accepted:  %d\n", summary.Accepted)
		_, _ = fmt.Fprintf(out, "  Discarded: %d\n", summary.Discarded)
		_, _ = fmt.Fprintf(out, "  Failed:    %d\n", summary.Failed)
		for _, msg := range summary.CommandErrors {
			color.Yellow("⚠ %s", msg)
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().Bool("now", false, "rebase the script start onto the current time")

	rootCmd.AddCommand(feedCmd)
}
