// ABOUTME: Session commands: start, pause, resume, stop, and status
// ABOUTME: Drives the session controller restored from the status history

package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/harper/triplog/internal/recorder"
	"github.com/harper/triplog/internal/ui"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		ctrl, _, err := newController(ctx, recorder.SystemClock{})
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		if name != "" {
			err = ctrl.StartWithName(ctx, name)
		} else {
			err = ctrl.Start(ctx)
		}
		if err != nil {
			return err
		}

		rec, err := ctrl.CurrentRecording(ctx)
		if err != nil {
			return err
		}
		color.Green("✓ Started %s", rec.Name)
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), ui.FormatStatus(ctrl.Status()))
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the current recording",
	Args:  cobra.NoArgs,
	RunE:  runSessionCommand(recorder.CommandPause),
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused recording in a new segment",
	Args:  cobra.NoArgs,
	RunE:  runSessionCommand(recorder.CommandResume),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Finish the current recording",
	Args:  cobra.NoArgs,
	RunE:  runSessionCommand(recorder.CommandStop),
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show the recording status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		ctrl, _, err := newController(ctx, recorder.SystemClock{})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, ui.FormatStatus(ctrl.Status()))

		rec, err := ctrl.CurrentRecording(ctx)
		if err != nil {
			return err
		}
		if rec != nil {
			_, _ = fmt.Fprintln(out, ui.FormatRecordingDetail(rec, ctrl.Now()))
		}
		return nil
	},
}

func init() {
	startCmd.Flags().StringP("name", "n", "", "recording name (defaults to the start time)")

	rootCmd.AddCommand(startCmd, pauseCmd, resumeCmd, stopCmd, statusCmd)
}

func runSessionCommand(c recorder.Command) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		ctrl, _, err := newController(ctx, recorder.SystemClock{})
		if err != nil {
			return err
		}
		if err := ctrl.Command(ctx, c); err != nil {
			return err
		}
		color.Green("✓ %s", c)
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), ui.FormatStatus(ctrl.Status()))
		return nil
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
