// ABOUTME: Trip commands: list, show, and remove
// ABOUTME: Reads recordings through the controller and deletes finished ones from the store

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/recorder"
	"github.com/harper/triplog/internal/storage"
	"github.com/harper/triplog/internal/ui"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		ctrl, _, err := newController(ctx, recorder.SystemClock{})
		if err != nil {
			return err
		}

		recs, err := ctrl.Recordings(ctx)
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			_, _ = fmt.Fprintln(out, "No recordings yet. Use 'triplog start' to begin one.")
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		now := ctrl.Now()
		for _, rec := range recs {
			_, _ = fmt.Fprintln(out, ui.FormatRecording(rec, now))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recording and its points",
	Long: `Show a recording's stats, pauses, and optionally its points.

The id may be a full recording ID or a unique prefix as printed by 'triplog list'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		ctrl, _, err := newController(ctx, recorder.SystemClock{})
		if err != nil {
			return err
		}

		rec, err := resolveRecording(ctrl, cmd, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, ui.FormatRecordingDetail(rec, ctrl.Now()))

		showPoints, _ := cmd.Flags().GetBool("points")
		if !showPoints {
			return nil
		}
		points, err := store.Points(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("failed to load points: %w", err)
		}
		if len(points) == 0 {
			_, _ = fmt.Fprintln(out, "  (no points)")
			return nil
		}
		for _, p := range points {
			_, _ = fmt.Fprintln(out, ui.FormatPoint(p))
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a recording with its points and pauses",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		ctrl, _, err := newController(ctx, recorder.SystemClock{})
		if err != nil {
			return err
		}

		rec, err := resolveRecording(ctrl, cmd, args[0])
		if err != nil {
			return err
		}
		if live, ok := ctrl.Status().RecordingRef(); ok && live == rec.ID {
			return fmt.Errorf("recording %q is in progress; stop it first", rec.Name)
		}

		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			fmt.Printf("Remove '%s' and all its points? [y/N] ", rec.Name)
			reader := bufio.NewReader(os.Stdin)
			response, _ := reader.ReadString('\n')
			response = strings.TrimSpace(strings.ToLower(response))
			if response != "y" && response != "yes" {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		if err := store.DeleteRecording(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to remove recording: %w", err)
		}

		color.Green("✓ Removed %s", rec.Name)
		return nil
	},
}

func init() {
	listCmd.Flags().IntP("limit", "l", 0, "show at most this many recordings")
	showCmd.Flags().BoolP("points", "p", false, "list every recorded point")
	removeCmd.Flags().Bool("confirm", false, "skip confirmation prompt")

	rootCmd.AddCommand(listCmd, showCmd, removeCmd)
}

// resolveRecording finds a recording by full ID or unique ID prefix.
func resolveRecording(ctrl *recorder.Controller, cmd *cobra.Command, ref string) (*models.Recording, error) {
	ctx := commandContext(cmd)
	if id, err := uuid.Parse(ref); err == nil {
		rec, err := store.GetRecording(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("recording '%s' not found", ref)
		}
		return rec, err
	}

	recs, err := ctrl.Recordings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	var matches []*models.Recording
	for _, rec := range recs {
		if strings.HasPrefix(rec.ID.String(), strings.ToLower(ref)) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("recording '%s' not found", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("recording prefix '%s' is ambiguous (%d matches)", ref, len(matches))
	}
}
