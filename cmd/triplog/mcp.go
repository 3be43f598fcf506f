// ABOUTME: MCP serve command
// ABOUTME: Runs the session controller and the MCP server side by side until stdin closes

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/triplog/internal/mcp"
	"github.com/harper/triplog/internal/recorder"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		ctrl, provider, err := newController(ctx, recorder.SystemClock{})
		if err != nil {
			return err
		}
		defer provider.Close()

		server, err := mcp.NewServer(ctrl, logger)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		runCtx, stopRun := context.WithCancel(gctx)
		g.Go(func() error {
			err := ctrl.Run(runCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			defer stopRun()
			err := server.Serve(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
