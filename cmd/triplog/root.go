// ABOUTME: Root Cobra command and global flags
// ABOUTME: Loads config, sets up logging, and opens the trip store and status history

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/harper/triplog/internal/config"
	"github.com/harper/triplog/internal/recorder"
	"github.com/harper/triplog/internal/replay"
	"github.com/harper/triplog/internal/status"
	"github.com/harper/triplog/internal/storage"
	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	store   storage.TripStore
	history *status.History
	logger  = log.NewWithOptions(os.Stderr, log.Options{Prefix: "triplog"})
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "triplog",
	Short: "GPS trip recorder with a durable trip store",
	Long: `
████████╗██████╗ ██╗██████╗ ██╗      ██████╗  ██████╗
╚══██╔══╝██╔══██╗██║██╔══██╗██║     ██╔═══██╗██╔════╝
   ██║   ██████╔╝██║██████╔╝██║     ██║   ██║██║  ███╗
   ██║   ██╔══██╗██║██╔═══╝ ██║     ██║   ██║██║   ██║
   ██║   ██║  ██║██║██║     ███████╗╚██████╔╝╚██████╔╝
   ╚═╝   ╚═╝  ╚═╝╚═╝╚═╝     ╚══════╝ ╚═════╝  ╚═════╝

         Record trips as pausable sessions of GPS points

Examples:
  triplog start --name "lakefront run"
  triplog pause
  triplog resume
  triplog stop
  triplog list
  triplog feed drive.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level, err := cfg.GetLogLevel()
		if err != nil {
			return err
		}
		if verbose {
			level = log.DebugLevel
		}
		logger.SetLevel(level)

		store, err = cfg.OpenStorage(logger)
		if err != nil {
			return fmt.Errorf("failed to open trip store: %w", err)
		}

		history, err = status.OpenHistory(cfg.HistoryPath(), logger)
		if err != nil {
			_ = store.Close()
			store = nil
			return fmt.Errorf("failed to open status history: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func closeAll() error {
	var errs []error
	if history != nil {
		errs = append(errs, history.Close())
		history = nil
	}
	if store != nil {
		errs = append(errs, store.Close())
		store = nil
	}
	return errors.Join(errs...)
}

// newController builds a session controller over the open store and history.
// The CLI has no platform location service, so an in-process provider stands
// in for it; fixes arrive through scripts or MCP location reports.
func newController(ctx context.Context, clock recorder.Clock) (*recorder.Controller, *replay.Provider, error) {
	provider := replay.NewProvider(recorder.AuthAlways, 64)
	ctrl, err := recorder.New(ctx, recorder.Deps{
		Store:    store,
		History:  history,
		Provider: provider,
		Clock:    clock,
		Settings: recorder.StaticSettings(cfg.Settings()),
		Logger:   logger,
	}, cfg.RecorderOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session controller: %w", err)
	}
	return ctrl, provider, nil
}
