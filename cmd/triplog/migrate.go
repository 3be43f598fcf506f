// ABOUTME: Migration command for copying trips between storage backends
// ABOUTME: Supports sqlite-to-badger and badger-to-sqlite with safety checks

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/triplog/internal/config"
	"github.com/harper/triplog/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate trips between storage backends",
	Long: `Migrate every recording from the currently configured backend to a different backend.

Reads recordings with their pauses and points from the current backend and
writes them to the target backend. Does NOT update the config file; verify the
migration was successful then update config.json manually.

Examples:
  triplog migrate --to badger
  triplog migrate --to sqlite --data-dir ~/triplog-sqlite
  triplog migrate --to badger --force`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var (
	migrateTo      string
	migrateDataDir string
	migrateForce   bool
)

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "target backend (sqlite or badger)")
	migrateCmd.Flags().StringVar(&migrateDataDir, "data-dir", "", "target data directory (defaults to current config data_dir)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "allow writing into a target that already has data")
	_ = migrateCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	sourceBackend := cfg.GetBackend()
	targetBackend := migrateTo

	// Validate target backend
	if targetBackend != config.BackendSQLite && targetBackend != config.BackendBadger {
		return fmt.Errorf("invalid target backend %q: must be \"sqlite\" or \"badger\"", targetBackend)
	}
	if targetBackend == sourceBackend {
		return fmt.Errorf("target backend %q is the same as the current backend", targetBackend)
	}

	target := &config.Config{Backend: targetBackend, DataDir: cfg.GetDataDir()}
	if migrateDataDir != "" {
		target.DataDir = config.ExpandPath(migrateDataDir)
	}

	// Refuse to merge into existing data
	hasData, err := target.HasData(targetBackend)
	if err != nil {
		return fmt.Errorf("check target storage: %w", err)
	}
	if hasData && !migrateForce {
		return fmt.Errorf("target %q already has data; use --force to write into it", target.StoragePath(targetBackend))
	}

	dst, err := target.OpenStorage(logger)
	if err != nil {
		return fmt.Errorf("open target storage (%s): %w", targetBackend, err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: closing target storage: %v\n", cerr)
		}
	}()

	// Print plan
	out := cmd.OutOrStdout()
	color.Yellow("Migrating trips:")
	_, _ = fmt.Fprintf(out, "  Source:  %s (%s)\n", sourceBackend, cfg.StoragePath(sourceBackend))
	_, _ = fmt.Fprintf(out, "  Target:  %s (%s)\n", targetBackend, target.StoragePath(targetBackend))
	_, _ = fmt.Fprintln(out)

	summary, err := storage.MigrateData(commandContext(cmd), store, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	color.Green("Migration complete!")
	_, _ = fmt.Fprintf(out, "  Recordings: %d\n", summary.Recordings)
	_, _ = fmt.Fprintf(out, "  Pauses:     %d\n", summary.Pauses)
	_, _ = fmt.Fprintf(out, "  Points:     %d\n", summary.Points)
	_, _ = fmt.Fprintln(out)
	color.Yellow("Note: config.json was NOT updated. To switch to the new backend, edit:")
	_, _ = fmt.Fprintf(out, "  %s\n", config.GetConfigPath())
	_, _ = fmt.Fprintf(out, "  Set \"backend\": %q", targetBackend)
	if migrateDataDir != "" {
		_, _ = fmt.Fprintf(out, " and \"data_dir\": %q", migrateDataDir)
	}
	_, _ = fmt.Fprintln(out)

	return nil
}
