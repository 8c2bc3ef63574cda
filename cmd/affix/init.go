package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/affix/config"
	"github.com/sagarc03/affix/database"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the records table and storage directory",
	Long: `Prepare a fresh installation:
  - Create the records table in the configured database
  - Create the filesystem storage directory

Running init again is safe; existing tables and files are left untouched.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	db, err := database.Connect(ctx, cfg.Database.Config)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err = db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err = db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err = db.Validate(ctx); err != nil {
		return fmt.Errorf("validate database schema: %w", err)
	}

	if err = os.MkdirAll(cfg.Storage.Filesystem.Path, 0o750); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	slog.Info("initialization complete",
		"database", cfg.Database.Type,
		"table", cfg.Database.Tables.Records,
		"storage", cfg.Storage.Filesystem.Path,
	)
	return nil
}
