package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/affix/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "affix",
	Short:   "File attachments for records, stored on disk or in S3-compatible buckets",
	Long: `Affix attaches files to records. Each attachment slot has named styles
(thumbnails, conversions) that are generated on upload and stored on the
local filesystem or in an S3-compatible object store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFiles, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		setupLogging(cfg)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file paths, later files override earlier ones (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("env", "", "deployment environment (default: development, env: AFFIX_ENV)")
	rootCmd.PersistentFlags().String("db-type", "", "database type: sqlite, postgres (default: sqlite, env: AFFIX_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string (default: affix.db, env: AFFIX_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("storage-path", "", "filesystem storage directory (default: ./data)")
	rootCmd.PersistentFlags().String("base-url", "", "public URL of the files route, enables signed filesystem URLs")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
