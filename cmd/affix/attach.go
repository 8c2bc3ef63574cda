package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/config"
)

var attachCmd = &cobra.Command{
	Use:   "attach [flags] <class> <id> <slot> <file>",
	Short: "Attach a local file to a record",
	Long: `Attach a local file to an attachment slot of a record.

The record is created when it does not exist. Every configured style is
generated from the file, and files of a previous attachment are moved or
removed once the new ones are stored.

Examples:
  # Attach an avatar to user 42
  affix attach user 42 avatar ./me.png

  # Attach and print the result as JSON
  affix attach -o json user 42 resume ./cv.pdf`,
	Args: cobra.ExactArgs(4),
	RunE: runAttach,
}

var attachOutput string

func init() {
	attachCmd.Flags().StringVarP(&attachOutput, "output", "o", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	ref, err := parseRef(args[0], args[1])
	if err != nil {
		return err
	}
	slot, path := args[2], args[3]

	f, err := affix.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	attachment, err := a.service.Attach(ctx, ref, slot, f)
	if err != nil {
		return fmt.Errorf("attach %s to %s: %w", path, ref, err)
	}

	slog.Info("attached", "record", ref.String(), "slot", slot, "file", attachment.FileName())
	return printValue(cmd.OutOrStdout(), attachOutput, affix.Describe(attachment))
}
