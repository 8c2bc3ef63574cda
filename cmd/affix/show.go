package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/config"
)

var showCmd = &cobra.Command{
	Use:   "show [flags] <class> [id] [slot]",
	Short: "Show records and their attachments",
	Long: `Show a record with all of its attachments, or a single attachment
when a slot is given. Without an id every record of the class is listed.

Examples:
  affix show user
  affix show user 42
  affix show -o yaml user 42 avatar`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runShow,
}

var showOutput string

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		records, err := a.service.List(ctx, args[0])
		if err != nil {
			return fmt.Errorf("list %s: %w", args[0], err)
		}
		views := make([]recordView, 0, len(records))
		for _, rec := range records {
			_, attachments, err := a.service.Record(ctx, rec.Ref())
			if err != nil {
				return fmt.Errorf("load %s: %w", rec.Ref(), err)
			}
			views = append(views, newRecordView(rec, attachments))
		}
		if showOutput == "text" {
			for _, v := range views {
				if err := printValue(out, showOutput, v); err != nil {
					return err
				}
			}
			return nil
		}
		return printValue(out, showOutput, views)
	}

	ref, err := parseRef(args[0], args[1])
	if err != nil {
		return err
	}

	if len(args) == 3 {
		attachment, err := a.service.Get(ctx, ref, args[2])
		if err != nil {
			return fmt.Errorf("show %s %s: %w", ref, args[2], err)
		}
		return printValue(out, showOutput, affix.Describe(attachment))
	}

	rec, attachments, err := a.service.Record(ctx, ref)
	if err != nil {
		return fmt.Errorf("show %s: %w", ref, err)
	}
	return printValue(out, showOutput, newRecordView(rec, attachments))
}
