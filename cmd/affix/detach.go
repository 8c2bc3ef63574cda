package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/config"
)

var detachCmd = &cobra.Command{
	Use:   "detach [flags] <class> <id> <slot>...",
	Short: "Remove attachments from a record",
	Long: `Remove one or more attachments from a record. The stored files of
every style are deleted.

Examples:
  # Detach an avatar, asking for confirmation
  affix detach user 42 avatar

  # Detach without prompting
  affix detach -y user 42 avatar resume`,
	Args: cobra.MinimumNArgs(3),
	RunE: runDetach,
}

var deleteCmd = &cobra.Command{
	Use:     "delete [flags] <class> <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a record and all of its attachments",
	Args:    cobra.ExactArgs(2),
	RunE:    runDelete,
}

var (
	detachYes bool
	deleteYes bool
)

func init() {
	detachCmd.Flags().BoolVarP(&detachYes, "yes", "y", false, "do not ask for confirmation")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(detachCmd, deleteCmd)
}

func runDetach(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	ref, err := parseRef(args[0], args[1])
	if err != nil {
		return err
	}
	slots := args[2:]

	if !detachYes && !confirm(confirmText(ref, slots...)) {
		return nil
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, slot := range slots {
		if err := a.service.Detach(ctx, ref, slot); err != nil {
			return fmt.Errorf("detach %s from %s: %w", slot, ref, err)
		}
		slog.Info("detached", "record", ref.String(), "slot", slot)
	}

	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	ref, err := parseRef(args[0], args[1])
	if err != nil {
		return err
	}

	if !deleteYes && !confirm(confirmText(ref)) {
		return nil
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.DeleteRecord(ctx, ref); err != nil {
		if errors.Is(err, affix.ErrNotFound) {
			slog.Warn("not found", "record", ref.String())
			return nil
		}
		return fmt.Errorf("delete %s: %w", ref, err)
	}

	slog.Info("deleted", "record", ref.String())
	return nil
}

// confirm asks a yes/no question and reports whether the user agreed.
func confirm(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		fmt.Println("Cancelled.")
		return false
	}
	return true
}
