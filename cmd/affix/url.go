package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/config"
)

var urlCmd = &cobra.Command{
	Use:   "url [flags] <class> <id> <slot>",
	Short: "Print a time-limited URL for an attachment",
	Long: `Print a signed URL for one style of an attachment.

Object store attachments are presigned by the bucket. Filesystem attachments
need storage.filesystem.base_url and an access key to sign with.

Examples:
  affix url user 42 avatar
  affix url --style thumb --expires 10m user 42 avatar`,
	Args: cobra.ExactArgs(3),
	RunE: runURL,
}

var (
	urlStyle   string
	urlExpires time.Duration
)

func init() {
	urlCmd.Flags().StringVarP(&urlStyle, "style", "s", "", "style to sign (default: the slot's default style)")
	urlCmd.Flags().DurationVarP(&urlExpires, "expires", "e", affix.DefaultSignedURLTTL, "how long the URL stays valid")
	rootCmd.AddCommand(urlCmd)
}

func runURL(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	ref, err := parseRef(args[0], args[1])
	if err != nil {
		return err
	}

	if urlExpires <= 0 {
		return fmt.Errorf("expires must be positive, got %s", urlExpires)
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	attachment, err := a.service.Get(ctx, ref, args[2])
	if err != nil {
		return fmt.Errorf("url %s %s: %w", ref, args[2], err)
	}

	signed, err := attachment.SignedURL(ctx, urlStyle, urlExpires)
	if err != nil {
		return fmt.Errorf("sign url: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
	return err
}
