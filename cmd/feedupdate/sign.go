package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/feedupdate/internal/feed"
)

type signOptions struct {
	KeyPath    string
	FeedPath   string
	OutputPath string
}

func newSignCmd() *cobra.Command {
	opts := signOptions{}

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a feed with an armored private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runSign(opts); err != nil {
				return err
			}
			out := opts.OutputPath
			if out == "" {
				out = opts.FeedPath
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Signed "+out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.KeyPath, "key", "k", "", "Armored private key file")
	cmd.Flags().StringVarP(&opts.FeedPath, "feed", "f", "", "Feed file to sign")
	cmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "Where to write the signed feed (default: in place)")
	cmd.MarkFlagRequired("key")  //nolint:errcheck
	cmd.MarkFlagRequired("feed") //nolint:errcheck

	return cmd
}

func runSign(opts signOptions) error {
	keyFile, err := os.Open(opts.KeyPath)
	if err != nil {
		return fmt.Errorf("open key: %w", err)
	}
	defer keyFile.Close()

	signer, err := feed.ReadSigningKey(keyFile)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(opts.FeedPath)
	if err != nil {
		return fmt.Errorf("read feed: %w", err)
	}
	signed, err := feed.Sign(string(text), signer)
	if err != nil {
		return err
	}

	out := opts.OutputPath
	if out == "" {
		out = opts.FeedPath
	}
	if err := os.WriteFile(out, []byte(signed), 0o644); err != nil {
		return fmt.Errorf("write signed feed: %w", err)
	}
	return nil
}
