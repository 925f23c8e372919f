package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/feedupdate/internal/feed"
)

type keygenOptions struct {
	Name   string
	Email  string
	Prefix string
}

func newKeygenCmd() *cobra.Command {
	opts := keygenOptions{}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a feed signing key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			pubPath, privPath, err := runKeygen(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Public key:  "+pubPath))
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Private key: "+privPath))
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Ship only the public key with the application."))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "feed signer", "Key owner name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "Key owner email")
	cmd.Flags().StringVarP(&opts.Prefix, "out", "o", "feed", "Output prefix; writes <prefix>.pub.asc and <prefix>.key.asc")

	return cmd
}

func runKeygen(opts keygenOptions) (string, string, error) {
	pubPath := opts.Prefix + ".pub.asc"
	privPath := opts.Prefix + ".key.asc"
	if err := refuseOverwrite(pubPath, privPath); err != nil {
		return "", "", err
	}

	pub, priv, err := feed.GenerateKey(opts.Name, opts.Email)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(privPath, []byte(priv), 0o600); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pub), 0o644); err != nil {
		return "", "", fmt.Errorf("write public key: %w", err)
	}
	return pubPath, privPath, nil
}
