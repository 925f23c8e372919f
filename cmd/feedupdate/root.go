package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "feedupdate",
		Short:         "feedupdate checks an update feed and applies it to an installed application",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newCheckCmd(flags))
	cmd.AddCommand(newApplyCmd(flags))
	cmd.AddCommand(newSignCmd())
	cmd.AddCommand(newKeygenCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
