package main

import (
	"flag"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	goFS := flag.NewFlagSet("starterctl", flag.ContinueOnError)
	ctx := newCommandContext(goFS)

	rootCmd := &cobra.Command{
		Use:           "starterctl",
		Short:         "Build p5.js starter archives from npm packages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return ctx.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().AddGoFlagSet(goFS)

	rootCmd.AddCommand(newBuildCommand(ctx))
	rootCmd.AddCommand(newPackagesCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
