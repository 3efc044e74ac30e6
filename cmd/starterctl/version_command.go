package main

import (
	"fmt"

	"github.com/spf13/cobra"

	v "github.com/keithlinneman/linnemanlabs-starter/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "starterctl %s\n", v.Get())
			return nil
		},
	}
}
