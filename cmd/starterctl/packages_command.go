package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-starter/internal/bundlehttp"
)

func newPackagesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "packages",
		Short: "List the configured packages and libraries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ctx.builder(cmd)
			if err != nil {
				return err
			}
			resp := bundlehttp.PackagesResponse{Libraries: b.Libraries()}
			for _, d := range b.Packages() {
				resp.Packages = append(resp.Packages, bundlehttp.PackageInfo{Name: d.FullName(), Version: d.Version})
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PACKAGE\tVERSION")
			for _, p := range resp.Packages {
				ver := p.Version
				if ver == "" {
					ver = "latest"
				}
				fmt.Fprintf(tw, "%s\t%s\n", p.Name, ver)
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "LIBRARY\tFILE\tENABLED")
			for _, l := range resp.Libraries {
				fmt.Fprintf(tw, "%s/%s\t%s\t%t\n", l.Module, l.Path, l.FileName(), l.Enabled)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}
