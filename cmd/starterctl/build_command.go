package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-starter/internal/bundle"
)

type buildSummary struct {
	ID       string          `json:"id"`
	Mode     string          `json:"mode"`
	Path     string          `json:"path"`
	Bytes    int             `json:"bytes"`
	Entries  int             `json:"entries"`
	Modules  []bundle.Module `json:"modules"`
	Degraded []string        `json:"degraded,omitempty"`
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var minimal bool
	var output string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a starter archive and write it to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ctx.builder(cmd)
			if err != nil {
				return err
			}
			mode := bundle.Full
			if minimal {
				mode = bundle.Minimal
			}
			out, err := b.Build(cmd.Context(), mode)
			if err != nil {
				return fmt.Errorf("build archive: %w", err)
			}

			path := output
			if path == "" {
				path = out.Filename
			} else if st, err := os.Stat(path); err == nil && st.IsDir() {
				path = filepath.Join(path, out.Filename)
			}
			if err := os.WriteFile(path, out.Data, 0o644); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}

			sum := buildSummary{
				ID:       out.ID,
				Mode:     out.Mode.String(),
				Path:     path,
				Bytes:    len(out.Data),
				Entries:  len(out.Entries),
				Modules:  out.Modules,
				Degraded: out.Degraded,
			}
			if jsonOut {
				return writeJSON(cmd, sum)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "wrote %s (%d bytes, %d entries, %s)\n", sum.Path, sum.Bytes, sum.Entries, sum.Mode)
			if len(sum.Degraded) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: missing modules: %s\n", strings.Join(sum.Degraded, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&minimal, "minimal", false, "Only include the library files listed in index.html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default: generated name in the current directory)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the build summary as JSON")
	return cmd
}
