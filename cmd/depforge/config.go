// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/depforge/depforge/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect depforge configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := config.NewProvider().Load(cmd.Context(), config.LoadOptions{ConfigFilePath: a.cfgFile, ProjectDir: dir})
			if err != nil {
				return err
			}
			if src := cfg.Source(); src != "" {
				fmt.Fprintf(a.stdout, "// loaded from %s\n", src)
			} else {
				fmt.Fprintln(a.stdout, "// built-in defaults")
			}
			fmt.Fprint(a.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})
	return cmd
}
