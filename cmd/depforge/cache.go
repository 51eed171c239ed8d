// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/depforge/depforge/internal/config"
	"github.com/depforge/depforge/pkg/checksum"

	"github.com/spf13/cobra"
)

func newCacheCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain depforge state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Drop checksum entries whose artifact no longer exists",
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
			opts, err := cfg.ManagerOptions(dir)
			if err != nil {
				return err
			}

			sums, err := checksum.Load(opts.ChecksumCachePath, checksum.WithLogger(a.logger))
			if err != nil {
				return err
			}
			removed := sums.Prune(func(key string) bool {
				_, statErr := os.Stat(key)
				return statErr == nil
			})
			if err := sums.Save(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s %d stale entries, %d kept in %s\n",
				SuccessStyle.Render("✓ pruned"), len(removed), sums.Len(), PathStyle.Render(sums.Path()))
			return nil
		},
	})
	return cmd
}
