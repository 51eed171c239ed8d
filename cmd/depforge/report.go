// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/depforge/depforge/internal/report"
	"github.com/depforge/depforge/pkg/depmanager"

	"github.com/spf13/cobra"
)

func newReportCommand(a *app) *cobra.Command {
	var (
		scopes bool
		raw    bool
		width  int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the consolidated dependency graph without writing the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			in, err := a.loadInputs(ctx)
			if err != nil {
				return err
			}
			opts, err := in.cfg.ManagerOptions(in.baseDir)
			if err != nil {
				return err
			}
			opts.Logger = a.logger

			mgr, err := depmanager.New(opts)
			if err != nil {
				return err
			}
			res, err := mgr.Plan(ctx, in.project.Modules)
			if err != nil {
				return err
			}

			md := report.Markdown(res, report.Options{Scopes: scopes})
			if raw {
				fmt.Fprint(a.stdout, md)
				return nil
			}
			out, err := report.Render(md, report.RenderOptions{Style: string(in.cfg.UI.ColorScheme), Width: width})
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&scopes, "scopes", false, "include per-module scope tables")
	cmd.Flags().BoolVar(&raw, "raw", false, "print Markdown without terminal rendering")
	cmd.Flags().IntVar(&width, "width", 100, "wrap rendered output at this width")
	return cmd
}
