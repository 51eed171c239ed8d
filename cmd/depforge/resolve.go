// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/depforge/depforge/internal/config"
	"github.com/depforge/depforge/internal/watch"
	"github.com/depforge/depforge/pkg/depmanager"

	"github.com/spf13/cobra"
)

func newResolveCommand(a *app) *cobra.Command {
	var watchMode bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Consolidate dependencies and materialize the cache",
		Long: `Run one full pass over the project manifest: collect every module's
dependencies, consolidate versions, reconcile children, and rebuild the cache
directories with their rule manifests.

With --watch the pass re-runs whenever the project manifest or the
configuration file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watchMode {
				return a.watchResolve(cmd.Context())
			}
			_, err := a.resolveOnce(cmd.Context())
			return err
		},
	}
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "re-run when the manifest or configuration changes")
	return cmd
}

// resolveOnce loads fresh inputs and runs one pass.
func (a *app) resolveOnce(ctx context.Context) (*inputs, error) {
	in, err := a.loadInputs(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := in.cfg.ManagerOptions(in.baseDir)
	if err != nil {
		return in, err
	}
	opts.Logger = a.logger

	mgr, err := depmanager.New(opts)
	if err != nil {
		return in, err
	}
	res, err := mgr.Run(ctx, in.project.Modules)
	if err != nil {
		return in, err
	}

	fmt.Fprintf(a.stdout, "%s %d dependencies in %d directories under %s (%s)\n",
		SuccessStyle.Render("✓ materialized"),
		len(res.Dependencies), len(res.Directories),
		PathStyle.Render(mgr.Options().CacheRoot), res.Duration.Round(time.Millisecond))
	if len(res.Conflicts) > 0 {
		fmt.Fprintln(a.stdout, WarningStyle.Render(fmt.Sprintf("  %d version conflicts resolved", len(res.Conflicts))))
	}
	return in, nil
}

// watchResolve runs a pass, then re-runs it on every change to the inputs.
// Pass failures are reported and do not stop the watcher.
func (a *app) watchResolve(ctx context.Context) error {
	in, err := a.resolveOnce(ctx)
	if in == nil {
		return err
	}
	if err != nil {
		id, _ := classify(err)
		fmt.Fprintln(a.stderr, ErrorStyle.Render("✗ ")+err.Error())
		a.explain(err, id)
	}

	opts, optsErr := in.cfg.ManagerOptions(in.baseDir)
	if optsErr != nil {
		return optsErr
	}
	patterns := []string{filepath.Base(in.project.Path), config.ConfigFileName}
	if src := in.cfg.Source(); src != "" {
		if rel, relErr := filepath.Rel(in.baseDir, src); relErr == nil {
			patterns = append(patterns, filepath.ToSlash(rel))
		}
	}

	w, err := watch.New(watch.Config{
		BaseDir:  in.baseDir,
		Patterns: patterns,
		Ignore:   []string{opts.CacheRoot, filepath.Dir(opts.ChecksumCachePath)},
		Logger:   a.logger,
		OnChange: func(ctx context.Context, _ []string) error {
			_, err := a.resolveOnce(ctx)
			return err
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, SubtitleStyle.Render("watching "+in.baseDir+" (interrupt to stop)"))
	return w.Run(ctx)
}
