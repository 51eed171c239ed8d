// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the depforge command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/depforge/depforge/internal/config"
	"github.com/depforge/depforge/internal/issue"
	"github.com/depforge/depforge/internal/project"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// app holds global flags and the resolved inputs shared by subcommands.
type app struct {
	verbose     bool
	cfgFile     string
	projectFile string

	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// inputs are the configuration and project manifest of one invocation.
type inputs struct {
	cfg     *config.Config
	project *project.Project
	baseDir string
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "depforge",
		Short: "Consolidate and cache a build's binary dependencies",
		Long: TitleStyle.Render("depforge") + SubtitleStyle.Render(" - dependency consolidation and caching") + `

depforge reads the resolved dependency graph a build exports, consolidates
every dependency to its canonical versions, and materializes a deterministic
cache of symlinked artifacts with one rule manifest per group directory.

` + SubtitleStyle.Render("Examples:") + `
  depforge resolve                Materialize the cache once
  depforge resolve --watch        Re-run when the manifest or config changes
  depforge report                 Show the consolidated graph without writing
  depforge config show            Show the effective configuration`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.stdout = cmd.OutOrStdout()
			a.stderr = cmd.ErrOrStderr()
			a.logger = newLogger(a.stderr, a.verbose)
			slog.SetDefault(a.logger)
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is depforge.cue next to the project manifest)")
	root.PersistentFlags().StringVarP(&a.projectFile, "project", "p", "", "project manifest (default is depforge.project.cue in the working directory)")

	root.AddCommand(newResolveCommand(a))
	root.AddCommand(newReportCommand(a))
	root.AddCommand(newConfigCommand(a))
	root.AddCommand(newCacheCommand(a))
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with its status. It is called by main.main().
func Execute() {
	os.Exit(run())
}

// run executes the root command and returns the process exit code.
func run() int {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	root := newRootCommand(a)
	err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err == nil {
		return ExitOK
	}
	id, code := classify(err)
	a.explain(err, id)
	return code
}

// explain prints the actionable form of err and the catalogued guidance.
func (a *app) explain(err error, id issue.Id) {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.HasSuggestions() {
		fmt.Fprintln(a.stderr, ae.Format(a.verbose))
	}
	is := issue.Get(id)
	if is == nil {
		return
	}
	style := "notty"
	if a.verbose {
		style = "auto"
	}
	if out, renderErr := is.Render(style); renderErr == nil {
		fmt.Fprint(a.stderr, out)
	}
}

// loadInputs locates the project manifest and loads it with its configuration.
func (a *app) loadInputs(ctx context.Context) (*inputs, error) {
	path := a.projectFile
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if path, err = project.Find(wd); err != nil {
			return nil, err
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	baseDir := filepath.Dir(abs)

	cfg, err := config.NewProvider().Load(ctx, config.LoadOptions{ConfigFilePath: a.cfgFile, ProjectDir: baseDir})
	if err != nil {
		return nil, err
	}
	if cfg.UI.Verbose && !a.verbose {
		a.verbose = true
		a.logger = newLogger(a.stderr, true)
		slog.SetDefault(a.logger)
	}

	proj, err := project.Load(ctx, abs)
	if err != nil {
		var me *project.ManifestError
		if errors.As(err, &me) {
			return nil, err
		}
		return nil, issue.NewErrorContext().
			WithOperation("load project manifest").
			WithResource(abs).
			WithSuggestion("Re-export the manifest from your build").
			Wrap(err).
			BuildError()
	}
	return &inputs{cfg: cfg, project: proj, baseDir: baseDir}, nil
}
