// SPDX-License-Identifier: MPL-2.0

// Package report summarizes a dependency pass as Markdown for the terminal.
package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/depmanager"
	"github.com/depforge/depforge/pkg/scope"

	"github.com/charmbracelet/glamour"
)

type (
	// Options controls which sections Markdown writes.
	Options struct {
		// Title heads the report. Defaults to "Dependency report".
		Title string
		// Scopes adds one table per module and purpose.
		Scopes bool
	}

	// RenderOptions controls terminal rendering.
	RenderOptions struct {
		// Style is a glamour standard style ("dark", "light", "notty") or
		// "auto" to detect the terminal background. Defaults to "auto".
		Style string
		// Width wraps text when positive.
		Width int
	}
)

// Markdown writes the report for res.
func Markdown(res *depmanager.Result, opts Options) string {
	title := opts.Title
	if title == "" {
		title = "Dependency report"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	writeSummary(&b, res)
	writeMultiVersion(&b, res)
	writeConflicts(&b, res)
	writeDependencies(&b, res)
	writeProcessors(&b, res)
	if opts.Scopes {
		writeScopes(&b, res)
	}
	return b.String()
}

func writeSummary(b *strings.Builder, res *depmanager.Result) {
	var local, remote, firstLevel int
	for _, d := range res.Dependencies {
		switch d.Kind() {
		case dependency.KindLocal:
			local++
		case dependency.KindRemote:
			remote++
		}
		if d.FirstLevel() {
			firstLevel++
		}
	}

	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(b, "| Modules | %d |\n", len(res.Modules))
	fmt.Fprintf(b, "| Dependencies | %d (%d remote, %d local) |\n", len(res.Dependencies), remote, local)
	fmt.Fprintf(b, "| First-level | %d |\n", firstLevel)
	fmt.Fprintf(b, "| Multi-version identities | %d |\n", len(res.MultiVersion))
	fmt.Fprintf(b, "| Conflicts resolved | %d |\n", len(res.Conflicts))
	fmt.Fprintf(b, "| Annotation processor groups | %d |\n", len(res.Processors))
	if len(res.Directories) > 0 {
		fmt.Fprintf(b, "| Directories materialized | %d |\n", len(res.Directories))
	}
	if res.Duration > 0 {
		fmt.Fprintf(b, "| Duration | %s |\n", res.Duration.Round(time.Millisecond))
	}
	b.WriteString("\n")
}

func writeMultiVersion(b *strings.Builder, res *depmanager.Result) {
	if len(res.MultiVersion) == 0 {
		return
	}
	b.WriteString("## Multi-version identities\n\n")
	for _, id := range res.MultiVersion {
		versions := make([]string, 0, 2)
		for _, d := range res.Lookup(id) {
			versions = append(versions, string(d.Version()))
		}
		fmt.Fprintf(b, "- `%s`: %s\n", id, strings.Join(versions, ", "))
	}
	b.WriteString("\n")
}

func writeConflicts(b *strings.Builder, res *depmanager.Result) {
	if len(res.Conflicts) == 0 {
		return
	}
	b.WriteString("## Resolved conflicts\n\n| Identity | Observed | Chosen |\n|---|---|---|\n")
	for _, c := range res.Conflicts {
		observed := make([]string, len(c.Versions))
		for i, v := range c.Versions {
			observed[i] = string(v)
		}
		fmt.Fprintf(b, "| `%s` | %s | **%s** |\n", c.Identity, strings.Join(observed, ", "), c.Chosen)
	}
	b.WriteString("\n")
}

func writeDependencies(b *strings.Builder, res *depmanager.Result) {
	if len(res.Dependencies) == 0 {
		return
	}
	b.WriteString("## Dependencies\n\n| Coordinates | Kind | Packaging | First-level | Children |\n|---|---|---|---|---|\n")
	for _, d := range res.Dependencies {
		children := d.Children()
		names := make([]string, len(children))
		for i, c := range children {
			names[i] = c.String()
		}
		fmt.Fprintf(b, "| `%s` | %s | %s | %s | %s |\n", d.Coordinates(), d.Kind(), d.Packaging(), yesNo(d.FirstLevel()), strings.Join(names, ", "))
	}
	b.WriteString("\n")
}

func writeProcessors(b *strings.Builder, res *depmanager.Result) {
	if len(res.Processors) == 0 {
		return
	}
	b.WriteString("## Annotation processors\n\n")
	for _, ap := range res.Processors {
		fmt.Fprintf(b, "### %s\n\n", ap.AnnotationProcessorsUID())
		fmt.Fprintf(b, "- Directory: `%s`\n", ap.BasePath())
		if procs := ap.AnnotationProcessors(); len(procs) > 0 {
			fmt.Fprintf(b, "- Processors: %s\n", strings.Join(procs, ", "))
		}
		for _, c := range ap.Dependencies() {
			fmt.Fprintf(b, "- `%s`\n", c)
		}
		b.WriteString("\n")
	}
}

func writeScopes(b *strings.Builder, res *depmanager.Result) {
	if len(res.Modules) == 0 {
		return
	}
	b.WriteString("## Module scopes\n\n")
	for _, ms := range res.Modules {
		fmt.Fprintf(b, "### %s\n\n| Purpose | Implementation | API | Provided | Internal |\n|---|---|---|---|---|\n", ms.Module)
		for _, p := range scope.Purposes() {
			s, ok := ms.Scopes[p]
			if !ok {
				continue
			}
			internal := s.Internal()
			slices.Sort(internal)
			fmt.Fprintf(b, "| %s | %d | %d | %d | %s |\n", p, len(s.Implementation()), len(s.API()), len(s.Provided()), strings.Join(internal, ", "))
		}
		b.WriteString("\n")
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// Render renders Markdown through glamour.
func Render(md string, opts RenderOptions) (string, error) {
	var rendererOpts []glamour.TermRendererOption
	switch opts.Style {
	case "", "auto":
		rendererOpts = append(rendererOpts, glamour.WithAutoStyle())
	default:
		rendererOpts = append(rendererOpts, glamour.WithStandardStyle(opts.Style))
	}
	if opts.Width > 0 {
		rendererOpts = append(rendererOpts, glamour.WithWordWrap(opts.Width))
	}

	renderer, err := glamour.NewTermRenderer(rendererOpts...)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	return renderer.Render(md)
}
