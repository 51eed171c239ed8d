// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/depforge/depforge/internal/dag"
	"github.com/depforge/depforge/internal/issue"
	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/rule"
	"github.com/depforge/depforge/pkg/scope"
)

const (
	httpFileSuffix = "_file"
	stagingPattern = ".staging-*"
	replacedDir    = "replaced"
)

type (
	// dirPlan is the complete content of one cache directory, computed before
	// anything under the cache root changes.
	dirPlan struct {
		rel         string
		links       []link
		descriptors []rule.Descriptor
		deps        int
	}

	// link is one symlink of a cache directory; target is absolute.
	link struct {
		name   string
		target string
	}
)

// materialize replaces one directory per group path under the cache root.
// Every checksum, lint artifact and descriptor is computed first, then every
// directory is staged next to the cache, and only then are the staged
// directories swapped in. Directories of groups that left the graph are
// removed afterwards, as are lint artifacts nothing references.
func (p *Pass) materialize(ctx context.Context) error {
	plans, lint, err := p.planDirectories()
	if err != nil {
		return err
	}
	if err := p.commit(ctx, plans); err != nil {
		return err
	}

	current := make(map[string]bool, len(plans))
	for _, plan := range plans {
		current[plan.rel] = true
	}
	if err := p.pruneStale(current); err != nil {
		return err
	}
	removed, err := p.deps.PruneLint(lint)
	if err != nil {
		return issue.WrapWithContext(err, "prune lint artifacts", p.opts.CacheRoot)
	}
	p.logger.Info("materialized dependencies", "directories", len(p.dirs), "cache_root", p.opts.CacheRoot,
		"stale_lint_removed", len(removed))
	return nil
}

// planDirectories groups the canonical dependencies by directory and
// computes each directory's links and descriptors, sorted by path.
func (p *Pass) planDirectories() ([]dirPlan, []string, error) {
	byDir := make(map[string][]*dependency.Dependency)
	for _, dep := range p.dependencies() {
		rel := dep.Identity().GroupPath()
		byDir[rel] = append(byDir[rel], dep)
	}
	processorsByDir := make(map[string][]*scope.AnnotationProcessorScope)
	for _, ap := range p.processorScopes() {
		processorsByDir[ap.BasePath()] = append(processorsByDir[ap.BasePath()], ap)
	}

	rels := make([]string, 0, len(byDir))
	for rel := range byDir {
		rels = append(rels, rel)
	}
	slices.Sort(rels)

	var (
		plans = make([]dirPlan, 0, len(rels))
		lint  []string
	)
	for _, rel := range rels {
		plan, dirLint, err := p.planDir(rel, byDir[rel])
		if err != nil {
			return nil, nil, err
		}
		for _, ap := range processorsByDir[rel] {
			d, err := p.processorDescriptor(ap)
			if err != nil {
				return nil, nil, err
			}
			plan.descriptors = append(plan.descriptors, d)
		}
		delete(processorsByDir, rel)
		plans = append(plans, plan)
		lint = append(lint, dirLint...)
	}

	for rel, aps := range processorsByDir {
		for _, ap := range aps {
			p.logger.Warn("annotation processor group has no cache directory", "uid", ap.AnnotationProcessorsUID(), "base", rel)
		}
	}
	return plans, lint, nil
}

func (p *Pass) planDir(rel string, deps []*dependency.Dependency) (dirPlan, []string, error) {
	plan := dirPlan{rel: rel, deps: len(deps)}
	var lintPaths []string

	byName := make(map[string][]rule.Descriptor, len(deps))
	order := dag.New[string]()
	local := make(map[dependency.Identity]string, len(deps))
	for _, dep := range deps {
		local[dep.Identity()] = ruleName(dep.Coordinates())
	}

	for _, dep := range deps {
		l, err := newLink(dep.FileName(), dep.ArtifactFile())
		if err != nil {
			return dirPlan{}, nil, err
		}
		plan.links = append(plan.links, l)

		var sourceRef string
		if src := p.deps.Sources(dep); src != "" {
			l, err := newLink(dep.SourcesFileName(), src)
			if err != nil {
				return dirPlan{}, nil, err
			}
			plan.links = append(plan.links, l)
			sourceRef = dep.SourcesFileName()
		}
		lint, err := p.deps.LintArtifact(dep)
		if err != nil {
			return dirPlan{}, nil, err
		}
		if lint != "" {
			lintPaths = append(lintPaths, lint)
		}

		name := ruleName(dep.Coordinates())
		order.AddNode(name)
		var childRefs []string
		for _, child := range dep.Children() {
			if sibling, ok := local[child]; ok {
				order.AddEdge(sibling, name)
				childRefs = append(childRefs, ":"+sibling)
				continue
			}
			ref, err := p.label(dependency.Coordinates{Identity: child})
			if err != nil {
				return dirPlan{}, nil, err
			}
			childRefs = append(childRefs, ref)
		}

		descs, err := p.dependencyDescriptors(dep, sourceRef, lint, childRefs)
		if err != nil {
			return dirPlan{}, nil, err
		}
		byName[name] = descs
	}

	names, err := order.TopologicalSort()
	if err != nil {
		return dirPlan{}, nil, fmt.Errorf("cache directory %s: %w", rel, err)
	}
	for _, name := range names {
		plan.descriptors = append(plan.descriptors, byName[name]...)
	}
	return plan, lintPaths, nil
}

// commit stages every planned directory under a temporary directory inside
// the cache root, then swaps each one over its target in path order, so a
// parent group directory is in place before the groups nested in it. A
// failure while staging leaves the cache root untouched.
func (p *Pass) commit(ctx context.Context, plans []dirPlan) error {
	root := p.opts.CacheRoot
	if err := os.MkdirAll(root, 0o755); err != nil {
		return issue.WrapWithContext(err, "create cache root", root)
	}
	staging, err := os.MkdirTemp(root, stagingPattern)
	if err != nil {
		return issue.WrapWithContext(err, "create staging directory", root)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			p.logger.Warn("failed to remove staging directory", "dir", staging, "error", err)
		}
	}()

	staged := make([]string, len(plans))
	for i, plan := range plans {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(root, filepath.FromSlash(plan.rel))
		dir := filepath.Join(staging, strconv.Itoa(i))
		if err := os.Mkdir(dir, 0o755); err != nil {
			return issue.WrapWithContext(err, "create cache directory", target)
		}
		for _, l := range plan.links {
			if err := os.Symlink(l.target, filepath.Join(dir, l.name)); err != nil {
				return issue.WrapWithContext(err, "link dependency", filepath.Join(target, l.name))
			}
		}
		if err := p.opts.Emitter.Emit(ctx, rule.Directory{Path: target, Stage: dir}, plan.descriptors); err != nil {
			return issue.WrapWithContext(err, "emit rules", target)
		}
		staged[i] = dir
	}

	replaced := filepath.Join(staging, replacedDir)
	if err := os.Mkdir(replaced, 0o755); err != nil {
		return issue.WrapWithContext(err, "create staging directory", replaced)
	}
	for i, plan := range plans {
		target := filepath.Join(root, filepath.FromSlash(plan.rel))
		if err := swapDir(staged[i], target, filepath.Join(replaced, strconv.Itoa(i))); err != nil {
			return issue.WrapWithContext(err, "replace cache directory", target)
		}
		p.dirs = append(p.dirs, target)
		p.logger.Debug("materialized cache directory", "dir", target, "dependencies", plan.deps, "rules", len(plan.descriptors))
	}
	return nil
}

// swapDir moves the current target, if any, to old and renames stage into
// its place. The old directory is restored when the second rename fails.
func swapDir(stage, target, old string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	moved := true
	if err := os.Rename(target, old); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		moved = false
	}
	if err := os.Rename(stage, target); err != nil {
		if moved {
			if restoreErr := os.Rename(old, target); restoreErr != nil {
				return errors.Join(err, restoreErr)
			}
		}
		return err
	}
	return nil
}

// pruneStale removes directories an earlier pass materialized for groups
// that are no longer in current. Materialized directories are the ones
// holding symlinks; dot-directories under the cache root are depforge's own.
// Only the files of a stale directory are removed, so groups nested in it
// survive, and directories left empty are removed up to the cache root.
func (p *Pass) pruneStale(current map[string]bool) error {
	root := filepath.Clean(p.opts.CacheRoot)
	var stale []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if current[filepath.ToSlash(rel)] {
			return nil
		}
		ok, err := holdsLinks(path)
		if err != nil {
			return err
		}
		if ok {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return issue.WrapWithContext(err, "scan cache root", root)
	}

	// WalkDir visits parents first; clear children first.
	for _, dir := range slices.Backward(stale) {
		if err := clearFiles(dir); err != nil {
			return issue.WrapWithContext(err, "remove stale cache directory", dir)
		}
		for d := dir; d != root && strings.HasPrefix(d, root); d = filepath.Dir(d) {
			if os.Remove(d) != nil {
				break
			}
		}
		p.logger.Info("removed stale cache directory", "dir", dir)
	}
	return nil
}

func holdsLinks(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink != 0 {
			return true, nil
		}
	}
	return false, nil
}

func clearFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func newLink(name, target string) (link, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return link{}, issue.WrapWithContext(err, "resolve artifact path", target)
	}
	return link{name: name, target: abs}, nil
}

func (p *Pass) dependencyDescriptors(dep *dependency.Dependency, sourceRef, lint string, childRefs []string) ([]rule.Descriptor, error) {
	ref := dep.Coordinates().String()
	name := ruleName(dep.Coordinates())
	if lint != "" {
		if rel, err := filepath.Rel(p.opts.CacheRoot, lint); err == nil {
			lint = filepath.ToSlash(rel)
		}
	}

	switch dep.Kind() {
	case dependency.KindLocal:
		if dep.SkipPrebuilt() {
			return nil, nil
		}
		return []rule.Descriptor{{
			Kind:          rule.KindLocalPrebuilt,
			Name:          name,
			DependencyRef: ref,
			SourceRef:     sourceRef,
			File:          dep.FileName(),
			Deps:          childRefs,
			Lint:          lint,
		}}, nil
	case dependency.KindRemote:
		sum, err := p.sums.Sum(dep.ArtifactFile())
		if err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("checksum dependency").
				WithResource(dep.ArtifactFile()).
				WithSuggestion("Re-run the build's dependency resolution so the artifact is downloaded again").
				Wrap(err).
				BuildError()
		}
		file := rule.Descriptor{
			Kind:          rule.KindHTTPFile,
			Name:          name + httpFileSuffix,
			DependencyRef: ref,
			SHA256:        sum,
			File:          dep.FileName(),
		}
		if dep.SkipPrebuilt() {
			return []rule.Descriptor{file}, nil
		}
		return []rule.Descriptor{file, {
			Kind:          rule.KindRemotePrebuilt,
			Name:          name,
			DependencyRef: ref,
			SHA256:        sum,
			SourceRef:     sourceRef,
			Deps:          append([]string{":" + name + httpFileSuffix}, childRefs...),
			Lint:          lint,
		}}, nil
	default:
		return nil, fmt.Errorf("dependency %s has unknown kind %s", ref, dep.Kind())
	}
}

func (p *Pass) processorDescriptor(ap *scope.AnnotationProcessorScope) (rule.Descriptor, error) {
	deps := ap.Dependencies()
	refs := make([]string, 0, len(deps))
	for _, c := range deps {
		ref, err := p.label(c)
		if err != nil {
			return rule.Descriptor{}, err
		}
		refs = append(refs, ref)
	}
	return rule.Descriptor{
		Kind:          rule.KindAnnotationProcessor,
		Name:          ap.AnnotationProcessorsUID(),
		DependencyRef: ap.Anchor().String(),
		Deps:          refs,
		Processors:    ap.AnnotationProcessors(),
	}, nil
}

// label returns the cross-directory rule reference of the canonical record
// for c: the record with c's exact version if there is one, else the single
// canonical version of c's identity.
func (p *Pass) label(c dependency.Coordinates) (string, error) {
	deps := p.canonical[c.Identity]
	var dep *dependency.Dependency
	for _, d := range deps {
		if d.Version() == c.Version {
			dep = d
		}
	}
	if dep == nil {
		switch len(deps) {
		case 0:
			return "", fmt.Errorf("%w: %s", ErrMissingChild, c)
		case 1:
			dep = deps[0]
		default:
			return "", &AmbiguousChildrenError{Identity: c.Identity, Versions: depVersions(deps)}
		}
	}
	return "//" + dep.Identity().GroupPath() + ":" + ruleName(dep.Coordinates()), nil
}

func ruleName(c dependency.Coordinates) string {
	return c.CacheName()
}

func depVersions(deps []*dependency.Dependency) []dependency.Version {
	out := make([]dependency.Version, len(deps))
	for i, d := range deps {
		out[i] = d.Version()
	}
	return out
}
