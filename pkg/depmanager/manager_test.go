// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/depforge/depforge/pkg/checksum"
	"github.com/depforge/depforge/pkg/depcache"
	"github.com/depforge/depforge/pkg/dependency"
	"github.com/depforge/depforge/pkg/rule"
	"github.com/depforge/depforge/pkg/scope"
)

type fixture struct {
	t        *testing.T
	registry string
	root     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{t: t, registry: filepath.Join(dir, "registry"), root: filepath.Join(dir, "out", "cache")}
}

// jar writes a jar for coordinates s into the fixture registry, with
// optional zip entries, and returns an artifact for it.
func (f *fixture) jar(s string, entries map[string]string) depcache.Artifact {
	f.t.Helper()
	c, err := dependency.ParseCoordinates(s)
	if err != nil {
		f.t.Fatal(err)
	}
	path := filepath.Join(f.registry, c.Group, c.Name, string(c.Version), c.Name+"-"+string(c.Version)+".jar")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		f.t.Fatal(err)
	}
	out, err := os.Create(path)
	if err != nil {
		f.t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	w, _ := zw.Create("META-INF/MANIFEST.MF")
	fmt.Fprintf(w, "Name: %s\n", s)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			f.t.Fatal(err)
		}
		_, _ = w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		f.t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		f.t.Fatal(err)
	}
	return depcache.Artifact{Coordinates: c, File: path}
}

func (f *fixture) manager(mutate func(*Options)) *Manager {
	f.t.Helper()
	opts := Options{CacheRoot: f.root, Policy: DefaultPolicy(), Workers: 2}
	if mutate != nil {
		mutate(&opts)
	}
	m, err := New(opts)
	if err != nil {
		f.t.Fatal(err)
	}
	return m
}

func firstLevel(a depcache.Artifact) depcache.Artifact {
	a.FirstLevel = true
	return a
}

func withChildren(a depcache.Artifact, children ...depcache.Artifact) depcache.Artifact {
	for _, c := range children {
		a.Children = append(a.Children, c.Coordinates)
	}
	return a
}

func module(path string, artifacts ...depcache.Artifact) Module {
	return Module{Path: path, Configurations: []depcache.Configuration{
		{Name: "runtimeClasspath", Artifacts: artifacts},
		{Name: "compileClasspath", Artifacts: artifacts},
	}}
}

func mustID(s string) dependency.Identity {
	id, err := dependency.ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func TestNewRequiresCacheRoot(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{}); !errors.Is(err, ErrNoCacheRoot) {
		t.Fatalf("expected ErrNoCacheRoot, got %v", err)
	}
}

func TestRunRejectsEmptyModules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.manager(nil).Run(context.Background(), nil); !errors.Is(err, ErrNoModules) {
		t.Fatalf("expected ErrNoModules, got %v", err)
	}
}

func TestRunMaterializesSingleDependency(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bar := f.jar("com.foo:bar:1.0", nil)
	m := f.manager(nil)

	res, err := m.Run(context.Background(), []Module{module(":app", firstLevel(bar))})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Dependencies) != 1 {
		t.Fatalf("got %d dependencies", len(res.Dependencies))
	}

	dir := filepath.Join(f.root, "com", "foo")
	link := filepath.Join(dir, "bar--1.0.jar")
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("expected symlink at %s: %v", link, err)
	}
	if target != bar.File {
		t.Errorf("symlink target = %q, want %q", target, bar.File)
	}

	manifest, err := rule.ReadManifest(filepath.Join(dir, rule.DefaultManifestName))
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Rules) != 2 {
		t.Fatalf("got %d rules, want http_file + remote_prebuilt: %+v", len(manifest.Rules), manifest.Rules)
	}
	file, prebuilt := manifest.Rules[0], manifest.Rules[1]
	if file.Kind != rule.KindHTTPFile || prebuilt.Kind != rule.KindRemotePrebuilt {
		t.Fatalf("rule kinds = %s, %s", file.Kind, prebuilt.Kind)
	}
	want, err := checksum.SHA256File(bar.File)
	if err != nil {
		t.Fatal(err)
	}
	if file.SHA256 != want || prebuilt.SHA256 != want {
		t.Errorf("sha256 = %q / %q, want %q", file.SHA256, prebuilt.SHA256, want)
	}
	if prebuilt.Name != "bar--1.0" || prebuilt.DependencyRef != "com.foo:bar:1.0" {
		t.Errorf("prebuilt = %+v", prebuilt)
	}

	if _, err := os.Stat(m.Options().ChecksumCachePath); err != nil {
		t.Errorf("checksum cache not persisted: %v", err)
	}
}

func TestConsolidateUseLatestPropagatesFirstLevel(t *testing.T) {
	t.Parallel()

	for _, propagate := range []bool{true, false} {
		t.Run(fmt.Sprintf("propagate=%v", propagate), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			old := firstLevel(f.jar("com.foo:bar:1.0", nil))
			latest := f.jar("com.foo:bar:2.0", nil)

			m := f.manager(func(o *Options) {
				o.Policy.UseLatest = true
				o.Policy.PropagateFirstLevel = propagate
			})
			res, err := m.Plan(context.Background(), []Module{module(":x", old), module(":y", latest)})
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}

			deps := res.Lookup(mustID("com.foo:bar"))
			if len(deps) != 1 || deps[0].Version() != "2.0" {
				t.Fatalf("canonical = %v, want only 2.0", deps)
			}
			if deps[0].FirstLevel() != propagate {
				t.Errorf("FirstLevel() = %v, want %v", deps[0].FirstLevel(), propagate)
			}
			if len(res.Conflicts) != 1 || res.Conflicts[0].Chosen != "2.0" {
				t.Errorf("conflicts = %+v", res.Conflicts)
			}
		})
	}
}

func TestConsolidateExemptionKeepsVersions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager(func(o *Options) {
		o.Policy.UseLatest = true
		o.Policy.UseLatestExemptions = []string{"com.foo:*"}
	})
	res, err := m.Plan(context.Background(), []Module{
		module(":x", f.jar("com.foo:bar:1.0", nil)),
		module(":y", f.jar("com.foo:bar:2.0", nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Lookup(mustID("com.foo:bar")); len(got) != 2 {
		t.Fatalf("exempt identity consolidated: %v", got)
	}
	if !slices.Equal(res.MultiVersion, []dependency.Identity{mustID("com.foo:bar")}) {
		t.Errorf("MultiVersion = %v", res.MultiVersion)
	}
}

type fixedResolver struct {
	res   []Resolution
	calls atomic.Int32
	seen  int
}

func (r *fixedResolver) Resolve(_ context.Context, conflicts []Conflict) ([]Resolution, error) {
	r.calls.Add(1)
	r.seen = len(conflicts)
	return r.res, nil
}

func TestConsolidateResolverIsCalledOnceInBulk(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	unobserved := f.jar("com.foo:bar:3.0", nil)
	resolver := &fixedResolver{res: []Resolution{
		{Coordinates: unobserved.Coordinates, ArtifactFile: unobserved.File},
		{Coordinates: dependency.NewCoordinates(mustID("org.baz:qux"), "1.0")},
	}}
	m := f.manager(func(o *Options) {
		o.Policy.UseLatest = true
		o.Resolver = resolver
	})

	res, err := m.Plan(context.Background(), []Module{
		module(":x", firstLevel(f.jar("com.foo:bar:1.0", nil)), f.jar("org.baz:qux:1.0", nil)),
		module(":y", f.jar("com.foo:bar:2.0", nil), f.jar("org.baz:qux:2.0", nil)),
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if resolver.calls.Load() != 1 || resolver.seen != 2 {
		t.Fatalf("resolver called %d times with %d conflicts", resolver.calls.Load(), resolver.seen)
	}

	bar := res.Lookup(mustID("com.foo:bar"))
	if len(bar) != 1 || bar[0].Version() != "3.0" || bar[0].ArtifactFile() != unobserved.File {
		t.Fatalf("bar = %v", bar)
	}
	if !bar[0].FirstLevel() {
		t.Error("unobserved resolution lost the first-level flag")
	}
	if qux := res.Lookup(mustID("org.baz:qux")); len(qux) != 1 || qux[0].Version() != "1.0" {
		t.Fatalf("qux = %v", qux)
	}
}

func TestConsolidateUnansweredConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager(func(o *Options) {
		o.Policy.UseLatest = true
		o.Resolver = &fixedResolver{}
	})
	_, err := m.Plan(context.Background(), []Module{
		module(":x", f.jar("com.foo:bar:1.0", nil)),
		module(":y", f.jar("com.foo:bar:2.0", nil)),
	})
	if !errors.Is(err, ErrUnresolvedConflict) {
		t.Fatalf("expected ErrUnresolvedConflict, got %v", err)
	}
}

func TestValidateVersionlessAggregates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager(func(o *Options) {
		o.Policy.Versionless = true
		o.Policy.VersionlessAllowList = []string{"com.allowed:multi", "com.allowed:single"}
	})
	_, err := m.Plan(context.Background(), []Module{
		module(":x", f.jar("com.foo:a:1.0", nil), f.jar("com.foo:b:1.0", nil), f.jar("com.allowed:multi:1.0", nil), f.jar("com.allowed:single:1.0", nil)),
		module(":y", f.jar("com.foo:a:2.0", nil), f.jar("com.foo:b:2.0", nil), f.jar("com.allowed:multi:2.0", nil)),
	})

	var pe *VersionPolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("expected VersionPolicyError, got %v", err)
	}
	if !errors.Is(err, ErrVersionPolicy) {
		t.Fatal("VersionPolicyError does not wrap ErrVersionPolicy")
	}
	var got []string
	for _, v := range pe.Violations {
		got = append(got, fmt.Sprintf("%s/%v", v.Identity, v.AllowListed))
	}
	want := []string{"com.allowed:single/true", "com.foo:a/false", "com.foo:b/false"}
	if !slices.Equal(got, want) {
		t.Fatalf("violations = %v, want %v", got, want)
	}
}

func TestReconcileAssignsChildren(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	child := f.jar("com.foo:child:1.0", nil)
	excluded := f.jar("org.unwanted:thing:1.0", nil)
	parent := firstLevel(withChildren(f.jar("com.foo:parent:1.0", nil), child, excluded))
	parent.Excludes = []dependency.ExcludeRule{{Group: "org.unwanted"}}

	res, err := f.manager(nil).Plan(context.Background(), []Module{module(":app", parent, child, excluded)})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	p := res.Lookup(mustID("com.foo:parent"))[0]
	if got := p.Children(); !slices.Equal(got, []dependency.Identity{mustID("com.foo:child")}) {
		t.Fatalf("Children() = %v", got)
	}
	if c := res.Lookup(mustID("com.foo:child"))[0]; len(c.Children()) != 0 {
		t.Fatalf("transitive dependency got children: %v", c.Children())
	}
}

func TestReconcileMissingChildIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ghost := f.jar("com.foo:ghost:1.0", nil)
	parent := firstLevel(withChildren(f.jar("com.foo:parent:1.0", nil), ghost))

	_, err := f.manager(nil).Plan(context.Background(), []Module{module(":app", parent)})
	var me *MissingChildError
	if !errors.As(err, &me) || me.Child != ghost.Coordinates {
		t.Fatalf("expected MissingChildError for ghost, got %v", err)
	}
}

func TestReconcileAmbiguousChild(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bar1 := f.jar("com.foo:bar:1.0", nil)
	bar2 := f.jar("com.foo:bar:2.0", nil)
	parent := firstLevel(withChildren(f.jar("com.foo:parent:1.0", nil), bar1))

	_, err := f.manager(nil).Plan(context.Background(), []Module{
		module(":x", parent, bar1),
		module(":y", bar2),
	})
	var ae *AmbiguousChildrenError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AmbiguousChildrenError, got %v", err)
	}
	if ae.Identity != mustID("com.foo:bar") || ae.Parent == nil {
		t.Fatalf("error names %v (parent %v), want com.foo:bar", ae.Identity, ae.Parent)
	}
	if !slices.Equal(ae.Versions, []dependency.Version{"1.0", "2.0"}) {
		t.Errorf("Versions = %v", ae.Versions)
	}
}

func TestReconcileMultiVersionParentWithChildren(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	child := f.jar("com.foo:child:1.0", nil)
	p1 := firstLevel(withChildren(f.jar("com.foo:parent:1.0", nil), child))
	p2 := f.jar("com.foo:parent:2.0", nil)

	_, err := f.manager(nil).Plan(context.Background(), []Module{module(":x", p1, child), module(":y", p2)})
	var ae *AmbiguousChildrenError
	if !errors.As(err, &ae) || ae.Identity != mustID("com.foo:parent") || ae.Parent != nil {
		t.Fatalf("expected AmbiguousChildrenError for parent, got %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	child := f.jar("com.foo:child:1.0", nil)
	modules := []Module{
		module(":app", firstLevel(withChildren(f.jar("com.foo:parent:1.0", nil), child)), child, f.jar("org.other:lib:2.1", nil)),
		module(":lib", firstLevel(f.jar("org.other:lib:2.1", nil))),
	}
	m := f.manager(nil)

	if _, err := m.Run(context.Background(), modules); err != nil {
		t.Fatal(err)
	}
	first := snapshotTree(t, f.root)

	// a stale file must be removed by the second pass
	stale := filepath.Join(f.root, "com", "foo", "stale.jar")
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(context.Background(), modules); err != nil {
		t.Fatal(err)
	}
	assertSameTree(t, first, snapshotTree(t, f.root))
}

// snapshotTree maps every file under root to its contents and every symlink
// to its target.
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, _ := os.Readlink(path)
			out[rel] = "-> " + target
		case !d.IsDir():
			data, _ := os.ReadFile(path)
			out[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func assertSameTree(t *testing.T, want, got map[string]string) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("trees differ:\n%v\nvs\n%v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s differs:\n%s\nvs\n%s", k, v, got[k])
		}
	}
}

func TestFailedChecksumLeavesPreviousDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := firstLevel(f.jar("com.foo:a:1.0", nil))
	b := f.jar("com.foo:b:1.0", nil)
	if _, err := f.manager(nil).Run(context.Background(), []Module{module(":app", a)}); err != nil {
		t.Fatal(err)
	}
	before := snapshotTree(t, f.root)

	errDisk := errors.New("read error")
	hasher := func(path string) (string, error) {
		if filepath.Base(path) == filepath.Base(b.File) {
			return "", errDisk
		}
		return checksum.SHA256File(path)
	}
	m := f.manager(func(o *Options) { o.Hasher = hasher })
	if _, err := m.Run(context.Background(), []Module{module(":app", a, b)}); !errors.Is(err, errDisk) {
		t.Fatalf("expected hasher failure, got %v", err)
	}

	assertSameTree(t, before, snapshotTree(t, f.root))
	if _, err := rule.ReadManifest(filepath.Join(f.root, "com", "foo", rule.DefaultManifestName)); err != nil {
		t.Fatalf("previous manifest lost: %v", err)
	}
}

// failOnEmitter writes manifests except for directories ending in dir.
type failOnEmitter struct {
	rule.ManifestEmitter
	dir string
}

func (e failOnEmitter) Emit(ctx context.Context, dir rule.Directory, rules []rule.Descriptor) error {
	if strings.HasSuffix(dir.Path, e.dir) {
		return errors.New("generator unavailable")
	}
	return e.ManifestEmitter.Emit(ctx, dir, rules)
}

func TestFailedEmitLeavesEveryDirectoryUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := firstLevel(f.jar("com.foo:a:1.0", nil))
	c := firstLevel(f.jar("org.bar:c:1.0", nil))
	if _, err := f.manager(nil).Run(context.Background(), []Module{module(":app", a, c)}); err != nil {
		t.Fatal(err)
	}
	before := snapshotTree(t, f.root)

	// com/foo is staged before org/bar fails, so it must not be published.
	m := f.manager(func(o *Options) { o.Emitter = failOnEmitter{dir: filepath.Join("org", "bar")} })
	modules := []Module{module(":app", a, f.jar("com.foo:b:1.0", nil), c)}
	if _, err := m.Run(context.Background(), modules); err == nil {
		t.Fatal("expected emitter failure")
	}

	assertSameTree(t, before, snapshotTree(t, f.root))
	entries, err := os.ReadDir(f.root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".staging-") {
			t.Errorf("staging directory %s left behind", e.Name())
		}
	}
}

func TestRunRemovesDirectoriesOfDroppedGroups(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := firstLevel(f.jar("com.foo:a:1.0", nil))
	gone := firstLevel(f.jar("org.gone:b:1.0", nil))
	m := f.manager(nil)

	if _, err := m.Run(context.Background(), []Module{module(":app", a, gone)}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "org", "gone", "b--1.0.jar")); err != nil {
		t.Fatalf("first pass did not link org.gone: %v", err)
	}

	res, err := m.Run(context.Background(), []Module{module(":app", a)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "org")); !os.IsNotExist(err) {
		t.Errorf("directory of dropped group survived: %v", err)
	}
	if want := []string{filepath.Join(f.root, "com", "foo")}; !slices.Equal(res.Directories, want) {
		t.Errorf("Directories = %v, want %v", res.Directories, want)
	}
}

func TestRunNestedGroupDirectories(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	outer := firstLevel(f.jar("com.foo:a:1.0", nil))
	inner := firstLevel(f.jar("com.foo.sub:x:1.0", nil))
	m := f.manager(nil)
	run := func(artifacts ...depcache.Artifact) {
		t.Helper()
		if _, err := m.Run(context.Background(), []Module{module(":app", artifacts...)}); err != nil {
			t.Fatal(err)
		}
	}
	exists := func(parts ...string) bool {
		_, err := os.Lstat(filepath.Join(append([]string{f.root}, parts...)...))
		return err == nil
	}

	run(outer, inner)
	if !exists("com", "foo", "a--1.0.jar") || !exists("com", "foo", "sub", "x--1.0.jar") {
		t.Fatalf("nested groups not materialized: %v", snapshotTree(t, f.root))
	}

	// Dropping the outer group keeps the inner one.
	run(inner)
	if exists("com", "foo", "a--1.0.jar") || exists("com", "foo", rule.DefaultManifestName) {
		t.Errorf("outer group files survived: %v", snapshotTree(t, f.root))
	}
	if !exists("com", "foo", "sub", "x--1.0.jar") {
		t.Errorf("inner group removed with the outer one")
	}

	// Replacing the outer group drops the inner one.
	run(outer)
	if exists("com", "foo", "sub") {
		t.Errorf("inner group survived: %v", snapshotTree(t, f.root))
	}
}

func TestChecksumsMemoizedAcrossPasses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var calls atomic.Int32
	hasher := func(path string) (string, error) {
		calls.Add(1)
		return checksum.SHA256File(path)
	}
	modules := []Module{module(":app", f.jar("com.foo:a:1.0", nil), f.jar("com.foo:b:1.0", nil))}

	for range 2 {
		m := f.manager(func(o *Options) { o.Hasher = hasher })
		if _, err := m.Run(context.Background(), modules); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("hasher called %d times over two passes, want 2", calls.Load())
	}
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, rule.Directory, []rule.Descriptor) error {
	return errors.New("generator unavailable")
}

func TestChecksumCachePersistedOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager(func(o *Options) { o.Emitter = failingEmitter{} })
	_, err := m.Run(context.Background(), []Module{module(":app", f.jar("com.foo:a:1.0", nil))})
	if err == nil {
		t.Fatal("expected emitter failure")
	}

	sums, err := checksum.Load(m.Options().ChecksumCachePath)
	if err != nil {
		t.Fatal(err)
	}
	if sums.Len() != 1 {
		t.Fatalf("checksum cache has %d entries after failed pass, want 1", sums.Len())
	}
}

func TestRunLocalAndSkipPrebuilt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	snapshot := f.jar("com.foo:snap:1.0-SNAPSHOT", nil)
	skipped := f.jar("com.foo:provided:1.0", nil)
	skipped.SkipPrebuilt = true
	emitter := rule.NewMemoryEmitter()

	m := f.manager(func(o *Options) { o.Emitter = emitter })
	if _, err := m.Run(context.Background(), []Module{module(":app", snapshot, skipped)}); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(f.root, "com", "foo")
	rules := emitter.Rules(dir)
	var kinds []string
	for _, r := range rules {
		kinds = append(kinds, string(r.Kind)+":"+r.Name)
	}
	want := []string{"http_file:provided--1.0_file", "local_prebuilt:snap--1.0-SNAPSHOT"}
	if !slices.Equal(kinds, want) {
		t.Fatalf("rules = %v, want %v", kinds, want)
	}
	if rules[1].SHA256 != "" {
		t.Error("local dependency carries a checksum")
	}
}

func TestRunEmitsAnnotationProcessorsInAnchorDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	proc := firstLevel(f.jar("com.squareup:moshi-kotlin-codegen:1.15", map[string]string{
		"META-INF/services/javax.annotation.processing.Processor": "com.x.Proc1\n# comment line\ncom.x.Proc2\n",
	}))
	mod := Module{Path: ":app", Configurations: []depcache.Configuration{
		{Name: "annotationProcessor", Artifacts: []depcache.Artifact{proc}},
	}}
	emitter := rule.NewMemoryEmitter()
	m := f.manager(func(o *Options) { o.Emitter = emitter })

	res, err := m.Run(context.Background(), []Module{mod})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Processors) != 1 {
		t.Fatalf("got %d processor groups", len(res.Processors))
	}

	d, ok := emitter.Find(rule.KindAnnotationProcessor, "com.squareup-moshi-kotlin-codegen-1.15")
	if !ok {
		t.Fatalf("annotation processor rule not emitted; dirs %v", emitter.Dirs())
	}
	if !slices.Equal(d.Processors, []string{"com.x.Proc1", "com.x.Proc2"}) {
		t.Errorf("processors = %v", d.Processors)
	}
	if !slices.Equal(d.Deps, []string{"//com/squareup:moshi-kotlin-codegen--1.15"}) {
		t.Errorf("deps = %v", d.Deps)
	}
	rules := emitter.Rules(filepath.Join(f.root, "com", "squareup"))
	if len(rules) == 0 || rules[len(rules)-1].Kind != rule.KindAnnotationProcessor {
		t.Errorf("processor rule not in anchor directory: %v", rules)
	}
}

func TestRunOrdersRulesChildrenFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	leaf := f.jar("com.foo:zz-leaf:1.0", nil)
	top := firstLevel(withChildren(f.jar("com.foo:aa-top:1.0", nil), leaf))
	emitter := rule.NewMemoryEmitter()

	m := f.manager(func(o *Options) { o.Emitter = emitter })
	if _, err := m.Run(context.Background(), []Module{module(":app", top, leaf)}); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range emitter.Rules(filepath.Join(f.root, "com", "foo")) {
		if r.Kind == rule.KindRemotePrebuilt {
			names = append(names, r.Name)
		}
	}
	if !slices.Equal(names, []string{"zz-leaf--1.0", "aa-top--1.0"}) {
		t.Fatalf("prebuilt order = %v", names)
	}
}

func TestCollectIsDeterministicAcrossWorkerCounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var modules []Module
	for i := range 12 {
		modules = append(modules, module(fmt.Sprintf(":m%02d", i),
			firstLevel(f.jar(fmt.Sprintf("com.shared:lib:%d.0", i%3+1), nil)),
			f.jar(fmt.Sprintf("com.m%02d:own:1.0", i), nil)))
	}

	var outputs [][]string
	for _, workers := range []int{1, 4, 0} {
		m := f.manager(func(o *Options) {
			o.Workers = workers
			o.Policy.UseLatest = true
		})
		res, err := m.Plan(context.Background(), modules)
		if err != nil {
			t.Fatal(err)
		}
		var got []string
		for _, d := range res.Dependencies {
			got = append(got, fmt.Sprintf("%s/%v", d.Coordinates(), d.FirstLevel()))
		}
		outputs = append(outputs, got)
	}
	for i := 1; i < len(outputs); i++ {
		if !slices.Equal(outputs[0], outputs[i]) {
			t.Fatalf("output differs by worker count:\n%v\n%v", outputs[0], outputs[i])
		}
	}
	if !slices.Contains(outputs[0], "com.shared:lib:3.0/true") {
		t.Fatalf("shared lib not consolidated to 3.0: %v", outputs[0])
	}
}

func TestCollectReportsModule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bad := Module{Path: ":broken", Configurations: []depcache.Configuration{{
		Name: "runtimeClasspath",
		Artifacts: []depcache.Artifact{{
			Coordinates: dependency.Coordinates{Identity: dependency.NewIdentity("", "x"), Version: "1"},
			File:        "/x.jar",
		}},
	}}}
	_, err := f.manager(nil).Plan(context.Background(), []Module{bad})
	var me *ModuleError
	if !errors.As(err, &me) || me.Module != ":broken" {
		t.Fatalf("expected ModuleError for :broken, got %v", err)
	}
}

func TestPlanDoesNotTouchDisk(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager(nil)
	res, err := m.Plan(context.Background(), []Module{module(":app", f.jar("com.foo:a:1.0", nil))})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Directories) != 0 {
		t.Errorf("Plan materialized %v", res.Directories)
	}
	if _, err := os.Stat(f.root); !os.IsNotExist(err) {
		t.Errorf("Plan created the cache root: %v", err)
	}
}

func TestModuleScopesCollected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	impl := f.jar("com.foo:impl:1.0", nil)
	provided := f.jar("com.foo:provided:1.0", nil)
	mod := Module{Path: ":app", Configurations: []depcache.Configuration{
		{Name: "runtimeClasspath", Artifacts: []depcache.Artifact{impl}},
		{Name: "compileClasspath", Artifacts: []depcache.Artifact{impl, provided}},
	}}

	res, err := f.manager(nil).Plan(context.Background(), []Module{mod})
	if err != nil {
		t.Fatal(err)
	}
	s := res.Modules[0].Scopes[scope.PurposeMain]
	if got := s.Provided(); len(got) != 1 || got[0].Name != "provided" {
		t.Fatalf("Provided() = %v", got)
	}
	if got := s.Implementation(); len(got) != 1 || got[0].Name != "impl" {
		t.Fatalf("Implementation() = %v", got)
	}
}
