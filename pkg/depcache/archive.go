// SPDX-License-Identifier: MPL-2.0

package depcache

import (
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/depforge/depforge/pkg/dependency"
)

const (
	// ProcessorServiceEntry lists annotation processor classes inside a jar.
	ProcessorServiceEntry = "META-INF/services/javax.annotation.processing.Processor"
	// ExtensionServiceEntry marks jars that extend a code-generating processor.
	ExtensionServiceEntry = "META-INF/services/com.google.auto.value.extension.AutoValueExtension"

	aarClassesEntry = "classes.jar"
	aarLintEntry    = "lint.jar"
	lintDirName     = ".lint"

	queryProcessors = "processors"
	queryExtension  = "extension"
	queryLint       = "lint"
	querySources    = "sources"
)

// ErrArchive is the sentinel error wrapped by ArchiveError.
var ErrArchive = errors.New("unreadable archive")

// ArchiveError is returned when an artifact archive cannot be read.
type ArchiveError struct {
	Path  string
	Entry string
	Err   error
}

// Error implements the error interface.
func (e *ArchiveError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("failed to read %s in archive %s: %v", e.Entry, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to read archive %s: %v", e.Path, e.Err)
}

// Unwrap returns both ErrArchive and the underlying cause.
func (e *ArchiveError) Unwrap() []error { return []error{ErrArchive, e.Err} }

// AnnotationProcessors returns the processor class names declared by the
// artifact at file. Comment lines, trailing comments, and blank lines are
// stripped. An artifact without the service entry yields no processors.
func (c *Cache) AnnotationProcessors(file string) ([]string, error) {
	v, err := c.memo(file, queryProcessors, func() (metaValue, error) {
		data, found, err := readServiceEntry(file, ProcessorServiceEntry)
		if err != nil || !found {
			return metaValue{}, err
		}
		return metaValue{lines: parseServiceFile(data), found: true}, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.lines...), nil
}

// HasExtensionMarker reports whether the artifact at file carries the
// code-generation extension service entry.
func (c *Cache) HasExtensionMarker(file string) (bool, error) {
	v, err := c.memo(file, queryExtension, func() (metaValue, error) {
		_, found, err := readServiceEntry(file, ExtensionServiceEntry)
		return metaValue{found: found}, err
	})
	if err != nil {
		return false, err
	}
	return v.found, nil
}

// LintArtifact returns the cached location of the lint side-artifact bundled
// in an AAR dependency, extracting it on first use. It returns "" for
// dependencies that do not ship one.
func (c *Cache) LintArtifact(dep *dependency.Dependency) (string, error) {
	if dep.Packaging() != dependency.PackagingAAR {
		return "", nil
	}
	file := dep.ArtifactFile()
	v, err := c.memo(file, queryLint, func() (metaValue, error) {
		data, found, err := readEntry(file, aarLintEntry)
		if err != nil || !found {
			return metaValue{}, err
		}
		target := filepath.Join(c.root, lintDirName, filepath.FromSlash(dep.Identity().GroupPath()),
			dep.Coordinates().CacheName()+"-lint.jar")
		if err := writeFileAtomic(target, data); err != nil {
			return metaValue{}, fmt.Errorf("failed to write lint artifact: %w", err)
		}
		return metaValue{path: target, found: true}, nil
	})
	if err != nil {
		return "", err
	}
	return v.path, nil
}

// Sources returns the location of the dependency's sources archive: the
// declared source file if it exists, else a "-sources.jar" sibling next to
// the artifact or in a sibling directory, as laid out by Gradle's download
// cache. It returns "" when none is found.
func (c *Cache) Sources(dep *dependency.Dependency) string {
	file := dep.ArtifactFile()
	v, _ := c.memo(file, querySources, func() (metaValue, error) {
		if declared := dep.SourceFile(); declared != "" && fileExists(declared) {
			return metaValue{path: declared, found: true}, nil
		}
		if dep.Kind() == dependency.KindLocal && dep.SourceFile() == "" {
			return metaValue{}, nil
		}
		base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)) + "-sources.jar"
		dir := filepath.Dir(file)
		if candidate := filepath.Join(dir, base); fileExists(candidate) {
			return metaValue{path: candidate, found: true}, nil
		}
		parent := filepath.Dir(dir)
		siblings, err := os.ReadDir(parent)
		if err != nil {
			c.logger.Debug("sources lookup skipped sibling directories", "dir", parent, "error", err)
			return metaValue{}, nil
		}
		for _, sib := range siblings {
			if !sib.IsDir() {
				continue
			}
			if candidate := filepath.Join(parent, sib.Name(), base); fileExists(candidate) {
				return metaValue{path: candidate, found: true}, nil
			}
		}
		return metaValue{}, nil
	})
	return v.path
}

// PruneLint removes every file under the lint directory that is not in keep,
// including interrupted writes, and then the directories left empty. It
// returns the removed files, sorted.
func (c *Cache) PruneLint(keep []string) ([]string, error) {
	lintRoot := filepath.Join(c.root, lintDirName)
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[filepath.Clean(k)] = true
	}

	var (
		removed []string
		dirs    []string
	)
	err := filepath.WalkDir(lintRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == lintRoot {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if path != lintRoot {
				dirs = append(dirs, path)
			}
			return nil
		}
		if kept[path] {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed = append(removed, path)
		return nil
	})
	if err != nil {
		return removed, err
	}
	for _, dir := range slices.Backward(dirs) {
		_ = os.Remove(dir) // fails while the directory still holds kept files
	}
	for _, path := range removed {
		c.logger.Debug("removed stale lint artifact", "path", path)
	}
	return removed, nil
}

func (c *Cache) memo(file, query string, load func() (metaValue, error)) (metaValue, error) {
	key := metaKey{file: file, query: query}
	if v, ok := c.meta.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return metaValue{}, err
	}
	c.meta.Add(key, v)
	return v, nil
}

// readServiceEntry reads entry from a jar, or from the classes.jar nested in
// an aar.
func readServiceEntry(file, entry string) ([]byte, bool, error) {
	packaging, _ := dependency.PackagingFromFile(file)
	if packaging != dependency.PackagingAAR {
		return readEntry(file, entry)
	}

	classes, found, err := readEntry(file, aarClassesEntry)
	if err != nil || !found {
		return nil, false, err
	}
	zr, err := zip.NewReader(bytes.NewReader(classes), int64(len(classes)))
	if err != nil {
		return nil, false, &ArchiveError{Path: file, Entry: aarClassesEntry, Err: err}
	}
	return findEntry(zr, file, entry)
}

func readEntry(file, entry string) ([]byte, bool, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, false, &ArchiveError{Path: file, Err: err}
	}
	defer zr.Close()
	return findEntry(&zr.Reader, file, entry)
}

func findEntry(zr *zip.Reader, file, entry string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name != entry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false, &ArchiveError{Path: file, Entry: entry, Err: err}
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, false, &ArchiveError{Path: file, Entry: entry, Err: err}
		}
		return data, true, nil
	}
	return nil, false, nil
}

func parseServiceFile(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
