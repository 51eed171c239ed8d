// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("permission denied")
	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{"operation only", &ActionableError{Operation: "emit rules"}, "failed to emit rules"},
		{"with resource", &ActionableError{Operation: "emit rules", Resource: "/c/com/foo"}, "failed to emit rules: /c/com/foo"},
		{"with cause", WrapWithContext(cause, "link dependency", "/c/com/foo/bar--1.0.jar"), "failed to link dependency: /c/com/foo/bar--1.0.jar: permission denied"},
		{"operation and cause", WrapWithOperation(cause, "persist checksums"), "failed to persist checksums: permission denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	t.Parallel()

	if WrapWithOperation(nil, "x") != nil || WrapWithContext(nil, "x", "y") != nil {
		t.Fatal("wrapping a nil error must return nil")
	}
}

func TestErrorContextBuild(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("disk full")
	err := NewErrorContext().
		WithOperation("create cache directory").
		WithResource("/c/org/x").
		WithSuggestion("Free some disk space").
		WithSuggestions("Move the cache root", "Prune old caches").
		Wrap(cause).
		BuildError()

	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("BuildError() = %T", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if len(ae.Suggestions) != 3 || !ae.HasSuggestions() {
		t.Errorf("Suggestions = %v", ae.Suggestions)
	}

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without an operation must return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without an operation must return a nil interface")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	root := errors.New("no such file")
	err := &ActionableError{
		Operation:   "load project manifest",
		Resource:    "depforge.project.cue",
		Suggestions: []string{"Run the export task"},
		Cause:       fmt.Errorf("open: %w", root),
	}

	plain := err.Format(false)
	if !strings.Contains(plain, "\n  • Run the export task") {
		t.Errorf("suggestion missing:\n%s", plain)
	}
	if strings.Contains(plain, "Error chain") {
		t.Errorf("non-verbose output has the chain:\n%s", plain)
	}

	verbose := err.Format(true)
	if !strings.Contains(verbose, "1. open: no such file") || !strings.Contains(verbose, "2. no such file") {
		t.Errorf("verbose chain incomplete:\n%s", verbose)
	}
}
