// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/depforge/depforge/internal/issue"
	"github.com/depforge/depforge/internal/project"
	"github.com/depforge/depforge/pkg/depmanager"
	"github.com/depforge/depforge/pkg/dependency"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	slf4j := dependency.Identity{Group: "org.slf4j", Name: "slf4j-api"}
	tests := []struct {
		name     string
		err      error
		wantId   issue.Id
		wantCode int
	}{
		{"manifest not found", fmt.Errorf("%w in /tmp", project.ErrManifestNotFound), issue.ManifestNotFoundId, ExitUsage},
		{"manifest invalid", &project.ManifestError{Path: "p", Err: project.ErrDuplicateModule}, issue.ManifestParseErrorId, ExitUsage},
		{"policy", &depmanager.VersionPolicyError{Violations: []depmanager.PolicyViolation{{Identity: slf4j}}}, issue.VersionPolicyViolatedId, ExitPolicy},
		{"ambiguous", &depmanager.AmbiguousChildrenError{Identity: slf4j}, issue.AmbiguousVersionsId, ExitGraph},
		{"missing child", fmt.Errorf("reconcile: %w", &depmanager.MissingChildError{}), issue.MissingChildId, ExitGraph},
		{"exit code only", &ExitError{Code: 7}, 0, 7},
		{"cache write", issue.WrapWithContext(errors.New("disk full"), "create cache directory", "/c"), issue.CacheWriteFailedId, ExitFailure},
		{"unknown", errors.New("boom"), 0, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, code := classify(tt.err)
			if id != tt.wantId || code != tt.wantCode {
				t.Errorf("classify() = (%v, %d), want (%v, %d)", id, code, tt.wantId, tt.wantCode)
			}
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	t.Parallel()

	if got := (&ExitError{Code: 3}).Error(); got != "exit status 3" {
		t.Errorf("Error() = %q", got)
	}
	inner := errors.New("inner")
	e := &ExitError{Code: 1, Err: inner}
	if e.Error() != "inner" || !errors.Is(e, inner) {
		t.Errorf("ExitError does not wrap %v", inner)
	}
}
