// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/depforge/depforge/internal/config"
	"github.com/depforge/depforge/internal/issue"
	"github.com/depforge/depforge/internal/project"
	"github.com/depforge/depforge/pkg/checksum"
	"github.com/depforge/depforge/pkg/depcache"
	"github.com/depforge/depforge/pkg/depmanager"
	"github.com/depforge/depforge/pkg/scope"
)

// Process exit codes.
const (
	ExitOK = iota
	ExitFailure
	ExitUsage
	ExitPolicy
	ExitGraph
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// classify maps an error to its catalogued issue and exit code.
func classify(err error) (issue.Id, int) {
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr) && exitErr.Err == nil:
		return 0, exitErr.Code
	case errors.Is(err, project.ErrManifestNotFound):
		return issue.ManifestNotFoundId, ExitUsage
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId, ExitUsage
	case errors.Is(err, depmanager.ErrVersionPolicy):
		return issue.VersionPolicyViolatedId, ExitPolicy
	case errors.Is(err, depmanager.ErrAmbiguousChildren), errors.Is(err, depmanager.ErrUnresolvedConflict):
		return issue.AmbiguousVersionsId, ExitGraph
	case errors.Is(err, depmanager.ErrMissingChild):
		return issue.MissingChildId, ExitGraph
	case errors.Is(err, scope.ErrInvalidProcessorGroup):
		return issue.InvalidProcessorGroupId, ExitGraph
	case errors.Is(err, depcache.ErrArchive):
		return issue.UnreadableArchiveId, ExitFailure
	case errors.Is(err, checksum.ErrUnsupportedFormat):
		return issue.ChecksumCacheCorruptId, ExitFailure
	}

	var me *project.ManifestError
	if errors.As(err, &me) {
		return issue.ManifestParseErrorId, ExitUsage
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		switch ae.Operation {
		case "load configuration", "validate configuration":
			return issue.ConfigLoadFailedId, ExitUsage
		case "load project manifest":
			return issue.ManifestParseErrorId, ExitUsage
		default:
			return issue.CacheWriteFailedId, ExitFailure
		}
	}
	if exitErr != nil {
		return 0, exitErr.Code
	}
	return 0, ExitFailure
}
