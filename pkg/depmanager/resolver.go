// SPDX-License-Identifier: MPL-2.0

package depmanager

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"unicode"

	semver "github.com/Masterminds/semver/v3"

	"github.com/depforge/depforge/pkg/dependency"
)

type (
	// Candidate is one observed version of a conflicting identity.
	Candidate struct {
		Version      dependency.Version
		ArtifactFile string
		SourceFile   string
		FirstLevel   bool
	}

	// Conflict is an identity observed with several versions under the
	// use-latest policy.
	Conflict struct {
		Identity   dependency.Identity
		Candidates []Candidate
	}

	// Resolution is a resolver's answer for one conflict. ArtifactFile must
	// be set when Version is not among the conflict's candidates.
	Resolution struct {
		Coordinates  dependency.Coordinates
		ArtifactFile string
		SourceFile   string
	}

	// VersionResolver picks one version per conflict. All conflicts of a
	// pass are handed over in a single call.
	VersionResolver interface {
		Resolve(ctx context.Context, conflicts []Conflict) ([]Resolution, error)
	}

	// LatestResolver picks the highest observed version of each conflict.
	LatestResolver struct{}

	// ResolvedConflict records the outcome of one conflict for reporting.
	ResolvedConflict struct {
		Identity dependency.Identity
		Versions []dependency.Version
		Chosen   dependency.Version
	}
)

// Resolve implements VersionResolver.
func (LatestResolver) Resolve(ctx context.Context, conflicts []Conflict) ([]Resolution, error) {
	out := make([]Resolution, 0, len(conflicts))
	for _, c := range conflicts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(c.Candidates) == 0 {
			continue
		}
		best := slices.MaxFunc(c.Candidates, func(a, b Candidate) int {
			return CompareVersions(a.Version, b.Version)
		})
		out = append(out, Resolution{
			Coordinates:  dependency.NewCoordinates(c.Identity, best.Version),
			ArtifactFile: best.ArtifactFile,
			SourceFile:   best.SourceFile,
		})
	}
	return out, nil
}

// CompareVersions orders two versions. Versions that parse as semantic
// versions compare by semver precedence; otherwise both are split into
// numeric and alphabetic segments and compared segment by segment, with
// numeric segments ordered numerically.
func CompareVersions(a, b dependency.Version) int {
	va, errA := semver.NewVersion(string(a))
	vb, errB := semver.NewVersion(string(b))
	if errA == nil && errB == nil {
		if c := va.Compare(vb); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	}
	return compareLoose(string(a), string(b))
}

func compareLoose(a, b string) int {
	sa, sb := segments(a), segments(b)
	for i := 0; i < len(sa) && i < len(sb); i++ {
		na, errA := strconv.Atoi(sa[i])
		nb, errB := strconv.Atoi(sb[i])
		var c int
		switch {
		case errA == nil && errB == nil:
			c = cmp.Compare(na, nb)
		case errA == nil:
			c = 1
		case errB == nil:
			c = -1
		default:
			c = strings.Compare(sa[i], sb[i])
		}
		if c != 0 {
			return c
		}
	}
	return cmp.Compare(len(sa), len(sb))
}

func segments(v string) []string {
	var (
		out []string
		cur strings.Builder
		num bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range v {
		switch {
		case unicode.IsDigit(r):
			if !num {
				flush()
			}
			num = true
			cur.WriteRune(r)
		case unicode.IsLetter(r):
			if num {
				flush()
			}
			num = false
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}
