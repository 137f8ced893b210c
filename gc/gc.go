// Package gc implements the garbage collector of §4.7: a sweep of the
// summaries/ directory that prunes sub-summary, delta, and detached
// index-signature files no longer referenced by the current (or, for
// signatures, immediately previous) summary index.
package gc

import (
	"context"
	"fmt"
	"strings"

	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/trace"
)

// Directory lists and removes files directly inside the repository's
// summaries/ directory. The root orchestrator supplies a filesystem-backed
// implementation (fsutil); tests use an in-memory fake.
type Directory interface {
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, name string) error
}

// Input is the set of digests the current run's index still references,
// used to decide what in summaries/ survives the sweep (§4.7).
type Input struct {
	// Referenced holds every digest a .gz sub-summary file may be named
	// after and still be kept: both this run's newly generated
	// sub-summaries and every history entry recorded in the new index.
	Referenced map[hash.Digest]struct{}
	// GeneratedThisRun holds only the digests generated this run (a
	// subset of Referenced), the narrower set .delta target digests are
	// checked against.
	GeneratedThisRun map[hash.Digest]struct{}
	// CurrentIndexDigest and PreviousIndexDigest (if HasPrevious) are the
	// two digests a {D}.idx.sig file may be named after and survive.
	CurrentIndexDigest  hash.Digest
	PreviousIndexDigest hash.Digest
	HasPrevious         bool
}

// Result reports what the sweep did, for logging and the testable
// properties of §8 (GC soundness).
type Result struct {
	Removed []string
	Warned  []string // unrecognized file names, kept
}

// Run enumerates dir and removes every file whose recognized pattern no
// longer has a surviving referent, per §4.7's three rules. Files with
// unrecognized names are kept and reported in Result.Warned. Cancellation
// is checked between directory entries (§5).
func Run(ctx context.Context, dir Directory, in Input) (*Result, error) {
	names, err := dir.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("gc: listing summaries directory: %w", err)
	}

	res := &Result{}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		keep, recognized := decide(name, in)
		if !recognized {
			res.Warned = append(res.Warned, name)
			trace.GC.Printf("unrecognized file in summaries/, keeping: %s", name)
			continue
		}
		if keep {
			continue
		}

		if err := dir.Remove(ctx, name); err != nil {
			return nil, fmt.Errorf("gc: removing %s: %w", name, err)
		}
		res.Removed = append(res.Removed, name)
		trace.GC.Printf("removed %s", name)
	}

	return res, nil
}

// decide classifies name against the three recognized patterns and
// reports whether it should be kept, and whether it was recognized at
// all (an unrecognized name is always kept).
func decide(name string, in Input) (keep bool, recognized bool) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		stem := strings.TrimSuffix(name, ".gz")
		d, err := hash.FromHex(stem)
		if err != nil {
			return false, false
		}
		_, referenced := in.Referenced[d]
		return referenced, true

	case strings.HasSuffix(name, ".delta"):
		stem := strings.TrimSuffix(name, ".delta")
		i := strings.LastIndex(stem, "-")
		if i < 0 {
			return false, false
		}
		fromHex, toHex := stem[:i], stem[i+1:]
		if _, err := hash.FromHex(fromHex); err != nil {
			return false, false
		}
		to, err := hash.FromHex(toHex)
		if err != nil {
			return false, false
		}
		_, generated := in.GeneratedThisRun[to]
		return generated, true

	case strings.HasSuffix(name, ".idx.sig"):
		stem := strings.TrimSuffix(name, ".idx.sig")
		d, err := hash.FromHex(stem)
		if err != nil {
			return false, false
		}
		if d == in.CurrentIndexDigest {
			return true, true
		}
		if in.HasPrevious && d == in.PreviousIndexDigest {
			return true, true
		}
		return false, true

	default:
		return false, false
	}
}
