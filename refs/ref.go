// Package refs parses and classifies the ref strings the generator,
// cache, and GC filter on (§3 of the specification).
package refs

import (
	"sort"
	"strings"
)

// Kind classifies the shape of a Ref.
type Kind int

const (
	// KindOther is any ref that doesn't match the three known shapes (for
	// example ostree-metadata, which carries no arch segment).
	KindOther Kind = iota
	KindApp
	KindRuntime
	KindAppstream
)

// Ref is a parsed, byte-wise-comparable ref string.
type Ref struct {
	raw  string
	kind Kind

	// arch is the ARCH segment for app/runtime refs, or the arch portion of
	// an appstream ref's SUBSET-ARCH segment. Empty for refs with no arch
	// (e.g. ostree-metadata).
	arch string

	// subset is the SUBSET prefix of an appstream ref's SUBSET-ARCH segment,
	// empty for the default subset or for non-appstream refs.
	subset string
}

// Parse classifies raw ref string s without validating that the ID/BRANCH
// segments are well-formed beyond having the right slash-delimited shape.
func Parse(s string) Ref {
	parts := strings.Split(s, "/")

	switch {
	case len(parts) == 4 && parts[0] == "app":
		return Ref{raw: s, kind: KindApp, arch: parts[2]}
	case len(parts) == 4 && parts[0] == "runtime":
		return Ref{raw: s, kind: KindRuntime, arch: parts[2]}
	case len(parts) == 2 && (parts[0] == "appstream" || parts[0] == "appstream2"):
		subset, arch := splitSubsetArch(parts[1])
		return Ref{raw: s, kind: KindAppstream, arch: arch, subset: subset}
	default:
		return Ref{raw: s, kind: KindOther}
	}
}

// splitSubsetArch splits an appstream ref's second segment "SUBSET-ARCH"
// into subset and arch. A segment with no hyphen has no subset.
func splitSubsetArch(seg string) (subset, arch string) {
	return SplitSubSummaryName(seg)
}

// SplitSubSummaryName splits a sub-summary name ("ARCH" or "SUBSET-ARCH",
// §3) into its subset and arch parts. A name with no hyphen is the default
// subset's own arch name.
func SplitSubSummaryName(name string) (subset, arch string) {
	if i := strings.LastIndex(name, "-"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// SubSummaryName builds the "ARCH" or "SUBSET-ARCH" name for a sub-summary
// generated for the given subset and arch.
func SubSummaryName(subset, arch string) string {
	if subset == "" {
		return arch
	}
	return subset + "-" + arch
}

// String returns the raw ref text.
func (r Ref) String() string { return r.raw }

// Kind returns the ref's shape classification.
func (r Ref) Kind() Kind { return r.kind }

// Arch returns the ref's architecture segment, or "" if the ref has none.
func (r Ref) Arch() string { return r.arch }

// Subset returns the encoded subset of an appstream ref, or "" for the
// default subset or non-appstream refs.
func (r Ref) Subset() string { return r.subset }

// HasCacheData reports whether this ref shape carries CommitData in its
// per-ref metadata map in the modern summary shape (app/runtime/appstream
// variant refs all qualify per §4.4 step 5).
func (r Ref) HasCacheData() bool {
	return r.kind == KindApp || r.kind == KindRuntime || r.kind == KindAppstream
}

// IsLegacyAppstream reports whether this is the "appstream/ARCH" shape
// (as opposed to "appstream2/..."), which is dropped entirely when
// filtering by a non-default subset (§4.4 step 3).
func (r Ref) IsLegacyAppstream() bool {
	return r.kind == KindAppstream && strings.HasPrefix(r.raw, "appstream/")
}

// Less implements the byte-wise ascending comparison used to sort refs
// everywhere in the spec (ref_map keys, generator iteration order).
func Less(a, b string) bool { return a < b }

// SortStrings sorts ref strings byte-wise ascending in place.
func SortStrings(refs []string) {
	sort.Slice(refs, func(i, j int) bool { return Less(refs[i], refs[j]) })
}
