// Package fsutil implements the on-disk primitives of §4.2: an atomic
// tempfile-then-rename writer, and digest-derived path builders for the
// repository's summaries/ directory.
package fsutil

import (
	"fmt"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/flatpak/repo-summary/hash"
)

// SummariesDir is the single directory (relative to the repository root)
// that holds gzipped sub-summaries, deltas, and detached index signatures
// (§4.2).
const SummariesDir = "summaries"

// SubSummaryName returns the summaries/ file name of the gzipped modern
// sub-summary whose uncompressed bytes hash to digest.
func SubSummaryName(digest hash.Digest) string {
	return digest.Hex() + ".gz"
}

// DeltaName returns the summaries/ file name of the binary diff turning
// the sub-summary from into the sub-summary to.
func DeltaName(from, to hash.Digest) string {
	return fmt.Sprintf("%s-%s.delta", from.Hex(), to.Hex())
}

// IndexSigName returns the summaries/ file name of the detached signature
// for the summary index whose encoded bytes hash to digest.
func IndexSigName(digest hash.Digest) string {
	return digest.Hex() + ".idx.sig"
}

// SummariesPath joins name under SummariesDir, rejecting any path
// traversal in name.
func SummariesPath(name string) (string, error) {
	return securejoin.SecureJoin(SummariesDir, name)
}
