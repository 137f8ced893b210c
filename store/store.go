// Package store declares the narrow interfaces the core summary/cache/gc
// code needs from the object database, installation, and static-delta
// machinery that §1 of the specification places out of scope as external
// collaborators. Production code wires a real OSTree-backed implementation
// in; tests use fakes.
package store

import (
	"context"

	"github.com/flatpak/repo-summary/hash"
)

// Commit is the subset of an OSTree commit object the cache needs. Parsing
// the underlying GVariant commit metadata is itself an out-of-scope object
// database concern (§1); this struct is the typed boundary the core
// consumes, already decoded by whatever store.CommitReader implementation
// wraps the real repository.
type Commit struct {
	// RootTree is the digest of the commit's root tree.
	RootTree hash.Digest
	// Timestamp is the commit's authoring time, seconds since epoch.
	Timestamp uint64
	// Size is the on-disk encoded size of the commit object itself.
	Size uint64
	// Metadata holds the typed commit metadata keys the slow cache path
	// consumes.
	Metadata CommitMetadata
}

// CommitMetadata is the typed view of a commit's metadata keys relevant to
// cache population (§4.3 slow path): xa.metadata, xa.installed-size,
// xa.download-size, xa.subsets, end-of-life markers, token type, and the
// extra-data source array.
type CommitMetadata struct {
	AppMetadata      string
	HasAppMetadata   bool
	InstalledSize    uint64
	HasInstalledSize bool
	DownloadSize     uint64
	HasDownloadSize  bool
	Subsets          []string
	EOL              string
	EOLRebase        string
	TokenType        *int32
	ExtraData        []ExtraDataSource
}

// ExtraDataSource describes one entry of a commit's extra-data array
// (§4.3 slow path): (name, download_size, installed_size, sha256, uri).
type ExtraDataSource struct {
	Name          string
	DownloadSize  uint64
	InstalledSize uint64
	SHA256        hash.Digest
	URI           string
}

// CommitReader reads commit objects by digest.
type CommitReader interface {
	ReadCommit(ctx context.Context, digest hash.Digest) (Commit, error)
}

// TreeWalker walks a commit's tree to compute sizes and read well-known
// files when the commit metadata doesn't already carry them.
type TreeWalker interface {
	// Metadata returns the content of the tree's top-level "metadata" file,
	// and false if the tree has none.
	Metadata(ctx context.Context, root hash.Digest) (string, bool, error)
	// Sizes walks the tree, computing the installed size (sum of file sizes
	// padded up to the next 512-byte boundary) and the download size (sum
	// of object storage sizes).
	Sizes(ctx context.Context, root hash.Digest) (installed, download uint64, err error)
}

// RefLister lists the repository's local refs (excluding remotes/mirrors),
// mapping ref name to the commit digest it currently points at.
type RefLister interface {
	ListRefs(ctx context.Context) (map[string]hash.Digest, error)
}

// StaticDeltaLister lists the names of static deltas available in the
// object store and the digest of each one's superblock, for embedding
// under the summary's ostree.static-deltas metadata key.
type StaticDeltaLister interface {
	ListStaticDeltas(ctx context.Context) ([]string, error)
	SuperblockDigest(ctx context.Context, deltaName string) (hash.Digest, error)
}
