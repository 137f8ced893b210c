// Package cache implements the commit metadata cache (§4.3): a map from
// commit digest to the installed/download sizes, metadata text, subset
// membership, and sparse fields the summary generator needs, populated
// either from a prior summary index (fast path) or by walking the object
// store (slow path).
package cache

import (
	"sort"

	"github.com/flatpak/repo-summary/hash"
)

// ExpectedCacheVersion is the compile-time cache format version. The fast
// path aborts (falls back to the slow path) when a prior index's
// xa.cache-version metadata doesn't match this.
const ExpectedCacheVersion uint32 = 1

// ExtraData describes one extra-data source attached to a commit, copied
// from store.ExtraDataSource during slow-path population.
type ExtraData struct {
	Name          string
	DownloadSize  uint64
	InstalledSize uint64
	SHA256        hash.Digest
	URI           string
}

// Sparse holds the optional per-commit fields that travel alongside the
// dense installed/download/metadata triple: end-of-life markers, token
// type, and extra-data accounting (§3's CommitData.sparse), plus additional
// pass-through keys recovered from a prior index during fast-path
// population (keys not beginning with "ot." or "ostree." and not equal to
// "xa.data", per §4.3 step 3). Extra holds only string-valued pass-through
// keys; a pass-through key of any other value type is not kept.
type Sparse struct {
	EOL       string
	EOLRebase string
	TokenType *int32
	ExtraData []ExtraData
	// ExtraDataTotal is the eds tuple's total_bytes field (sum of
	// ExtraData[*].DownloadSize at population time). Carried as its own
	// value rather than recomputed from ExtraData, since the fast path can
	// only reconstruct a count of sources, not their individual sizes.
	ExtraDataTotal uint64
	Extra          map[string]string
}

// Equal reports whether s and o describe the same sparse fields.
func (s *Sparse) Equal(o *Sparse) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.EOL != o.EOL || s.EOLRebase != o.EOLRebase {
		return false
	}
	if (s.TokenType == nil) != (o.TokenType == nil) {
		return false
	}
	if s.TokenType != nil && *s.TokenType != *o.TokenType {
		return false
	}
	if s.ExtraDataTotal != o.ExtraDataTotal {
		return false
	}
	if len(s.ExtraData) != len(o.ExtraData) {
		return false
	}
	for i := range s.ExtraData {
		if s.ExtraData[i] != o.ExtraData[i] {
			return false
		}
	}
	if len(s.Extra) != len(o.Extra) {
		return false
	}
	for k, v := range s.Extra {
		if o.Extra[k] != v {
			return false
		}
	}
	return true
}

// Data is one cache entry (§3's CommitData).
type Data struct {
	InstalledSize   uint64
	DownloadSize    uint64
	MetadataText    string
	Subsets         map[string]struct{}
	CommitSize      uint64
	CommitTimestamp uint64
	Sparse          *Sparse
}

// Equal reports whether d and o have identical fields; Subsets is compared
// as a set, order-insensitive, per §4.3.
func (d *Data) Equal(o *Data) bool {
	if d.InstalledSize != o.InstalledSize ||
		d.DownloadSize != o.DownloadSize ||
		d.MetadataText != o.MetadataText ||
		d.CommitSize != o.CommitSize ||
		d.CommitTimestamp != o.CommitTimestamp {
		return false
	}
	if len(d.Subsets) != len(o.Subsets) {
		return false
	}
	for s := range d.Subsets {
		if _, ok := o.Subsets[s]; !ok {
			return false
		}
	}
	return d.Sparse.Equal(o.Sparse)
}

// AddSubset records that a ref pointing at this commit belongs to subset s.
// Subsets accumulate additively across every ref sharing one commit (§3).
func (d *Data) AddSubset(s string) {
	if s == "" {
		return
	}
	if d.Subsets == nil {
		d.Subsets = make(map[string]struct{})
	}
	d.Subsets[s] = struct{}{}
}

// Cache maps commit digest to Data. The zero value is an empty cache.
type Cache struct {
	entries map[hash.Digest]*Data
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[hash.Digest]*Data)}
}

// Get returns the entry for digest, if present.
func (c *Cache) Get(digest hash.Digest) (*Data, bool) {
	d, ok := c.entries[digest]
	return d, ok
}

// Has reports whether digest already has a cache entry.
func (c *Cache) Has(digest hash.Digest) bool {
	_, ok := c.entries[digest]
	return ok
}

// Put inserts or overwrites the entry for digest.
func (c *Cache) Put(digest hash.Digest, d *Data) {
	if c.entries == nil {
		c.entries = make(map[hash.Digest]*Data)
	}
	c.entries[digest] = d
}

// Len returns the number of cached commits.
func (c *Cache) Len() int { return len(c.entries) }

// Digests returns the cached commit digests, sorted byte-wise ascending by
// hex representation (which, for fixed-length digests, matches raw
// byte-wise ascending order).
func (c *Cache) Digests() []hash.Digest {
	out := make([]hash.Digest, 0, len(c.entries))
	for d := range c.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}
