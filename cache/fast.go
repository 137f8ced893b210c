package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/refs"
	"github.com/flatpak/repo-summary/trace"
	"github.com/flatpak/repo-summary/variant"
)

// ErrFastPathInvalid signals that the fast path encountered a structural
// problem and the caller should fall back to the slow, object-store-walking
// path for the whole run (§4.3: "Abort on any structural invalid results in
// falling through to the slow path for this run").
var ErrFastPathInvalid = errors.New("cache: fast path invalidated")

// RefEntry is one ref's entry as read back from an on-disk sub-summary: the
// encoded commit size, the commit digest, and the per-ref metadata map,
// still in its raw variant.Map form (§3's ref_map value shape).
type RefEntry struct {
	CommitSize   uint64
	CommitDigest hash.Digest
	Metadata     *variant.Map
}

// IndexSource exposes the parts of a prior summary index the fast path
// needs, without requiring the cache package to import the sumindex
// package (which itself imports cache, so the reverse import would be a
// cycle; the root orchestrator wires a concrete sumindex.Index in here).
type IndexSource interface {
	// CacheVersion returns the xa.cache-version recorded in the index's
	// repo-level metadata, and false if absent.
	CacheVersion() (uint32, bool)
	// SubSummaryDigests returns sub-summary-name -> current digest for
	// every sub-summary recorded in the index.
	SubSummaryDigests() map[string]hash.Digest
}

// SubSummaryLoader loads the full set of ref entries out of a digested
// sub-summary file.
type SubSummaryLoader interface {
	// LoadRefEntries returns the ref->RefEntry map of the sub-summary with
	// the given on-disk digest, or ok=false if the file is missing.
	LoadRefEntries(ctx context.Context, digest hash.Digest) (entries map[string]RefEntry, ok bool, err error)
}

// PopulateFast implements the fast cache-population path of §4.3: given a
// prior summary index, repopulate CommitData for every commit it already
// describes without touching the object store. It returns
// ErrFastPathInvalid when the index is missing xa.cache-version, the
// version doesn't match ExpectedCacheVersion, a referenced sub-summary is
// missing, or a ref entry returned by the loader fails the checks in
// applyRefEntry — callers must treat that as "whole cache invalidated, use
// the slow path". An error returned by the loader itself (including one for
// a sub-summary file it cannot decode) is passed back wrapped, without
// ErrFastPathInvalid.
func PopulateFast(ctx context.Context, idx IndexSource, loader SubSummaryLoader) (*Cache, error) {
	version, ok := idx.CacheVersion()
	if !ok || version != ExpectedCacheVersion {
		trace.Cache.Printf("fast path: cache-version mismatch (have %d, want %d, present=%v)", version, ExpectedCacheVersion, ok)
		return nil, fmt.Errorf("%w: cache-version mismatch", ErrFastPathInvalid)
	}

	c := New()

	for name, digest := range idx.SubSummaryDigests() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		subset, _ := refs.SplitSubSummaryName(name)

		entries, ok, err := loader.LoadRefEntries(ctx, digest)
		if err != nil {
			return nil, fmt.Errorf("cache: loading sub-summary %s: %w", name, err)
		}
		if !ok {
			// A sub-summary referenced by the index but missing on disk is
			// itself a structural problem for the fast path: the index
			// claims a view we can no longer reconstruct.
			return nil, fmt.Errorf("%w: sub-summary %s (%s) missing", ErrFastPathInvalid, name, digest)
		}

		for ref, entry := range entries {
			r := refs.Parse(ref)
			if !r.HasCacheData() {
				continue
			}

			if err := applyRefEntry(c, entry); err != nil {
				return nil, fmt.Errorf("%w: ref %s: %w", ErrFastPathInvalid, ref, err)
			}

			if subset != "" {
				d, _ := c.Get(entry.CommitDigest)
				d.AddSubset(subset)
			}
		}
	}

	return c, nil
}

func applyRefEntry(c *Cache, entry RefEntry) error {
	if len(entry.CommitDigest.Bytes()) != hash.Size {
		return fmt.Errorf("commit digest has wrong length")
	}

	if c.Has(entry.CommitDigest) {
		return nil
	}

	dataVal, ok := entry.Metadata.Get("xa.data")
	if !ok {
		return fmt.Errorf("missing xa.data")
	}
	fields, err := dataVal.AsTuple()
	if err != nil || len(fields) != 3 {
		return fmt.Errorf("xa.data: not a 3-tuple")
	}
	installed, err := variant.BEUint64Value(fields[0])
	if err != nil {
		return fmt.Errorf("xa.data.installed_size: %w", err)
	}
	download, err := variant.BEUint64Value(fields[1])
	if err != nil {
		return fmt.Errorf("xa.data.download_size: %w", err)
	}
	metadataText, err := fields[2].AsString()
	if err != nil {
		return fmt.Errorf("xa.data.metadata_text: %w", err)
	}

	var timestamp uint64
	if tsVal, ok := entry.Metadata.Get("ostree.commit.timestamp2"); ok {
		timestamp, err = variant.BEUint64Value(tsVal)
		if err != nil {
			return fmt.Errorf("ostree.commit.timestamp2: %w", err)
		}
	}

	d := &Data{
		InstalledSize:   installed,
		DownloadSize:    download,
		MetadataText:    metadataText,
		CommitSize:      entry.CommitSize,
		CommitTimestamp: timestamp,
	}

	sparse, err := extractSparse(entry.Metadata)
	if err != nil {
		return err
	}
	d.Sparse = sparse

	c.Put(entry.CommitDigest, d)
	return nil
}

// extractSparse copies every per-ref metadata key that isn't one of the
// well-known prefixes/keys already consumed (ot.*, ostree.*, xa.data) into
// the cache entry's sparse submap, per §4.3 step 3.
func extractSparse(m *variant.Map) (*Sparse, error) {
	s := &Sparse{}
	var extraCount int
	var extraTotal uint64
	haveExtra := false

	for _, key := range m.Keys() {
		if key == "xa.data" || strings.HasPrefix(key, "ot.") || strings.HasPrefix(key, "ostree.") {
			continue
		}
		v, _ := m.Get(key)
		switch key {
		case "eol":
			str, err := v.AsString()
			if err != nil {
				return nil, fmt.Errorf("eol: %w", err)
			}
			s.EOL = str
		case "eolr":
			str, err := v.AsString()
			if err != nil {
				return nil, fmt.Errorf("eolr: %w", err)
			}
			s.EOLRebase = str
		case "tt":
			n, err := v.AsUint64()
			if err != nil {
				return nil, fmt.Errorf("tt: %w", err)
			}
			tt := int32(n)
			s.TokenType = &tt
		case "eds":
			fields, err := v.AsTuple()
			if err != nil || len(fields) != 2 {
				return nil, fmt.Errorf("eds: not a 2-tuple")
			}
			cnt, err := fields[0].AsUint64()
			if err != nil {
				return nil, fmt.Errorf("eds.count: %w", err)
			}
			total, err := variant.BEUint64Value(fields[1])
			if err != nil {
				return nil, fmt.Errorf("eds.total_bytes: %w", err)
			}
			extraCount = int(cnt)
			extraTotal = total
			haveExtra = true
		default:
			if str, err := v.AsString(); err == nil {
				if s.Extra == nil {
					s.Extra = make(map[string]string)
				}
				s.Extra[key] = str
			}
		}
	}

	if haveExtra {
		s.ExtraData = make([]ExtraData, extraCount)
		s.ExtraDataTotal = extraTotal
	}

	return s, nil
}
