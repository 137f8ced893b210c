package sumindex

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/flatpak/repo-summary/cache"
	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/summary"
)

// GzSource reads the gzip-compressed bytes of a sub-summary file named by
// its uncompressed-content digest, or ok=false if no such file exists.
type GzSource interface {
	ReadGzSubSummary(ctx context.Context, digest hash.Digest) (gzBytes []byte, ok bool, err error)
}

// FastLoader adapts an on-disk gzip-compressed sub-summary store into
// cache.SubSummaryLoader, so cache.PopulateFast can repopulate the commit
// cache straight from this run's prior index without the cache package
// needing to import sumindex or summary (§4.3 fast path).
type FastLoader struct {
	Source GzSource
}

// LoadRefEntries implements cache.SubSummaryLoader.
func (l FastLoader) LoadRefEntries(ctx context.Context, digest hash.Digest) (map[string]cache.RefEntry, bool, error) {
	gz, ok, err := l.Source.ReadGzSubSummary(ctx, digest)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(gz))
	if err != nil {
		return nil, false, fmt.Errorf("sumindex: opening sub-summary %s: %w", digest, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("sumindex: reading sub-summary %s: %w", digest, err)
	}

	sum, err := summary.Decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("sumindex: decoding sub-summary %s: %w", digest, err)
	}

	entries := make(map[string]cache.RefEntry, sum.Refs.Len())
	for _, ref := range sum.Refs.Keys() {
		val, _ := sum.Refs.Get(ref)
		fields, err := val.AsTuple()
		if err != nil || len(fields) != 3 {
			return nil, false, fmt.Errorf("sumindex: sub-summary %s: ref %s: malformed entry", digest, ref)
		}
		commitSize, err := fields[0].AsUint64()
		if err != nil {
			return nil, false, fmt.Errorf("sumindex: sub-summary %s: ref %s: commit_size: %w", digest, ref, err)
		}
		digestBytes, err := fields[1].AsBytes()
		if err != nil {
			return nil, false, fmt.Errorf("sumindex: sub-summary %s: ref %s: commit_digest: %w", digest, ref, err)
		}
		commitDigest, err := hash.FromBytes(digestBytes)
		if err != nil {
			return nil, false, fmt.Errorf("sumindex: sub-summary %s: ref %s: commit_digest: %w", digest, ref, err)
		}
		meta, err := fields[2].AsMap()
		if err != nil {
			return nil, false, fmt.Errorf("sumindex: sub-summary %s: ref %s: metadata: %w", digest, ref, err)
		}

		entries[ref] = cache.RefEntry{CommitSize: commitSize, CommitDigest: commitDigest, Metadata: meta}
	}

	return entries, true, nil
}
