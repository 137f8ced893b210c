// Package sumindex builds and serializes the summary index (§4.6): one
// entry per generated sub-summary giving its current digest, a bounded
// list of predecessor digests, and per-sub-summary metadata, plus
// repo-wide metadata carrying the cache-format version new fast-path cache
// population checks against.
package sumindex

import (
	"fmt"

	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/refs"
	"github.com/flatpak/repo-summary/variant"
)

// Entry is one sub-summary's current digest, predecessor history, and
// metadata (§3's summary-index value shape).
type Entry struct {
	CurrentDigest hash.Digest
	History       []hash.Digest
	Metadata      *variant.Map
}

// Index is the decoded tuple(sub_summary_map, metadata_map) value.
type Index struct {
	SubSummaries map[string]*Entry
	Metadata     *variant.Map
}

// CacheVersion implements cache.IndexSource, reading xa.cache-version out
// of the index's repo-level metadata.
func (idx *Index) CacheVersion() (uint32, bool) {
	v, ok := idx.Metadata.Get("xa.cache-version")
	if !ok {
		return 0, false
	}
	n, err := v.AsUint64()
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// SubSummaryDigests implements cache.IndexSource.
func (idx *Index) SubSummaryDigests() map[string]hash.Digest {
	out := make(map[string]hash.Digest, len(idx.SubSummaries))
	for name, e := range idx.SubSummaries {
		out[name] = e.CurrentDigest
	}
	return out
}

// Value returns idx's framed variant.Value representation.
func (idx *Index) Value() variant.Value {
	m := variant.NewMap()
	for name, e := range idx.SubSummaries {
		history := make([]variant.Value, len(e.History))
		for i, d := range e.History {
			history[i] = variant.Bytes(d.Bytes())
		}
		meta := e.Metadata
		if meta == nil {
			meta = variant.NewMap()
		}
		m.Put(name, variant.Tuple(
			variant.Bytes(e.CurrentDigest.Bytes()),
			variant.Array(history),
			variant.MapValue(meta),
		))
	}
	return variant.Tuple(variant.MapValue(m), variant.MapValue(idx.Metadata))
}

// Encode serializes idx to its on-disk byte representation.
func Encode(idx *Index) ([]byte, error) {
	return variant.MarshalToBytes(idx.Value())
}

// Decode parses a serialized summary index.
func Decode(b []byte) (*Index, error) {
	v, err := variant.UnmarshalFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("sumindex: decode: %w", err)
	}
	fields, err := v.AsTuple()
	if err != nil || len(fields) != 2 {
		return nil, fmt.Errorf("sumindex: decode: expected 2-tuple")
	}
	subMap, err := fields[0].AsMap()
	if err != nil {
		return nil, fmt.Errorf("sumindex: decode: sub_summary_map: %w", err)
	}
	meta, err := fields[1].AsMap()
	if err != nil {
		return nil, fmt.Errorf("sumindex: decode: metadata_map: %w", err)
	}

	idx := &Index{SubSummaries: make(map[string]*Entry, subMap.Len()), Metadata: meta}
	for _, name := range subMap.Keys() {
		val, _ := subMap.Get(name)
		entryFields, err := val.AsTuple()
		if err != nil || len(entryFields) != 3 {
			return nil, fmt.Errorf("sumindex: decode: entry %s: expected 3-tuple", name)
		}

		curBytes, err := entryFields[0].AsBytes()
		if err != nil {
			return nil, fmt.Errorf("sumindex: decode: entry %s: current_digest: %w", name, err)
		}
		current, err := hash.FromBytes(curBytes)
		if err != nil {
			return nil, fmt.Errorf("sumindex: decode: entry %s: current_digest: %w", name, err)
		}

		histVals, err := entryFields[1].AsArray()
		if err != nil {
			return nil, fmt.Errorf("sumindex: decode: entry %s: history: %w", name, err)
		}
		history := make([]hash.Digest, len(histVals))
		for i, hv := range histVals {
			b, err := hv.AsBytes()
			if err != nil {
				return nil, fmt.Errorf("sumindex: decode: entry %s: history[%d]: %w", name, i, err)
			}
			d, err := hash.FromBytes(b)
			if err != nil {
				return nil, fmt.Errorf("sumindex: decode: entry %s: history[%d]: %w", name, i, err)
			}
			history[i] = d
		}

		entryMeta, err := entryFields[2].AsMap()
		if err != nil {
			return nil, fmt.Errorf("sumindex: decode: entry %s: metadata: %w", name, err)
		}

		idx.SubSummaries[name] = &Entry{CurrentDigest: current, History: history, Metadata: entryMeta}
	}

	return idx, nil
}

// sortedNames returns m's keys sorted byte-wise ascending, reusing the
// same ordering helper ref strings are sorted with (§4.1's "deterministic
// map key order" applies equally to sub-summary names).
func sortedNames(m map[string]GeneratedSubSummary) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	refs.SortStrings(out)
	return out
}
