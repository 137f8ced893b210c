// Package summary builds and serializes the compat (legacy) and modern
// per-arch/per-subset summary values described in §4.4 of the
// specification, and exposes the per-ref byte ranges the sdiff package
// needs to diff two summaries without re-parsing them.
package summary

import (
	"fmt"

	"github.com/flatpak/repo-summary/variant"
)

// Summary is the decoded tuple(ref_map, metadata_map) value (§3, §4.1).
type Summary struct {
	Refs     *variant.Map
	Metadata *variant.Map
}

// Value returns the summary's framed variant.Value representation.
func (s *Summary) Value() variant.Value {
	return variant.Tuple(variant.MapValue(s.Refs), variant.MapValue(s.Metadata))
}

// Encode serializes s to its on-disk byte representation.
func Encode(s *Summary) ([]byte, error) {
	return variant.MarshalToBytes(s.Value())
}

// Decode parses a serialized summary.
func Decode(b []byte) (*Summary, error) {
	v, err := variant.UnmarshalFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("summary: decode: %w", err)
	}
	fields, err := v.AsTuple()
	if err != nil || len(fields) != 2 {
		return nil, fmt.Errorf("summary: decode: expected 2-tuple")
	}
	refs, err := fields[0].AsMap()
	if err != nil {
		return nil, fmt.Errorf("summary: decode: ref_map: %w", err)
	}
	meta, err := fields[1].AsMap()
	if err != nil {
		return nil, fmt.Errorf("summary: decode: metadata_map: %w", err)
	}
	return &Summary{Refs: refs, Metadata: meta}, nil
}

// EncodeWithRanges serializes s exactly like Encode but additionally
// returns, for each ref, the half-open byte range of its encoded entry
// (key plus value) within the returned bytes. sdiff uses these ranges to
// merge-walk two summaries without re-parsing either one (§4.5).
func EncodeWithRanges(s *Summary) ([]byte, map[string][2]int64, error) {
	var buf countingBuffer
	cw := variant.NewCountingWriter(&buf)

	// tuple(ref_map, metadata_map): tag byte + u32 field count, matching
	// encode()'s KindTuple case byte-for-byte.
	if _, err := cw.Write([]byte{byte(variant.KindTuple)}); err != nil {
		return nil, nil, err
	}
	if err := writeU32LE(cw, 2); err != nil {
		return nil, nil, err
	}

	// ref_map's own tag byte, then MapEntryRanges picks up at the u32
	// count field, exactly where encode()'s KindMap case would continue.
	if _, err := cw.Write([]byte{byte(variant.KindMap)}); err != nil {
		return nil, nil, err
	}
	ranges, err := variant.MapEntryRanges(cw, s.Refs)
	if err != nil {
		return nil, nil, fmt.Errorf("summary: encoding ref_map: %w", err)
	}

	if err := variant.Marshal(cw, variant.MapValue(s.Metadata)); err != nil {
		return nil, nil, fmt.Errorf("summary: encoding metadata_map: %w", err)
	}

	return buf.b, ranges, nil
}

type countingBuffer struct{ b []byte }

func (c *countingBuffer) Write(p []byte) (int, error) {
	c.b = append(c.b, p...)
	return len(p), nil
}

func writeU32LE(w *variant.CountingWriter, n uint32) error {
	_, err := w.Write([]byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)})
	return err
}
