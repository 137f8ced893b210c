package sumindex

import (
	"bytes"
	"context"
	"fmt"

	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/sdiff"
	"github.com/flatpak/repo-summary/summary"
	"github.com/flatpak/repo-summary/variant"
)

// DefaultMaxHistory is the predecessor-history bound used when a
// repository's flatpak.summary-history-length config key is absent or
// non-positive (§6).
const DefaultMaxHistory = 16

// GeneratedSubSummary is one sub-summary this run produced: its digest,
// uncompressed serialized bytes, and (when available) the per-ref byte
// ranges summary.EncodeWithRanges recorded while building it.
type GeneratedSubSummary struct {
	Digest hash.Digest
	Bytes  []byte
	Ranges map[string][2]int64
}

// BytesSource loads the uncompressed bytes of a historical sub-summary by
// digest, for diffing against a newly generated one. ok is false when the
// file has been removed by an earlier GC pass (§4.6 steps 2 and 5 both
// tolerate this).
type BytesSource interface {
	LoadSubSummaryBytes(ctx context.Context, digest hash.Digest) (b []byte, ok bool, err error)
}

// DeltaWriter persists one generated binary diff under its
// "{from}-{to}.delta" name.
type DeltaWriter interface {
	WriteDelta(ctx context.Context, from, to hash.Digest, compressed []byte) error
}

// Input gathers one run's generated sub-summaries plus the prior index to
// extend history from.
type Input struct {
	Generated    map[string]GeneratedSubSummary
	Prior        *Index // nil if this is the first run
	MaxHistory   int    // <= 0 means DefaultMaxHistory
	CacheVersion uint32
	LastModified uint64
}

// Generate builds the new summary index, diffing each sub-summary whose
// digest changed against its predecessor chain and extending the bounded
// history list (§4.6).
func Generate(ctx context.Context, in Input, bytesSource BytesSource, deltaWriter DeltaWriter) (*Index, error) {
	maxHistory := in.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}

	idx := &Index{
		SubSummaries: make(map[string]*Entry, len(in.Generated)),
		Metadata:     buildIndexMetadata(in),
	}

	for _, name := range sortedNames(in.Generated) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gen := in.Generated[name]
		entry := &Entry{CurrentDigest: gen.Digest, Metadata: variant.NewMap()}

		var prior *Entry
		if in.Prior != nil {
			prior = in.Prior.SubSummaries[name]
		}

		switch {
		case prior == nil:
			// First time this sub-summary name has been generated; no
			// predecessor to diff against.
		case prior.CurrentDigest == gen.Digest:
			// Unchanged from the prior run: nothing to regenerate, carry
			// the existing history list forward untouched.
			entry.History = prior.History
		default:
			history, err := extendHistory(ctx, name, gen, prior, maxHistory, bytesSource, deltaWriter)
			if err != nil {
				return nil, err
			}
			entry.History = history
		}

		idx.SubSummaries[name] = entry
	}

	return idx, nil
}

// extendHistory implements §4.6 steps 2-5: diff the immediate predecessor
// into the current digest, then walk the predecessor's own history chain
// doing the same, until the bound is reached or the chain runs out.
func extendHistory(ctx context.Context, name string, gen GeneratedSubSummary, prior *Entry, maxHistory int, bytesSource BytesSource, deltaWriter DeltaWriter) ([]hash.Digest, error) {
	var history []hash.Digest

	candidates := append([]hash.Digest{prior.CurrentDigest}, prior.History...)

	for _, predecessor := range candidates {
		if len(history) >= maxHistory {
			break
		}

		oldBytes, ok, err := bytesSource.LoadSubSummaryBytes(ctx, predecessor)
		if err != nil {
			return nil, fmt.Errorf("sumindex: loading sub-summary %s predecessor %s: %w", name, predecessor, err)
		}
		if !ok {
			// Missing on disk (GC'd on an earlier run): skip this history
			// step, but keep walking the rest of the chain.
			continue
		}

		if err := writeDelta(ctx, deltaWriter, predecessor, gen, oldBytes); err != nil {
			return nil, fmt.Errorf("sumindex: sub-summary %s: %w", name, err)
		}
		history = append(history, predecessor)
	}

	return history, nil
}

func writeDelta(ctx context.Context, deltaWriter DeltaWriter, from hash.Digest, to GeneratedSubSummary, oldBytes []byte) error {
	frame, err := diffSubSummaries(oldBytes, to.Bytes, to.Ranges)
	if err != nil {
		return fmt.Errorf("diffing %s -> %s: %w", from, to.Digest, err)
	}
	compressed, err := sdiff.Compress(frame)
	if err != nil {
		return fmt.Errorf("compressing diff %s -> %s: %w", from, to.Digest, err)
	}
	if err := deltaWriter.WriteDelta(ctx, from, to.Digest, compressed); err != nil {
		return fmt.Errorf("writing delta %s -> %s: %w", from, to.Digest, err)
	}
	return nil
}

// diffSubSummaries diffs oldBytes against newBytes, using sdiff's
// ref-range-aware merge walk when byte ranges are available for both
// sides and when re-deriving oldBytes's ranges reproduces oldBytes
// exactly (confirming it is canonically encoded); otherwise it falls back
// to the whole-buffer diff, which is still correct, just less compact.
func diffSubSummaries(oldBytes, newBytes []byte, newRanges map[string][2]int64) (*sdiff.Frame, error) {
	oldRanges, ok, err := canonicalRanges(oldBytes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return sdiff.Generate(oldBytes, newBytes), nil
	}

	if newRanges == nil {
		newRanges, ok, err = canonicalRanges(newBytes)
		if err != nil {
			return nil, err
		}
		if !ok {
			return sdiff.Generate(oldBytes, newBytes), nil
		}
	}

	return sdiff.GenerateRanged(oldBytes, newBytes, oldRanges, newRanges), nil
}

// canonicalRanges decodes b as a summary and re-serializes it with
// per-ref byte ranges, returning ok=false if the re-encoding doesn't
// reproduce b byte-for-byte (meaning b wasn't produced by this package's
// own deterministic encoder, so its ranges can't be trusted).
func canonicalRanges(b []byte) (map[string][2]int64, bool, error) {
	s, err := summary.Decode(b)
	if err != nil {
		return nil, false, nil
	}
	reencoded, ranges, err := summary.EncodeWithRanges(s)
	if err != nil {
		return nil, false, nil
	}
	if !bytes.Equal(reencoded, b) {
		return nil, false, nil
	}
	return ranges, true, nil
}

func buildIndexMetadata(in Input) *variant.Map {
	m := variant.NewMap()
	m.Put("xa.cache-version", variant.Uint32(in.CacheVersion))
	m.Put("ostree.summary.last-modified", variant.BEUint64(in.LastModified))
	return m
}
