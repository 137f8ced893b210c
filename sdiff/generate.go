package sdiff

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var dmp = diffmatchpatch.New()

// toRunes re-encodes a raw byte slice as a string with exactly one rune
// per input byte. diffmatchpatch's common-prefix/suffix routines measure
// length in runes, not bytes, so feeding it a string built straight from
// arbitrary binary bytes (which is rarely valid UTF-8) would silently
// report the wrong offsets; mapping each byte to its own codepoint (every
// byte value is a valid, single-rune codepoint) keeps rune count and byte
// count identical.
func toRunes(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

func commonPrefixLen(a, b []byte) int {
	return dmp.DiffCommonPrefix(toRunes(a), toRunes(b))
}

func commonSuffixLen(a, b []byte) int {
	return dmp.DiffCommonSuffix(toRunes(a), toRunes(b))
}

// blockBuilder accumulates ops and literal bytes across one or more
// consume blocks.
type blockBuilder struct {
	ops     []Op
	literal []byte
}

func (bb *blockBuilder) reuse(n int) {
	if n > 0 {
		bb.ops = appendOp(bb.ops, OpReuse, uint64(n))
	}
}

func (bb *blockBuilder) skip(n int) {
	if n > 0 {
		bb.ops = appendOp(bb.ops, OpSkip, uint64(n))
	}
}

func (bb *blockBuilder) data(b []byte) {
	if len(b) > 0 {
		bb.ops = appendOp(bb.ops, OpData, uint64(len(b)))
		bb.literal = append(bb.literal, b...)
	}
}

// block implements §4.5's per-consume-block algorithm: common prefix, then
// (within the remainder) common suffix, then SKIP the old middle and DATA
// the new middle.
func (bb *blockBuilder) block(oldSeg, newSeg []byte) {
	prefix := commonPrefixLen(oldSeg, newSeg)
	oldRest := oldSeg[prefix:]
	newRest := newSeg[prefix:]

	suffix := commonSuffixLen(oldRest, newRest)
	oldMid := oldRest[:len(oldRest)-suffix]
	newMid := newRest[:len(newRest)-suffix]

	bb.reuse(prefix)
	bb.skip(len(oldMid))
	bb.data(newMid)
	bb.reuse(suffix)
}

// Generate produces an uncompressed frame transforming old into new,
// treating the whole buffers as a single consume block. GenerateRanged
// applies the same per-block step once per shared ref plus once per
// inter-ref gap.
func Generate(old, new []byte) *Frame {
	bb := &blockBuilder{}
	bb.block(old, new)
	return &Frame{Ops: bb.ops, Literal: bb.literal}
}

// GenerateRanged produces a frame transforming old into new given each
// buffer's map of ref name to byte range (as returned by
// summary.EncodeWithRanges), merge-walking the two range sets in
// byte-wise ref order and emitting a consume block per ref shared by both
// sides plus a bridging block covering the framing bytes (and any
// added/removed ref) between consecutive shared refs (§4.5).
func GenerateRanged(old, new []byte, oldRanges, newRanges map[string][2]int64) *Frame {
	keys := make(map[string]struct{}, len(oldRanges)+len(newRanges))
	for k := range oldRanges {
		keys[k] = struct{}{}
	}
	for k := range newRanges {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	bb := &blockBuilder{}
	oldCursor, newCursor := int64(0), int64(0)

	for _, key := range sorted {
		oldRange, inOld := oldRanges[key]
		newRange, inNew := newRanges[key]
		if !inOld || !inNew {
			// A ref added or removed this run has no counterpart range on
			// the other side; its bytes are swallowed into the next
			// bridging block below instead of a dedicated consume block.
			continue
		}

		bb.block(old[oldCursor:oldRange[0]], new[newCursor:newRange[0]])
		bb.block(old[oldRange[0]:oldRange[1]], new[newRange[0]:newRange[1]])
		oldCursor, newCursor = oldRange[1], newRange[1]
	}

	bb.block(old[oldCursor:], new[newCursor:])

	maybeSelfCheck(old, new, &Frame{Ops: bb.ops, Literal: bb.literal})

	return &Frame{Ops: bb.ops, Literal: bb.literal}
}

// Compress deflates a marshaled frame at the maximum compression level
// (§4.5), mirroring plumbing/format/packfile/encoder.go's direct use of a
// stdlib compress package for on-disk object bytes.
func Compress(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("sdiff: compress: %w", err)
	}
	if _, err := w.Write(Marshal(f)); err != nil {
		return nil, fmt.Errorf("sdiff: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("sdiff: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates and parses a frame written by Compress.
func Decompress(b []byte) (*Frame, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sdiff: decompress: %w", err)
	}
	return Unmarshal(raw)
}

// maybeSelfCheck re-applies the freshly generated frame against old and
// compares it to new, panicking on mismatch. It only runs when the
// sdiff_debug build tag is set (see selfcheck_debug.go), mirroring the
// OS-specific build-tag split already used for fdatasync in fsutil,
// generalized here from a platform switch to a debug/release switch.
func maybeSelfCheck(old, new []byte, f *Frame) {
	if !selfCheckEnabled {
		return
	}
	got, err := Apply(old, f)
	if err != nil {
		panic(fmt.Sprintf("sdiff: self-check: apply failed: %v", err))
	}
	if !bytes.Equal(got, new) {
		panic("sdiff: self-check: apply(generate(old, new), old) != new")
	}
}
