// Package sdiff implements the REUSE/SKIP/DATA binary diff engine of §4.5:
// producing and applying compact diffs between two serialized summaries by
// exploiting that both share most ref entries at near-identical byte
// offsets. The opcode design is a direct descendant of git's pack-object
// delta format (plumbing/format/packfile/patch_delta.go's copy-from-source
// / copy-from-delta instructions), generalized from object deltas to
// whole-summary byte ranges.
package sdiff

import (
	"encoding/binary"
	"fmt"
)

// Magic is the 4-byte header of every frame.
const Magic = "FSUD"

// Opcode identifies what a frame word instructs the applier to do.
type Opcode byte

const (
	// OpReuse copies N bytes from the current old-buffer cursor to the
	// output, then advances the old cursor by N.
	OpReuse Opcode = 0
	// OpSkip advances the old-buffer cursor by N without emitting output.
	OpSkip Opcode = 1
	// OpData copies N bytes from the frame's literal region to the
	// output; it does not touch the old-buffer cursor.
	OpData Opcode = 2
)

// maxOpLength is the largest length a single opcode word can carry (28
// bits); longer runs are split across multiple words of the same opcode.
const maxOpLength = 1<<28 - 1

// Op is one decoded opcode word.
type Op struct {
	Code   Opcode
	Length uint32
}

// Frame is a fully decoded diff: the ordered op stream plus the literal
// bytes DATA ops draw from.
type Frame struct {
	Ops     []Op
	Literal []byte
}

func packWord(code Opcode, length uint32) uint32 {
	return uint32(code)<<28 | (length & maxOpLength)
}

func unpackWord(w uint32) (Opcode, uint32) {
	return Opcode(w >> 28), w & maxOpLength
}

// appendOp appends one logical op of the given length to ops, splitting it
// into multiple maxOpLength-sized words of the same opcode when length
// exceeds what a single 28-bit field can hold (§4.5: "sizes exceeding
// 2^28-1 span multiple opcode words of the same kind").
func appendOp(ops []Op, code Opcode, length uint64) []Op {
	for length > maxOpLength {
		ops = append(ops, Op{Code: code, Length: maxOpLength})
		length -= maxOpLength
	}
	if length > 0 {
		ops = append(ops, Op{Code: code, Length: uint32(length)})
	}
	return ops
}

// Marshal encodes f into the on-disk frame format (uncompressed; callers
// compress with deflate separately per §4.5).
func Marshal(f *Frame) []byte {
	out := make([]byte, 0, 8+4*len(f.Ops)+len(f.Literal))
	out = append(out, Magic...)

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(f.Ops)))
	out = append(out, countBuf[:]...)

	for _, op := range f.Ops {
		var wordBuf [4]byte
		binary.LittleEndian.PutUint32(wordBuf[:], packWord(op.Code, op.Length))
		out = append(out, wordBuf[:]...)
	}

	out = append(out, f.Literal...)
	return out
}

// ErrInvalidFrame signals a structurally malformed frame (bad magic,
// truncated op table, data_offset past the frame end, or an op referencing
// more bytes than remain).
var ErrInvalidFrame = fmt.Errorf("sdiff: invalid frame")

// Unmarshal parses an uncompressed frame.
func Unmarshal(b []byte) (*Frame, error) {
	if len(b) < 8 || string(b[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidFrame)
	}
	opCount := binary.LittleEndian.Uint32(b[4:8])

	dataOffset := int64(8) + int64(opCount)*4
	if dataOffset > int64(len(b)) {
		return nil, fmt.Errorf("%w: data_offset %d exceeds frame size %d", ErrInvalidFrame, dataOffset, len(b))
	}

	ops := make([]Op, opCount)
	for i := uint32(0); i < opCount; i++ {
		off := 8 + int(i)*4
		word := binary.LittleEndian.Uint32(b[off : off+4])
		code, length := unpackWord(word)
		if code != OpReuse && code != OpSkip && code != OpData {
			return nil, fmt.Errorf("%w: unknown opcode %d", ErrInvalidFrame, code)
		}
		ops[i] = Op{Code: code, Length: length}
	}

	return &Frame{Ops: ops, Literal: b[dataOffset:]}, nil
}

// Apply reconstructs the new buffer by executing f's op stream against
// old. REUSE and SKIP consume from old's implicit cursor (starting at 0
// and only ever advancing); DATA consumes from f.Literal's own implicit
// cursor. Fails if any op requests more bytes than remain in its source.
func Apply(old []byte, f *Frame) ([]byte, error) {
	var out []byte
	oldPos := 0
	litPos := 0

	for _, op := range f.Ops {
		n := int(op.Length)
		switch op.Code {
		case OpReuse:
			if oldPos+n > len(old) {
				return nil, fmt.Errorf("%w: REUSE past end of old buffer", ErrInvalidFrame)
			}
			out = append(out, old[oldPos:oldPos+n]...)
			oldPos += n
		case OpSkip:
			if oldPos+n > len(old) {
				return nil, fmt.Errorf("%w: SKIP past end of old buffer", ErrInvalidFrame)
			}
			oldPos += n
		case OpData:
			if litPos+n > len(f.Literal) {
				return nil, fmt.Errorf("%w: DATA past end of literal region", ErrInvalidFrame)
			}
			out = append(out, f.Literal[litPos:litPos+n]...)
			litPos += n
		default:
			return nil, fmt.Errorf("%w: unknown opcode %d", ErrInvalidFrame, op.Code)
		}
	}

	return out, nil
}
