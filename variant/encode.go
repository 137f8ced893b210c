package variant

import (
	"encoding/binary"
	"fmt"
	"io"
)

// CountingWriter wraps an io.Writer and tracks the number of bytes written
// so far, letting callers record byte ranges of sub-values as they are
// encoded. The summary package uses this to record each ref entry's byte
// range for the sdiff binary diff engine (§4.5).
type CountingWriter struct {
	w   io.Writer
	off int64
}

// NewCountingWriter wraps w.
func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: w}
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.off += int64(n)
	return n, err
}

// Offset returns the number of bytes written so far.
func (c *CountingWriter) Offset() int64 { return c.off }

// Marshal writes v's self-describing encoding to w.
func Marshal(w io.Writer, v Value) error {
	cw, ok := w.(*CountingWriter)
	if !ok {
		cw = NewCountingWriter(w)
	}
	return encode(cw, v)
}

// MarshalToBytes returns v's self-describing encoding as a byte slice.
func MarshalToBytes(v Value) ([]byte, error) {
	var buf writeBuffer
	if err := Marshal(&buf, v); err != nil {
		return nil, err
	}
	return buf.b, nil
}

type writeBuffer struct{ b []byte }

func (b *writeBuffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

func encode(w *CountingWriter, v Value) error {
	if _, err := w.Write([]byte{byte(v.kind)}); err != nil {
		return err
	}

	switch v.kind {
	case KindUint8:
		_, err := w.Write([]byte{byte(v.u)})
		return err
	case KindUint16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v.u))
		_, err := w.Write(b[:])
		return err
	case KindUint32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v.u))
		_, err := w.Write(b[:])
		return err
	case KindUint64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v.u)
		_, err := w.Write(b[:])
		return err
	case KindBytes:
		if err := writeU32(w, uint32(len(v.raw))); err != nil {
			return err
		}
		_, err := w.Write(v.raw)
		return err
	case KindString:
		if _, err := w.Write([]byte(v.str)); err != nil {
			return err
		}
		_, err := w.Write([]byte{0})
		return err
	case KindTuple:
		if err := writeU32(w, uint32(len(v.tuple))); err != nil {
			return err
		}
		for _, f := range v.tuple {
			if err := encode(w, f); err != nil {
				return err
			}
		}
		return nil
	case KindArray:
		if err := writeU32(w, uint32(len(v.arr))); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := encode(w, e); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if v.m == nil {
			return writeU32(w, 0)
		}
		if err := writeU32(w, uint32(v.m.Len())); err != nil {
			return err
		}
		var encErr error
		v.m.Each(func(key string, val Value) {
			if encErr != nil {
				return
			}
			if _, err := w.Write([]byte(key)); err != nil {
				encErr = err
				return
			}
			if _, err := w.Write([]byte{0}); err != nil {
				encErr = err
				return
			}
			encErr = encode(w, val)
		})
		return encErr
	default:
		return fmt.Errorf("variant: encode: unknown kind %d", v.kind)
	}
}

func writeU32(w io.Writer, n uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], n)
	_, err := w.Write(b[:])
	return err
}

// MapEntryRanges encodes m to w (which must already be positioned at the
// start of the map's u32 count field) and returns, for each key, the
// half-open byte range [start,end) of that key's full encoded entry
// (NUL-terminated key bytes followed by the recursively encoded value)
// relative to the start of whatever stream w is writing into. This is used
// by the summary package to let sdiff diff individual ref entries without
// re-parsing the whole summary.
func MapEntryRanges(w *CountingWriter, m *Map) (map[string][2]int64, error) {
	ranges := make(map[string][2]int64, m.Len())
	if err := writeU32(w, uint32(m.Len())); err != nil {
		return nil, err
	}

	var outerErr error
	m.Each(func(key string, val Value) {
		if outerErr != nil {
			return
		}
		start := w.Offset()
		if _, err := w.Write([]byte(key)); err != nil {
			outerErr = err
			return
		}
		if _, err := w.Write([]byte{0}); err != nil {
			outerErr = err
			return
		}
		if err := encode(w, val); err != nil {
			outerErr = err
			return
		}
		ranges[key] = [2]int64{start, w.Offset()}
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return ranges, nil
}
