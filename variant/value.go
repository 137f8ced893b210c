// Package variant implements the typed, self-describing binary framing used
// by every persisted structure in this repository: commits, summaries, the
// summary index, and delta payloads. It follows design note 9 of the
// specification ("Polymorphic value trees... represent it as a tagged
// variant rather than subclassing; all algorithms recurse over the
// variant"): a single Value type closed over nine shapes, rather than one
// Go type per on-disk structure.
//
// Fixed-width integers are little-endian on disk by default. Several
// metadata fields are defined as big-endian despite that default (see
// design note 9's "Big-endian integer keys"); those fields are represented
// as Bytes values built with BEUint32/BEUint64 and decoded at the edge with
// BEUint32Value/BEUint64Value, never as a native integer Kind, so the
// framing layer itself never has to special-case byte order.
package variant

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
)

// Kind identifies which of the closed set of shapes a Value holds.
type Kind uint8

const (
	KindUint8 Kind = iota + 1
	KindUint16
	KindUint32
	KindUint64
	KindBytes
	KindString
	KindTuple
	KindMap
	KindArray
)

// Value is a tagged variant over the shapes the framing supports.
type Value struct {
	kind  Kind
	u     uint64
	raw   []byte
	str   string
	tuple []Value
	arr   []Value
	m     *Map
}

// Kind returns the Value's shape.
func (v Value) Kind() Kind { return v.kind }

// Uint8 constructs a fixed-width unsigned 8-bit value.
func Uint8(n uint8) Value { return Value{kind: KindUint8, u: uint64(n)} }

// Uint16 constructs a fixed-width unsigned 16-bit value, little-endian on disk.
func Uint16(n uint16) Value { return Value{kind: KindUint16, u: uint64(n)} }

// Uint32 constructs a fixed-width unsigned 32-bit value, little-endian on disk.
func Uint32(n uint32) Value { return Value{kind: KindUint32, u: uint64(n)} }

// Uint64 constructs a fixed-width unsigned 64-bit value, little-endian on disk.
func Uint64(n uint64) Value { return Value{kind: KindUint64, u: n} }

// Bytes constructs a fixed-size byte array value. Used directly for raw
// digests and, per design note 9, for any field whose on-disk byte order is
// big-endian (built via BEUint32/BEUint64 below).
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, raw: cp}
}

// String constructs a NUL-terminated UTF-8 string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Tuple constructs a fixed-arity ordered sequence of values.
func Tuple(vs ...Value) Value { return Value{kind: KindTuple, tuple: vs} }

// Array constructs a variable-length ordered sequence of values.
func Array(vs []Value) Value { return Value{kind: KindArray, arr: vs} }

// MapValue wraps a Map as a Value.
func MapValue(m *Map) Value { return Value{kind: KindMap, m: m} }

// BEUint32 encodes n as a big-endian 4-byte array, for 32-bit metadata
// fields whose on-disk byte order is big-endian. (xa.cache-version is not
// one of them: it is written as a little-endian Uint32.)
func BEUint32(n uint32) Value {
	return Bytes([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
}

// BEUint64 encodes n as a big-endian 8-byte array, for metadata keys such as
// ostree.commit.timestamp2, xa.data's size fields, or eds's total_bytes.
func BEUint64(n uint64) Value {
	return Bytes([]byte{
		byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32),
		byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
	})
}

// Bool encodes a boolean as a single byte (0 or 1); the framing has no
// dedicated boolean kind, so boolean metadata keys ride on KindUint8.
func Bool(b bool) Value {
	if b {
		return Uint8(1)
	}
	return Uint8(0)
}

// BoolValue decodes a Uint8 value built with Bool back into a bool. Any
// nonzero byte is true.
func BoolValue(v Value) (bool, error) {
	n, err := v.AsUint64()
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// AsUint64 returns the numeric value for any fixed-width unsigned kind.
func (v Value) AsUint64() (uint64, error) {
	switch v.kind {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return v.u, nil
	default:
		return 0, fmt.Errorf("variant: AsUint64 on kind %d", v.kind)
	}
}

// AsBytes returns the raw bytes of a Bytes value.
func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, fmt.Errorf("variant: AsBytes on kind %d", v.kind)
	}
	out := make([]byte, len(v.raw))
	copy(out, v.raw)
	return out, nil
}

// BEUint32Value decodes a big-endian 4-byte Bytes value back into a uint32.
func BEUint32Value(v Value) (uint32, error) {
	b, err := v.AsBytes()
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("variant: BEUint32Value: want 4 bytes got %d", len(b))
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// BEUint64Value decodes a big-endian 8-byte Bytes value back into a uint64.
func BEUint64Value(v Value) (uint64, error) {
	b, err := v.AsBytes()
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("variant: BEUint64Value: want 8 bytes got %d", len(b))
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n, nil
}

// AsString returns the string held by a String value.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("variant: AsString on kind %d", v.kind)
	}
	return v.str, nil
}

// AsTuple returns the fields of a Tuple value.
func (v Value) AsTuple() ([]Value, error) {
	if v.kind != KindTuple {
		return nil, fmt.Errorf("variant: AsTuple on kind %d", v.kind)
	}
	return v.tuple, nil
}

// AsArray returns the elements of an Array value.
func (v Value) AsArray() ([]Value, error) {
	if v.kind != KindArray {
		return nil, fmt.Errorf("variant: AsArray on kind %d", v.kind)
	}
	return v.arr, nil
}

// AsMap returns the sorted map held by a Map value.
func (v Value) AsMap() (*Map, error) {
	if v.kind != KindMap {
		return nil, fmt.Errorf("variant: AsMap on kind %d", v.kind)
	}
	return v.m, nil
}

// Map is a sorted string-keyed associative array. It is backed by
// emirpasic/gods' red-black tree map so that iteration is always byte-wise
// ascending by key, the ordering §4.1 requires of every framed map (and
// which makes the sdiff binary diff engine effective).
type Map struct {
	t *treemap.Map
}

// NewMap returns an empty sorted map.
func NewMap() *Map {
	return &Map{t: treemap.NewWithStringComparator()}
}

// Put inserts or overwrites the value at key.
func (m *Map) Put(key string, v Value) {
	m.t.Put(key, v)
}

// Get returns the value at key, if present.
func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.t.Get(key)
	if !ok {
		return Value{}, false
	}
	return v.(Value), true
}

// Delete removes key from the map, if present.
func (m *Map) Delete(key string) {
	m.t.Remove(key)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return m.t.Size()
}

// Keys returns the keys in byte-wise ascending order.
func (m *Map) Keys() []string {
	raw := m.t.Keys()
	out := make([]string, len(raw))
	for i, k := range raw {
		out[i] = k.(string)
	}
	return out
}

// Each iterates entries in byte-wise ascending key order.
func (m *Map) Each(fn func(key string, v Value)) {
	it := m.t.Iterator()
	for it.Next() {
		fn(it.Key().(string), it.Value().(Value))
	}
}
