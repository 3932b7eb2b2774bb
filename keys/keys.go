// Package keys implements the canonical byte serialization for the bagz-index
// key value model: strings, signed 64-bit integers, and ordered tuples of
// strings. The encoding is stable and collision-free within a variant, so two
// distinct-by-value keys of the same variant never collide in their
// serialized bytes. Encodings of different variants are not tagged and can
// coincide (an 8-byte String and an Int64 can serialize to the same bytes);
// a HashBucket index holds keys of a single variant only, since its writer
// rejects keys whose variant differs from the config's.
package keys

import (
	"encoding/binary"
	"fmt"
)

// Variant names as they appear in index descriptors, mirroring the protobuf
// message names the reference implementation keys its registry by.
const (
	VariantString      = "bagz_index.keys.StringKey"
	VariantInt64       = "bagz_index.keys.Int64Key"
	VariantTupleString = "bagz_index.keys.TupleStringKey"
)

// Key is a typed, hashable, byte-serializable value admitted as an index key.
type Key interface {
	// Variant returns the stable variant name of this key.
	Variant() string
	// Serialize returns the canonical byte encoding of this key.
	Serialize() []byte
}

// String is a UTF-8 string key.
type String string

func (String) Variant() string { return VariantString }

// Serialize encodes the raw UTF-8 bytes verbatim. Because a StringKey never
// shares a bucket with an Int64Key or TupleStringKey (all keys in one index
// share a single variant, enforced by the writer), a bare byte passthrough is
// sufficient to keep same-variant keys distinct.
func (s String) Serialize() []byte { return []byte(s) }

// Int64 is a signed 64-bit integer key.
type Int64 int64

func (Int64) Variant() string { return VariantInt64 }

// Serialize encodes the integer as 8 big-endian bytes of its two's-complement
// form, so that byte-wise ordering of serialized keys matches numeric
// ordering among non-negative values (negative values sort after all
// non-negative ones); the encoding is a bijection and so collision-free.
func (i Int64) Serialize() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(i))
	return buf[:]
}

// TupleString is an ordered sequence of UTF-8 strings.
type TupleString []string

func (TupleString) Variant() string { return VariantTupleString }

// Serialize length-prefixes each element with a 4-byte big-endian count so
// that ("ab", "c") and ("a", "bc") never collide.
func (t TupleString) Serialize() []byte {
	out := make([]byte, 0, 4*len(t))
	var lenBuf [4]byte
	for _, s := range t {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		out = append(out, lenBuf[:]...)
		out = append(out, s...)
	}
	return out
}

// Deserialize reconstructs a Key of the given variant from its canonical
// bytes. It is the inverse of Serialize for each variant.
func Deserialize(variant string, data []byte) (Key, error) {
	switch variant {
	case VariantString:
		return String(data), nil
	case VariantInt64:
		if len(data) != 8 {
			return nil, fmt.Errorf("keys: Int64Key must be 8 bytes, got %d", len(data))
		}
		return Int64(int64(binary.BigEndian.Uint64(data))), nil
	case VariantTupleString:
		var out TupleString
		for len(data) > 0 {
			if len(data) < 4 {
				return nil, fmt.Errorf("keys: truncated TupleStringKey length prefix")
			}
			n := binary.BigEndian.Uint32(data[:4])
			data = data[4:]
			if uint32(len(data)) < n {
				return nil, fmt.Errorf("keys: truncated TupleStringKey element")
			}
			out = append(out, string(data[:n]))
			data = data[n:]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("keys: unknown key variant %q", variant)
	}
}

// NewString constructs a String key from an arbitrary value of the
// appropriate underlying type, the way a key-class factory would in the
// reference implementation.
func NewString(value string) Key { return String(value) }

// NewInt64 constructs an Int64 key.
func NewInt64(value int64) Key { return Int64(value) }

// NewTupleString constructs a TupleString key.
func NewTupleString(value []string) Key {
	return TupleString(append([]string(nil), value...))
}

// NewForVariant constructs a Key of the named variant from an arbitrary
// projected field value, mirroring the reference implementation's
// `key_proto_class(value=key)` pattern at the build-orchestrator boundary.
func NewForVariant(variant string, value any) (Key, error) {
	switch variant {
	case VariantString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("keys: expected string value for %s, got %T", variant, value)
		}
		return String(s), nil
	case VariantInt64:
		switch v := value.(type) {
		case int64:
			return Int64(v), nil
		case int:
			return Int64(int64(v)), nil
		default:
			return nil, fmt.Errorf("keys: expected int64 value for %s, got %T", variant, value)
		}
	case VariantTupleString:
		v, ok := value.([]string)
		if !ok {
			return nil, fmt.Errorf("keys: expected []string value for %s, got %T", variant, value)
		}
		return NewTupleString(v), nil
	default:
		return nil, fmt.Errorf("keys: unknown key variant %q", variant)
	}
}
