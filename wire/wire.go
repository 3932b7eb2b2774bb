// Package wire hand-rolls the structured-record payloads that every bagz
// index bucket/posting-list entry is serialized as. The encoding preserves
// protobuf tag numbers for interoperability (spec §6) but is written against
// google.golang.org/protobuf's low-level encoding/protowire package rather
// than generated protobuf code: the payload schemas are fixed (HashBucket,
// HashRecord, PostingList, and the three key messages), so a thin hand-rolled
// codec is simpler than carrying a .proto file and code generation for six
// messages that never change shape.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field tag numbers, named after the protobuf messages they encode, kept
// stable per spec §6.
const (
	hashBucketRecordsTag = protowire.Number(1)

	hashRecordKeyTag       = protowire.Number(1)
	hashRecordRecordIDsTag = protowire.Number(2)

	postingListRecordIDsTag     = protowire.Number(1)
	postingListRecordOffsetsTag = protowire.Number(2)

	stringKeyValueTag      = protowire.Number(1)
	int64KeyValueTag       = protowire.Number(1)
	tupleStringKeyValueTag = protowire.Number(1)
)

// HashRecord is the wire-level {key, record_ids} pair.
type HashRecord struct {
	Key       []byte
	RecordIDs []int64
}

// HashBucket is a wire-level ordered sequence of HashRecord.
type HashBucket struct {
	Records []HashRecord
}

// PostingList is the wire-level {record_ids, record_offsets} pair.
type PostingList struct {
	RecordIDs     []int64
	RecordOffsets []int64
}

func appendPackedVarint(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var inner []byte
	for _, v := range vs {
		inner = protowire.AppendVarint(inner, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

func consumePackedVarint(b []byte) ([]int64, error) {
	var out []int64
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: invalid packed varint")
		}
		out = append(out, int64(v))
		b = b[n:]
	}
	return out, nil
}

// Marshal serializes a HashRecord using protobuf wire tags 1 (key, bytes) and
// 2 (record_ids, repeated int64 packed).
func (r *HashRecord) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, hashRecordKeyTag, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Key)
	b = appendPackedVarint(b, hashRecordRecordIDsTag, r.RecordIDs)
	return b
}

// Unmarshal parses a HashRecord and resets the receiver's fields.
func (r *HashRecord) Unmarshal(data []byte) error {
	r.Key = nil
	r.RecordIDs = nil
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("wire: invalid HashRecord tag")
		}
		data = data[n:]
		switch {
		case num == hashRecordKeyTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("wire: invalid HashRecord.key")
			}
			r.Key = append([]byte(nil), v...)
			data = data[n:]
		case num == hashRecordRecordIDsTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("wire: invalid HashRecord.record_ids")
			}
			ids, err := consumePackedVarint(v)
			if err != nil {
				return err
			}
			r.RecordIDs = ids
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("wire: invalid HashRecord field %d", num)
			}
			data = data[n:]
		}
	}
	return nil
}

// Marshal serializes a HashBucket: a sequence of length-delimited HashRecord
// submessages under tag 1, in the order given.
func (b *HashBucket) Marshal() []byte {
	var out []byte
	for i := range b.Records {
		rec := b.Records[i].Marshal()
		out = protowire.AppendTag(out, hashBucketRecordsTag, protowire.BytesType)
		out = protowire.AppendBytes(out, rec)
	}
	return out
}

// Unmarshal parses a HashBucket.
func (b *HashBucket) Unmarshal(data []byte) error {
	b.Records = nil
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("wire: invalid HashBucket tag")
		}
		data = data[n:]
		if num == hashBucketRecordsTag && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("wire: invalid HashBucket.records")
			}
			var rec HashRecord
			if err := rec.Unmarshal(v); err != nil {
				return err
			}
			b.Records = append(b.Records, rec)
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return fmt.Errorf("wire: invalid HashBucket field %d", num)
		}
		data = data[n:]
	}
	return nil
}

// Marshal serializes a PostingList using tags 1 (record_ids) and 2
// (record_offsets), both packed repeated int64.
func (p *PostingList) Marshal() []byte {
	var b []byte
	b = appendPackedVarint(b, postingListRecordIDsTag, p.RecordIDs)
	b = appendPackedVarint(b, postingListRecordOffsetsTag, p.RecordOffsets)
	return b
}

// Unmarshal parses a PostingList.
func (p *PostingList) Unmarshal(data []byte) error {
	p.RecordIDs = nil
	p.RecordOffsets = nil
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("wire: invalid PostingList tag")
		}
		data = data[n:]
		switch {
		case num == postingListRecordIDsTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("wire: invalid PostingList.record_ids")
			}
			ids, err := consumePackedVarint(v)
			if err != nil {
				return err
			}
			p.RecordIDs = ids
			data = data[n:]
		case num == postingListRecordOffsetsTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("wire: invalid PostingList.record_offsets")
			}
			offs, err := consumePackedVarint(v)
			if err != nil {
				return err
			}
			p.RecordOffsets = offs
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("wire: invalid PostingList field %d", num)
			}
			data = data[n:]
		}
	}
	return nil
}

// MarshalStringKey encodes a StringKey{value: tag 1, string}.
func MarshalStringKey(value string) []byte {
	var b []byte
	b = protowire.AppendTag(b, stringKeyValueTag, protowire.BytesType)
	b = protowire.AppendString(b, value)
	return b
}

// UnmarshalStringKey decodes a StringKey payload.
func UnmarshalStringKey(data []byte) (string, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", fmt.Errorf("wire: invalid StringKey tag")
		}
		data = data[n:]
		if num == stringKeyValueTag && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", fmt.Errorf("wire: invalid StringKey.value")
			}
			return v, nil
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return "", fmt.Errorf("wire: invalid StringKey field %d", num)
		}
		data = data[n:]
	}
	return "", nil
}

// MarshalInt64Key encodes an Int64Key{value: tag 1, int64 varint}.
func MarshalInt64Key(value int64) []byte {
	var b []byte
	b = protowire.AppendTag(b, int64KeyValueTag, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(value))
	return b
}

// UnmarshalInt64Key decodes an Int64Key payload.
func UnmarshalInt64Key(data []byte) (int64, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, fmt.Errorf("wire: invalid Int64Key tag")
		}
		data = data[n:]
		if num == int64KeyValueTag && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, fmt.Errorf("wire: invalid Int64Key.value")
			}
			return int64(v), nil
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return 0, fmt.Errorf("wire: invalid Int64Key field %d", num)
		}
		data = data[n:]
	}
	return 0, nil
}

// MarshalTupleStringKey encodes a TupleStringKey{value: tag 1, repeated string}.
func MarshalTupleStringKey(values []string) []byte {
	var b []byte
	for _, v := range values {
		b = protowire.AppendTag(b, tupleStringKeyValueTag, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

// UnmarshalTupleStringKey decodes a TupleStringKey payload.
func UnmarshalTupleStringKey(data []byte) ([]string, error) {
	var out []string
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wire: invalid TupleStringKey tag")
		}
		data = data[n:]
		if num == tupleStringKeyValueTag && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid TupleStringKey.value")
			}
			out = append(out, v)
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, fmt.Errorf("wire: invalid TupleStringKey field %d", num)
		}
		data = data[n:]
	}
	return out, nil
}
