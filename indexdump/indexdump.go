// Package indexdump walks a closed index and emits a human-readable
// bucket/posting summary, dispatching on the descriptor's declared type.
package indexdump

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/rpcpool/bagz-index/bagfile"
	"github.com/rpcpool/bagz-index/bagzerrors"
	"github.com/rpcpool/bagz-index/hashbucket"
	"github.com/rpcpool/bagz-index/keys"
	"github.com/rpcpool/bagz-index/trigram"
	"github.com/rpcpool/bagz-index/wire"
)

// Dump opens bagzPath, parses its trailing descriptor, and writes a
// human-readable summary of its contents to w.
func Dump(w io.Writer, bagzPath string) error {
	bag, err := bagfile.Open(bagzPath)
	if err != nil {
		return err
	}
	defer bag.Close()

	n := bag.Len()
	if n == 0 {
		return fmt.Errorf("%w: empty bag file has no descriptor", bagzerrors.ErrCorruptIndex)
	}
	descriptorData, err := bag.Get(n - 1)
	if err != nil {
		return err
	}

	var tag struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(descriptorData, &tag); err != nil {
		return fmt.Errorf("indexdump: decode descriptor type tag: %w", err)
	}

	switch tag.Type {
	case hashbucket.ConfigTypeTag:
		config, err := hashbucket.DecodeDescriptor(descriptorData)
		if err != nil {
			return err
		}
		return dumpHashBucket(w, bag, config)
	case trigram.ConfigTypeTag:
		config, err := trigram.DecodeDescriptor(descriptorData)
		if err != nil {
			return err
		}
		return dumpTrigram(w, bag, config)
	default:
		return fmt.Errorf("%w: %s", bagzerrors.ErrUnknownConfigType, tag.Type)
	}
}

func dumpHashBucket(w io.Writer, bag *bagfile.Reader, config *hashbucket.Config) error {
	fmt.Fprintf(w, "hashbucket index: key_proto_name=%s avg_bucket_size=%g\n", config.KeyProtoName, config.AvgBucketSize)
	numBuckets := bag.Len() - 1
	for i := 0; i < numBuckets; i++ {
		data, err := bag.Get(i)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		var bucket wire.HashBucket
		if err := bucket.Unmarshal(data); err != nil {
			return fmt.Errorf("indexdump: bucket %d: %w", i, err)
		}
		for _, rec := range bucket.Records {
			key, err := keys.Deserialize(config.KeyProtoName, rec.Key)
			if err != nil {
				return fmt.Errorf("indexdump: bucket %d: %w", i, err)
			}
			fmt.Fprintf(w, "  bucket %d: %v -> %v\n", i, keyDisplay(key), rec.RecordIDs)
		}
	}
	return nil
}

func keyDisplay(k keys.Key) any {
	switch v := k.(type) {
	case keys.String:
		return string(v)
	case keys.Int64:
		return int64(v)
	case keys.TupleString:
		return []string(v)
	default:
		return k
	}
}

func dumpTrigram(w io.Writer, bag *bagfile.Reader, config *trigram.Config) error {
	fmt.Fprintf(w, "trigram index: character_set=%q ngram_size=%d normalize=%v store_positions=%v delta_encode_record_ids=%v\n",
		config.CharacterSet, config.NgramSize, config.Normalize, config.StorePositions, config.DeltaEncodeRecordIDs)

	numSlots := bag.Len() - 1
	for i := 0; i < numSlots; i++ {
		data, err := bag.Get(i)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		var pl wire.PostingList
		if err := pl.Unmarshal(data); err != nil {
			return fmt.Errorf("indexdump: slot %d: %w", i, err)
		}
		ids := pl.RecordIDs
		if config.DeltaEncodeRecordIDs {
			ids = deltaDecode(ids)
		}
		if config.StorePositions {
			fmt.Fprintf(w, "  slot %d: record_ids=%v record_offsets=%v\n", i, ids, pl.RecordOffsets)
		} else {
			fmt.Fprintf(w, "  slot %d: record_ids=%v\n", i, ids)
		}
	}
	return nil
}

func deltaDecode(ids []int64) []int64 {
	if len(ids) == 0 {
		return ids
	}
	out := make([]int64, len(ids))
	out[0] = ids[0]
	for i := 1; i < len(ids); i++ {
		out[i] = out[i-1] + ids[i]
	}
	return out
}
