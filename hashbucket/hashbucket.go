// Package hashbucket implements the HashBucket index family: structured keys
// (string, int64, or tuple-of-strings) mapped to sorted, deduplicated
// record-id lists, organized into hash buckets addressed by BLAKE3-256.
package hashbucket

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/rpcpool/bagz-index/bagfile"
	"github.com/rpcpool/bagz-index/bagzerrors"
	"github.com/rpcpool/bagz-index/keys"
	"github.com/rpcpool/bagz-index/wire"
	"lukechampine.com/blake3"
)

// ConfigTypeTag is the descriptor "type" value for HashBucket indices.
const ConfigTypeTag = "hashbucket"

// Config is the immutable descriptor for a HashBucket index.
type Config struct {
	AvgBucketSize float64 `json:"avg_bucket_size"`
	KeyProtoName  string  `json:"key_proto_name"`
}

// Type returns the registry tag for this config, per spec §6.
func (c *Config) Type() string { return ConfigTypeTag }

// Equal reports whether two configs are deeply equal, as required before a
// merge is permitted (spec §4.D).
func (c *Config) Equal(other *Config) bool {
	return other != nil && c.AvgBucketSize == other.AvgBucketSize && c.KeyProtoName == other.KeyProtoName
}

// NumBuckets computes the number of buckets for a key set of size
// numDistinctKeys, per spec §3: max(1, floor(K / avg_bucket_size)).
func (c *Config) NumBuckets(numDistinctKeys int) int {
	n := int(float64(numDistinctKeys) / c.AvgBucketSize)
	if n < 1 {
		n = 1
	}
	return n
}

// HashKey returns the bucket index for the given canonical key bytes: the
// little-endian integer interpretation of BLAKE3-256 over key, reduced
// modulo numBuckets. The full 256-bit hash is used (not truncated to 64
// bits) to stay faithful to spec §3's "little-endian integer interpretation
// of BLAKE3-256".
func (c *Config) HashKey(key []byte, numBuckets int) int {
	sum := blake3.Sum256(key)
	// Interpret as little-endian: reverse the digest before treating it as a
	// big-endian big.Int, since math/big has no native little-endian reader.
	reversed := make([]byte, len(sum))
	for i, b := range sum {
		reversed[len(sum)-1-i] = b
	}
	h := new(big.Int).SetBytes(reversed)
	n := big.NewInt(int64(numBuckets))
	return int(new(big.Int).Mod(h, n).Int64())
}

// record is the in-memory accumulation of one key's record ids.
type record struct {
	key []byte
	ids map[int64]struct{}
}

// Writer accumulates key -> record-id-set entries and flushes them, once,
// into a bag file laid out as described in spec §4.D. Writer is single-use,
// single-threaded: construct with NewWriter, call Add any number of times,
// then Write exactly once.
type Writer struct {
	config *Config
	data   map[string]*record
}

// NewWriter creates an empty HashBucket writer for the given config.
func NewWriter(config *Config) *Writer {
	return &Writer{config: config, data: make(map[string]*record)}
}

// Add inserts (or unions into an existing entry) a key and its record ids.
// It returns ErrMixedKeyVariant if key's variant differs from the config's
// KeyProtoName.
func (w *Writer) Add(key keys.Key, recordIDs []int64) error {
	if v := key.Variant(); v != w.config.KeyProtoName {
		return fmt.Errorf("%w: got %s, index uses %s", bagzerrors.ErrMixedKeyVariant, v, w.config.KeyProtoName)
	}
	kb := key.Serialize()
	rec, ok := w.data[string(kb)]
	if !ok {
		rec = &record{key: kb, ids: make(map[int64]struct{}, len(recordIDs))}
		w.data[string(kb)] = rec
	}
	for _, id := range recordIDs {
		rec.ids[id] = struct{}{}
	}
	return nil
}

// Write flushes the accumulated keys to bagzPath as a complete HashBucket
// index: one bucket entry per bucket index in [0, num_buckets), followed by
// the JSON descriptor.
func (w *Writer) Write(bagzPath string) error {
	numBuckets := w.config.NumBuckets(len(w.data))

	bucketToKeys := make([][][]byte, numBuckets)
	for kb := range w.data {
		idx := w.config.HashKey([]byte(kb), numBuckets)
		bucketToKeys[idx] = append(bucketToKeys[idx], []byte(kb))
	}
	for _, ks := range bucketToKeys {
		sort.Slice(ks, func(i, j int) bool { return bytes.Compare(ks[i], ks[j]) < 0 })
	}

	bw, err := bagfile.NewWriter(bagzPath)
	if err != nil {
		return err
	}

	for i := 0; i < numBuckets; i++ {
		ks := bucketToKeys[i]
		if len(ks) == 0 {
			if err := bw.Append(nil); err != nil {
				return err
			}
			continue
		}
		bucket := wire.HashBucket{Records: make([]wire.HashRecord, 0, len(ks))}
		for _, kb := range ks {
			rec := w.data[string(kb)]
			bucket.Records = append(bucket.Records, wire.HashRecord{
				Key:       rec.key,
				RecordIDs: sortedIDs(rec.ids),
			})
		}
		if err := bw.Append(bucket.Marshal()); err != nil {
			return err
		}
	}

	descriptor, err := encodeDescriptor(w.config)
	if err != nil {
		return err
	}
	if err := bw.Append(descriptor); err != nil {
		return err
	}
	return bw.Close()
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reader performs keyed lookups against a closed HashBucket index.
type Reader struct {
	config     *Config
	bag        *bagfile.Reader
	numBuckets int
}

// NewReader wraps an already-open bag file reader whose trailing descriptor
// has been parsed into config.
func NewReader(config *Config, bag *bagfile.Reader) *Reader {
	return &Reader{config: config, bag: bag, numBuckets: bag.Len() - 1}
}

// Lookup returns the sorted, deduplicated record ids associated with key, or
// nil with ok=false if the key is absent.
func (r *Reader) Lookup(key keys.Key) (ids []int64, ok bool) {
	kb := key.Serialize()
	bucketIdx := r.config.HashKey(kb, r.numBuckets)

	data, err := r.bag.Get(bucketIdx)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	var bucket wire.HashBucket
	if err := bucket.Unmarshal(data); err != nil {
		return nil, false
	}
	for _, rec := range bucket.Records {
		if bytes.Equal(rec.Key, kb) {
			return rec.RecordIDs, true
		}
	}
	return nil, false
}

// Merge combines one or more HashBucket indices sharing an identical config
// into outputPath, per spec §4.D. It is implemented as a two-pass algorithm:
// the first pass collects the union of distinct keys and, per key, the
// (input index, bucket index) locations it was seen at; the second pass
// recomputes the bucket layout for the merged key set and re-fetches each
// key's source buckets to union its record ids.
func Merge(config *Config, inputPaths []string, outputPath string) error {
	type location struct {
		inputIdx, bucketIdx int
	}

	readers := make([]*bagfile.Reader, len(inputPaths))
	for i, p := range inputPaths {
		r, err := bagfile.Open(p)
		if err != nil {
			return fmt.Errorf("hashbucket: open merge input %s: %w", p, err)
		}
		defer r.Close()
		readers[i] = r
	}

	keyLocations := make(map[string][]location)
	var orderedKeys []string
	for inputIdx, r := range readers {
		numBuckets := r.Len() - 1
		for b := 0; b < numBuckets; b++ {
			data, err := r.Get(b)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				continue
			}
			var bucket wire.HashBucket
			if err := bucket.Unmarshal(data); err != nil {
				return err
			}
			for _, rec := range bucket.Records {
				k := string(rec.Key)
				if _, seen := keyLocations[k]; !seen {
					orderedKeys = append(orderedKeys, k)
				}
				keyLocations[k] = append(keyLocations[k], location{inputIdx, b})
			}
		}
	}

	numBuckets := config.NumBuckets(len(orderedKeys))
	bucketToKeys := make([][]string, numBuckets)
	for _, k := range orderedKeys {
		idx := config.HashKey([]byte(k), numBuckets)
		bucketToKeys[idx] = append(bucketToKeys[idx], k)
	}
	for _, ks := range bucketToKeys {
		sort.Strings(ks)
	}

	bw, err := bagfile.NewWriter(outputPath)
	if err != nil {
		return err
	}

	for i := 0; i < numBuckets; i++ {
		ks := bucketToKeys[i]
		if len(ks) == 0 {
			if err := bw.Append(nil); err != nil {
				return err
			}
			continue
		}
		bucket := wire.HashBucket{Records: make([]wire.HashRecord, 0, len(ks))}
		for _, k := range ks {
			idSet := make(map[int64]struct{})
			var found bool
			for _, loc := range keyLocations[k] {
				data, err := readers[loc.inputIdx].Get(loc.bucketIdx)
				if err != nil {
					return err
				}
				var srcBucket wire.HashBucket
				if err := srcBucket.Unmarshal(data); err != nil {
					return err
				}
				for _, rec := range srcBucket.Records {
					if string(rec.Key) == k {
						found = true
						for _, id := range rec.RecordIDs {
							idSet[id] = struct{}{}
						}
						break
					}
				}
			}
			if !found {
				return fmt.Errorf("%w: key not found while merging bucket %d", bagzerrors.ErrCorruptIndex, i)
			}
			bucket.Records = append(bucket.Records, wire.HashRecord{
				Key:       []byte(k),
				RecordIDs: sortedIDs(idSet),
			})
		}
		if err := bw.Append(bucket.Marshal()); err != nil {
			return err
		}
	}

	descriptor, err := encodeDescriptor(config)
	if err != nil {
		return err
	}
	if err := bw.Append(descriptor); err != nil {
		return err
	}
	return bw.Close()
}
