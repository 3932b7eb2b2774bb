package indexbuild

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpcpool/bagz-index/bagfile"
	"github.com/rpcpool/bagz-index/indexconfig"
	"github.com/rpcpool/bagz-index/keys"
	"github.com/rpcpool/bagz-index/trigram"
	"github.com/rpcpool/bagz-index/wire"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
  "record_types": {
    "Person": [
      {"name": "name", "kind": "string"},
      {"name": "bio", "kind": "string"}
    ]
  }
}`

func writeInputBag(t *testing.T, records []map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bagz")
	w, err := bagfile.NewWriter(path)
	require.NoError(t, err)
	for _, r := range records {
		data, err := json.Marshal(r)
		require.NoError(t, err)
		require.NoError(t, w.Append(data))
	}
	require.NoError(t, w.Close())
	return path
}

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(personSchema), 0o644))
	return path
}

func TestGenerateIndexHashBucket(t *testing.T) {
	input := writeInputBag(t, []map[string]any{
		{"name": "alice", "bio": "likes go"},
		{"name": "bob", "bio": "likes rust"},
		{"name": "alice", "bio": "same name twice"},
	})
	schema := writeSchema(t)
	output := filepath.Join(t.TempDir(), "out.bagz")

	err := GenerateIndex(GenerateConfig{
		InputBagzPath:    input,
		OutputBagzPath:   output,
		ProtoFile:        schema,
		RecordTypeName:   "Person",
		KeyFieldPatterns: []string{"name"},
	})
	require.NoError(t, err)

	bag, err := bagfile.Open(output)
	require.NoError(t, err)
	defer bag.Close()

	c, err := indexconfig.OpenDescriptor(output)
	require.NoError(t, err)
	reader, err := indexconfig.MakeReader(c, bag)
	require.NoError(t, err)

	hr := reader.(interface {
		Lookup(key keys.Key) ([]int64, bool)
	})
	ids, ok := hr.Lookup(keys.String("alice"))
	require.True(t, ok)
	require.Equal(t, []int64{0, 2}, ids)

	ids, ok = hr.Lookup(keys.String("bob"))
	require.True(t, ok)
	require.Equal(t, []int64{1}, ids)
}

func TestGenerateIndexTrigram(t *testing.T) {
	input := writeInputBag(t, []map[string]any{
		{"name": "alice", "bio": "hello world"},
		{"name": "bob", "bio": "world of wonders"},
	})
	schema := writeSchema(t)
	output := filepath.Join(t.TempDir(), "out.bagz")

	err := GenerateIndex(GenerateConfig{
		InputBagzPath:    input,
		OutputBagzPath:   output,
		ProtoFile:        schema,
		RecordTypeName:   "Person",
		KeyFieldPatterns: []string{"bio"},
		Trigram:          true,
	})
	require.NoError(t, err)

	bag, err := bagfile.Open(output)
	require.NoError(t, err)
	defer bag.Close()

	c, err := indexconfig.OpenDescriptor(output)
	require.NoError(t, err)
	reader, err := indexconfig.MakeReader(c, bag)
	require.NoError(t, err)
	tr := reader.(*trigram.Reader)

	ids, err := tr.Search("world")
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, ids)
}

func writeSchemaFile(t *testing.T, schemaJSON string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(schemaJSON), 0o644))
	return path
}

// TestGenerateIndexTrigramDedupesRepeatedValuePerRecord guards the
// distinct-projected-value invariant: a repeated field containing a literal
// duplicate, selected alongside an overlapping key-field pattern, must still
// add each (record id, offset) pair to a positional posting list exactly
// once per occurrence position in the normalized text, not once per
// selecting path/occurrence in the projection.
func TestGenerateIndexTrigramDedupesRepeatedValuePerRecord(t *testing.T) {
	schema := writeSchemaFile(t, `{
	  "record_types": {
	    "Person": [
	      {"name": "bio", "kind": "string"},
	      {"name": "tags", "kind": "string", "repeated": true}
	    ]
	  }
	}`)
	input := writeInputBag(t, []map[string]any{
		{"bio": "abcdef", "tags": []string{"abcdef"}},
	})
	output := filepath.Join(t.TempDir(), "out.bagz")

	err := GenerateIndex(GenerateConfig{
		InputBagzPath:    input,
		OutputBagzPath:   output,
		ProtoFile:        schema,
		RecordTypeName:   "Person",
		KeyFieldPatterns: []string{"bio", "tags"},
		Trigram:          true,
	})
	require.NoError(t, err)

	bag, err := bagfile.Open(output)
	require.NoError(t, err)
	defer bag.Close()

	// Every posting slot's (record id, offset) pairs must be distinct:
	// "bio" and "tags" both project the same text for the same record, so
	// without per-record dedup each trigram occurrence would be added
	// twice.
	for slot := 0; slot < bag.Len()-1; slot++ {
		data, err := bag.Get(slot)
		require.NoError(t, err)
		if len(data) == 0 {
			continue
		}
		var pl wire.PostingList
		require.NoError(t, pl.Unmarshal(data))
		rids := deltaDecodeForTest(pl.RecordIDs)
		seen := make(map[[2]int64]struct{})
		for i, rid := range rids {
			pair := [2]int64{rid, pl.RecordOffsets[i]}
			_, dup := seen[pair]
			require.Falsef(t, dup, "slot %d: duplicate (record_id, offset) pair %v", slot, pair)
			seen[pair] = struct{}{}
		}
	}
}

// deltaDecodeForTest mirrors trigram's unexported deltaDecode, since
// indexbuild.GenerateIndex always builds trigram indices with
// trigramDeltaEncodeRecordIDs set.
func deltaDecodeForTest(ids []int64) []int64 {
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

func TestGenerateIndexHashBucketInt64Key(t *testing.T) {
	schema := writeSchemaFile(t, `{
	  "record_types": {
	    "Item": [
	      {"name": "id", "kind": "int64"}
	    ]
	  }
	}`)
	input := writeInputBag(t, []map[string]any{
		{"id": 7},
		{"id": 8},
		{"id": 7},
	})
	output := filepath.Join(t.TempDir(), "out.bagz")

	err := GenerateIndex(GenerateConfig{
		InputBagzPath:    input,
		OutputBagzPath:   output,
		ProtoFile:        schema,
		RecordTypeName:   "Item",
		KeyFieldPatterns: []string{"id"},
	})
	require.NoError(t, err)

	bag, err := bagfile.Open(output)
	require.NoError(t, err)
	defer bag.Close()

	c, err := indexconfig.OpenDescriptor(output)
	require.NoError(t, err)
	reader, err := indexconfig.MakeReader(c, bag)
	require.NoError(t, err)

	hr := reader.(interface {
		Lookup(key keys.Key) ([]int64, bool)
	})
	ids, ok := hr.Lookup(keys.Int64(7))
	require.True(t, ok)
	require.Equal(t, []int64{0, 2}, ids)

	ids, ok = hr.Lookup(keys.Int64(8))
	require.True(t, ok)
	require.Equal(t, []int64{1}, ids)
}

func TestGenerateIndexNoMatchingPatternFails(t *testing.T) {
	input := writeInputBag(t, []map[string]any{{"name": "alice", "bio": "hi"}})
	schema := writeSchema(t)
	output := filepath.Join(t.TempDir(), "out.bagz")

	err := GenerateIndex(GenerateConfig{
		InputBagzPath:    input,
		OutputBagzPath:   output,
		ProtoFile:        schema,
		RecordTypeName:   "Person",
		KeyFieldPatterns: []string{"nonexistent"},
	})
	require.Error(t, err)
}
