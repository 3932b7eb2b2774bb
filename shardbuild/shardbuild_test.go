package shardbuild

import (
	"path/filepath"
	"testing"

	"github.com/rpcpool/bagz-index/bagfile"
	"github.com/rpcpool/bagz-index/hashbucket"
	"github.com/rpcpool/bagz-index/indexconfig"
	"github.com/rpcpool/bagz-index/keys"
	"github.com/rpcpool/bagz-index/trigram"
	"github.com/stretchr/testify/require"
)

func TestKeyBuilderRotatesShardsAndMerges(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bagz")
	config := &hashbucket.Config{AvgBucketSize: 0.9, KeyProtoName: keys.VariantString}

	b, err := NewKeyBuilder(config, out, 2) // tiny shard limit to force rotation
	require.NoError(t, err)

	require.NoError(t, b.AddKey(keys.String("a"), []int64{1}))
	require.NoError(t, b.AddKey(keys.String("b"), []int64{2}))
	require.NoError(t, b.AddKey(keys.String("a"), []int64{3}))
	require.NoError(t, b.AddKey(keys.String("c"), []int64{4}))
	require.NoError(t, b.Close())

	bag, err := bagfile.Open(out)
	require.NoError(t, err)
	defer bag.Close()

	c, err := indexconfig.OpenDescriptor(out)
	require.NoError(t, err)
	reader, err := indexconfig.MakeReader(c, bag)
	require.NoError(t, err)
	hr := reader.(*hashbucket.Reader)

	ids, ok := hr.Lookup(keys.String("a"))
	require.True(t, ok)
	require.Equal(t, []int64{1, 3}, ids)

	ids, ok = hr.Lookup(keys.String("b"))
	require.True(t, ok)
	require.Equal(t, []int64{2}, ids)
}

func TestKeyBuilderZeroRecordsProducesValidEmptyIndex(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.bagz")
	config := &hashbucket.Config{AvgBucketSize: 0.9, KeyProtoName: keys.VariantString}

	b, err := NewKeyBuilder(config, out, DefaultShardLimit)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	bag, err := bagfile.Open(out)
	require.NoError(t, err)
	defer bag.Close()
	require.Equal(t, 2, bag.Len()) // 1 empty bucket + descriptor
}

func TestTextBuilderRotatesShardsAndMerges(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bagz")
	config := trigram.NewConfig("abcdefghijklmnopqrstuvwxyz", 3, true, true, true)

	b, err := NewTextBuilder(config, out, 1) // shard per record
	require.NoError(t, err)
	require.NoError(t, b.AddText("hello world", 0))
	require.NoError(t, b.AddText("world of wonders", 1))
	require.NoError(t, b.Close())

	bag, err := bagfile.Open(out)
	require.NoError(t, err)
	defer bag.Close()

	c, err := indexconfig.OpenDescriptor(out)
	require.NoError(t, err)
	reader, err := indexconfig.MakeReader(c, bag)
	require.NoError(t, err)
	tr := reader.(*trigram.Reader)

	ids, err := tr.Search("world")
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, ids)
}
