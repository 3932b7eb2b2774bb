package indexdump

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rpcpool/bagz-index/bagfile"
	"github.com/rpcpool/bagz-index/bagzerrors"
	"github.com/rpcpool/bagz-index/hashbucket"
	"github.com/rpcpool/bagz-index/keys"
	"github.com/rpcpool/bagz-index/trigram"
	"github.com/stretchr/testify/require"
)

func TestDumpHashBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.bagz")
	config := &hashbucket.Config{AvgBucketSize: 0.9, KeyProtoName: keys.VariantString}
	w := hashbucket.NewWriter(config)
	require.NoError(t, w.Add(keys.String("hello"), []int64{1, 2}))
	require.NoError(t, w.Write(path))

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, path))
	out := buf.String()
	require.Contains(t, out, "hashbucket index")
	require.Contains(t, out, "hello")
	require.Contains(t, out, "[1 2]")
}

func TestDumpTrigram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.bagz")
	config := trigram.NewConfig("abcdefghijklmnopqrstuvwxyz", 3, true, true, true)
	w := trigram.NewWriter(config)
	w.AddText("hello world", 0)
	require.NoError(t, w.Write(path))

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, path))
	out := buf.String()
	require.Contains(t, out, "trigram index")
	require.Contains(t, out, "record_ids")
}

func TestDumpUnknownTypeFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unknown.bagz")
	bw, err := bagfile.NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, bw.Append([]byte(`{"type":"not-a-real-type"}`)))
	require.NoError(t, bw.Close())

	var buf bytes.Buffer
	err = Dump(&buf, path)
	require.Error(t, err)
	require.True(t, errors.Is(err, bagzerrors.ErrUnknownConfigType))
}
