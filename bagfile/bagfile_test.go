package bagfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bagz")

	w, err := NewWriter(path)
	require.NoError(t, err)

	entries := [][]byte{
		[]byte("hello"),
		{},
		[]byte("world"),
		[]byte{0x00, 0x01, 0x02},
	}
	for _, e := range entries {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, len(entries), r.Len())
	for i, want := range entries {
		got, err := r.Get(i)
		require.NoError(t, err)
		if len(want) == 0 {
			require.Empty(t, got)
		} else {
			require.Equal(t, want, got)
		}
	}
}

func TestEmptyEntriesPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empties.bagz")
	w, err := NewWriter(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Append(nil))
	}
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 5, r.Len())
	for i := 0; i < 5; i++ {
		got, err := r.Get(i)
		require.NoError(t, err)
		require.Empty(t, got)
	}
}

func TestGetOutOfRangePanics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oor.bagz")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("x")))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Panics(t, func() {
		_, _ = r.Get(5)
	})
}

func TestNewBytesReaderMatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem.bagz")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("a")))
	require.NoError(t, w.Append([]byte("bb")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	r, err := NewBytesReader(data)
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())
	v0, err := r.Get(0)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v0)
	v1, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, []byte("bb"), v1)
}
