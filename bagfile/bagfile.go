// Package bagfile provides a minimal append-only, randomly-readable
// byte-string container: the "bag file" the rest of bagz-index treats as an
// external collaborator (spec §1, §4.B). The container format itself is out
// of scope for the index core, but a concrete implementation is required to
// exercise the rest of the module end to end, so this package supplies one:
// a sequence of length-prefixed entries followed by a footer table of entry
// offsets, closely modeled on compactindexsized's split between a sequential
// on-disk builder and a random-access io.ReaderAt-backed reader.
//
// Layout on disk:
//
//	entry_0 | entry_1 | ... | entry_N-1 | footer
//
// Each entry is a varint length prefix followed by that many raw bytes
// (empty entries are legal: a zero-length prefix with no following bytes).
// The footer is a sequence of N+1 uint64 little-endian byte offsets (the
// start of each entry, plus one for the end of the last entry),
// followed by the footer's own byte length as a trailing uint64 so the
// reader can find it by seeking from the end of the file.
package bagfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const footerLenSize = 8

// Writer appends byte-string entries to a bag file in insertion order.
//
// Writer is single-use and single-threaded: create with NewWriter, call
// Append any number of times, then Close exactly once.
type Writer struct {
	f       *os.File
	w       *bufio.Writer
	offsets []uint64
	pos     uint64
}

// NewWriter creates (truncating if necessary) the bag file at path and
// returns a Writer ready to accept entries.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bagfile: create %s: %w", path, err)
	}
	return &Writer{
		f:       f,
		w:       bufio.NewWriter(f),
		offsets: []uint64{0},
	}, nil
}

// Append writes one more entry, in insertion order. Empty byte strings are
// legal and preserved.
func (w *Writer) Append(entry []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(entry)))
	if _, err := w.w.Write(lenBuf[:n]); err != nil {
		return fmt.Errorf("bagfile: write length prefix: %w", err)
	}
	if len(entry) > 0 {
		if _, err := w.w.Write(entry); err != nil {
			return fmt.Errorf("bagfile: write entry: %w", err)
		}
	}
	w.pos += uint64(n) + uint64(len(entry))
	w.offsets = append(w.offsets, w.pos)
	return nil
}

// Close finalizes the bag file: it writes the footer offset table and
// closes the underlying file. Close must be called exactly once.
func (w *Writer) Close() error {
	var buf [8]byte
	for _, off := range w.offsets {
		binary.LittleEndian.PutUint64(buf[:], off)
		if _, err := w.w.Write(buf[:]); err != nil {
			return fmt.Errorf("bagfile: write footer: %w", err)
		}
	}
	footerLen := uint64(len(w.offsets)) * 8
	binary.LittleEndian.PutUint64(buf[:], footerLen)
	if _, err := w.w.Write(buf[:]); err != nil {
		return fmt.Errorf("bagfile: write footer length: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("bagfile: flush: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("bagfile: sync: %w", err)
	}
	return w.f.Close()
}

// Reader provides O(log n)-or-better random access over a closed bag file:
// the footer offset table is loaded once at Open and binary-searched is
// unnecessary since it is a dense array, so Get is O(1) plus one ReadAt.
type Reader struct {
	ra      io.ReaderAt
	closer  io.Closer
	offsets []uint64 // len() == n+1
}

// Open opens the bag file at path for random reads.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bagfile: open %s: %w", path, err)
	}
	r, err := NewReader(osFileSizer{f})
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader wraps an arbitrary io.ReaderAt (e.g. an in-memory buffer, used by
// tests) that also implements Size() (int64, error), i.e. any type
// satisfying sizedReaderAt.
func NewReader(ra sizedReaderAt) (*Reader, error) {
	size, err := ra.Size()
	if err != nil {
		return nil, fmt.Errorf("bagfile: determine size: %w", err)
	}
	if size < footerLenSize {
		return nil, fmt.Errorf("bagfile: file too small to contain a footer")
	}
	var lenBuf [8]byte
	if _, err := ra.ReadAt(lenBuf[:], size-footerLenSize); err != nil {
		return nil, fmt.Errorf("bagfile: read footer length: %w", err)
	}
	footerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if footerLen == 0 || int64(footerLen) > size-footerLenSize {
		return nil, fmt.Errorf("bagfile: invalid footer length %d", footerLen)
	}
	footerStart := size - footerLenSize - int64(footerLen)
	footerBuf := make([]byte, footerLen)
	if _, err := ra.ReadAt(footerBuf, footerStart); err != nil {
		return nil, fmt.Errorf("bagfile: read footer: %w", err)
	}
	if footerLen%8 != 0 {
		return nil, fmt.Errorf("bagfile: footer length %d not a multiple of 8", footerLen)
	}
	offsets := make([]uint64, footerLen/8)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(footerBuf[i*8 : i*8+8])
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("bagfile: empty footer")
	}
	return &Reader{ra: ra, offsets: offsets}, nil
}

// sizedReaderAt is satisfied by osFileSizer (an *os.File sized via Stat) and by bytesReaderAt,
// used directly in tests without touching disk.
type sizedReaderAt interface {
	io.ReaderAt
	Size() (int64, error)
}

// Len returns the number of entries in the bag file.
func (r *Reader) Len() int {
	return len(r.offsets) - 1
}

// Get returns the i-th entry. It panics if i is out of range, matching the
// reference implementation's index-out-of-bounds behavior for invalid bucket
// or posting-slot indices (a programmer error, not a runtime condition the
// core recovers from).
func (r *Reader) Get(i int) ([]byte, error) {
	if i < 0 || i >= r.Len() {
		panic(fmt.Sprintf("bagfile: index %d out of range [0, %d)", i, r.Len()))
	}
	start := r.offsets[i]
	end := r.offsets[i+1]
	if end == start {
		return nil, nil
	}
	raw := make([]byte, end-start)
	if _, err := r.ra.ReadAt(raw, int64(start)); err != nil {
		return nil, fmt.Errorf("bagfile: read entry %d: %w", i, err)
	}
	entryLen, n := binary.Uvarint(raw)
	if n <= 0 {
		return nil, fmt.Errorf("bagfile: invalid length prefix for entry %d", i)
	}
	if uint64(len(raw)-n) != entryLen {
		return nil, fmt.Errorf("bagfile: entry %d length mismatch", i)
	}
	if entryLen == 0 {
		return nil, nil
	}
	return raw[n:], nil
}

// Close releases any resources backing the reader.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// osFileSizer adapts *os.File to sizedReaderAt.
type osFileSizer struct {
	*os.File
}

func (o osFileSizer) Size() (int64, error) {
	fi, err := o.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

var _ sizedReaderAt = osFileSizer{}

// bytesReaderAt adapts an in-memory byte slice to sizedReaderAt, used by
// tests that want a Reader without touching disk.
type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (b bytesReaderAt) Size() (int64, error) { return int64(len(b)), nil }

// NewBytesReader builds a Reader directly over an in-memory byte slice
// containing a full bag file image, skipping the filesystem entirely.
func NewBytesReader(data []byte) (*Reader, error) {
	return NewReader(bytesReaderAt(data))
}
