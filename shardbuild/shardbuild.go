// Package shardbuild implements the sharded build driver: it bounds peak
// memory during a build by flushing per-shard writers to a temporary
// directory once a record-count threshold is reached, then delegates to the
// family's merger to produce the final output.
package shardbuild

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rpcpool/bagz-index/hashbucket"
	"github.com/rpcpool/bagz-index/keys"
	"github.com/rpcpool/bagz-index/trigram"
	"k8s.io/klog/v2"
)

// DefaultShardLimit is the number of records added since the last flush
// that triggers a shard rotation. A tunable, not a contract.
const DefaultShardLimit = 200_000

// Merger matches the per-family Merge function signature
// (hashbucket.Merge / trigram.Merge), bound to a single config by the
// caller.
type Merger func(inputPaths []string, outputPath string) error

// shardedBuilder is the unexported generic core shared by KeyBuilder and
// TextBuilder: it owns shard rotation, the scoped temp directory, and the
// final merge invocation. W is the concrete per-shard writer type.
type shardedBuilder[W any] struct {
	newWriter  func() W
	writeShard func(w W, path string) error
	merge      Merger

	tmpDir     string
	outputPath string
	shardLimit int

	current      W
	countInShard int
	nextShard    int
	shardPaths   []string
	closed       bool
}

func newShardedBuilder[W any](
	outputPath string,
	shardLimit int,
	newWriter func() W,
	writeShard func(w W, path string) error,
	merge Merger,
) (*shardedBuilder[W], error) {
	if shardLimit <= 0 {
		shardLimit = DefaultShardLimit
	}
	tmpDir, err := os.MkdirTemp("", "bagz-index-shard-*")
	if err != nil {
		return nil, fmt.Errorf("shardbuild: create temp dir: %w", err)
	}
	return &shardedBuilder[W]{
		newWriter:  newWriter,
		writeShard: writeShard,
		merge:      merge,
		tmpDir:     tmpDir,
		outputPath: outputPath,
		shardLimit: shardLimit,
		current:    newWriter(),
	}, nil
}

// shardPath returns the zero-padded, monotonically increasing path for
// shard index i, e.g. "<tmpdir>/shard-00003.bagz".
func (b *shardedBuilder[W]) shardPath(i int) string {
	return filepath.Join(b.tmpDir, fmt.Sprintf("shard-%05d.bagz", i))
}

// recordAdded counts one record towards the current shard, rotating to a
// fresh writer if the shard limit is reached.
func (b *shardedBuilder[W]) recordAdded() error {
	b.countInShard++
	if b.countInShard >= b.shardLimit {
		return b.flush()
	}
	return nil
}

func (b *shardedBuilder[W]) flush() error {
	path := b.shardPath(b.nextShard)
	if err := b.writeShard(b.current, path); err != nil {
		return fmt.Errorf("shardbuild: flush shard %d: %w", b.nextShard, err)
	}
	klog.Infof("shardbuild: flushed shard %d (%d records) to %s", b.nextShard, b.countInShard, path)
	b.shardPaths = append(b.shardPaths, path)
	b.nextShard++
	b.countInShard = 0
	b.current = b.newWriter()
	return nil
}

// close flushes the current (possibly empty) writer, merges every shard
// into outputPath, and removes the temp directory. Calls after the first
// return nil without doing anything.
func (b *shardedBuilder[W]) close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	defer os.RemoveAll(b.tmpDir)

	if err := b.flush(); err != nil {
		return err
	}

	klog.Infof("shardbuild: merging %d shard(s) into %s", len(b.shardPaths), b.outputPath)
	if err := b.merge(b.shardPaths, b.outputPath); err != nil {
		return fmt.Errorf("shardbuild: merge shards: %w", err)
	}
	return nil
}

// KeyBuilder drives a sharded HashBucket build.
type KeyBuilder struct {
	core *shardedBuilder[*hashbucket.Writer]
}

// NewKeyBuilder creates a sharded HashBucket build driver writing its final
// output to outputPath. shardLimit <= 0 uses DefaultShardLimit.
func NewKeyBuilder(config *hashbucket.Config, outputPath string, shardLimit int) (*KeyBuilder, error) {
	core, err := newShardedBuilder(
		outputPath,
		shardLimit,
		func() *hashbucket.Writer { return hashbucket.NewWriter(config) },
		func(w *hashbucket.Writer, path string) error { return w.Write(path) },
		func(inputPaths []string, outPath string) error { return hashbucket.Merge(config, inputPaths, outPath) },
	)
	if err != nil {
		return nil, err
	}
	return &KeyBuilder{core: core}, nil
}

// AddKey adds one (key, record_ids) entry to the current shard.
func (b *KeyBuilder) AddKey(key keys.Key, recordIDs []int64) error {
	if err := b.core.current.Add(key, recordIDs); err != nil {
		return err
	}
	return b.core.recordAdded()
}

// Close flushes the final shard and merges all shards into the configured
// output path.
func (b *KeyBuilder) Close() error { return b.core.close() }

// TextBuilder drives a sharded Trigram build.
type TextBuilder struct {
	core *shardedBuilder[*trigram.Writer]
}

// NewTextBuilder creates a sharded Trigram build driver writing its final
// output to outputPath. shardLimit <= 0 uses DefaultShardLimit.
func NewTextBuilder(config *trigram.Config, outputPath string, shardLimit int) (*TextBuilder, error) {
	core, err := newShardedBuilder(
		outputPath,
		shardLimit,
		func() *trigram.Writer { return trigram.NewWriter(config) },
		func(w *trigram.Writer, path string) error { return w.Write(path) },
		func(inputPaths []string, outPath string) error { return trigram.Merge(config, inputPaths, outPath) },
	)
	if err != nil {
		return nil, err
	}
	return &TextBuilder{core: core}, nil
}

// AddText adds one (text, record_id) entry to the current shard.
func (b *TextBuilder) AddText(text string, recordID int64) error {
	b.core.current.AddText(text, recordID)
	return b.core.recordAdded()
}

// Close flushes the final shard and merges all shards into the configured
// output path.
func (b *TextBuilder) Close() error { return b.core.close() }
