// Package indexbuild composes the field-path pattern engine, the key-type
// inference it drives, and the sharded build driver into a single
// end-to-end index generation entry point: GenerateIndex.
package indexbuild

import (
	"fmt"

	"github.com/rpcpool/bagz-index/bagfile"
	"github.com/rpcpool/bagz-index/bagzerrors"
	"github.com/rpcpool/bagz-index/fieldpattern"
	"github.com/rpcpool/bagz-index/hashbucket"
	"github.com/rpcpool/bagz-index/keys"
	"github.com/rpcpool/bagz-index/recordschema"
	"github.com/rpcpool/bagz-index/recordschema/schemaimport"
	"github.com/rpcpool/bagz-index/shardbuild"
	"github.com/rpcpool/bagz-index/trigram"
	"k8s.io/klog/v2"
)

// defaultHashBucketAvgBucketSize matches the original's
// make_hashtable_index constant.
const defaultHashBucketAvgBucketSize = 0.9

// Trigram index constants, identical to the original's make_trigram_index.
const (
	trigramCharacterSet         = "abcdefghijklmnopqrstuvwxyz0123456789"
	trigramNgramSize            = 3
	trigramNormalize            = true
	trigramStorePositions       = true
	trigramDeltaEncodeRecordIDs = true
)

// GenerateConfig parameterizes GenerateIndex.
type GenerateConfig struct {
	InputBagzPath        string
	OutputBagzPath       string
	ProtoFile            string
	RecordTypeName       string
	KeyFieldPatterns     []string
	ExcludeFieldPatterns []string
	Trigram              bool
	TmpDir               string
	ShardLimit           int
}

// inferKeyVariant checks that every selected path resolves to the same
// primitive type across desc, returning the key variant name that implies.
// For trigram mode, only string is accepted.
func inferKeyVariant(desc *recordschema.Descriptor, paths [][]string, trigramMode bool) (string, error) {
	var variant string
	for _, path := range paths {
		kind, err := resolveFieldKind(desc, path)
		if err != nil {
			return "", err
		}
		var v string
		switch kind {
		case recordschema.KindString:
			v = keys.VariantString
		case recordschema.KindInt64:
			v = keys.VariantInt64
		default:
			return "", fmt.Errorf("%w: path %v resolves to unsupported key type %s", bagzerrors.ErrKeyTypeConflict, path, kind)
		}
		if variant == "" {
			variant = v
		} else if variant != v {
			return "", fmt.Errorf("%w: path %v resolves to %s, conflicting with earlier %s", bagzerrors.ErrKeyTypeConflict, path, v, variant)
		}
	}
	if trigramMode && variant != keys.VariantString {
		return "", fmt.Errorf("%w: trigram mode requires string key fields", bagzerrors.ErrKeyTypeConflict)
	}
	return variant, nil
}

func resolveFieldKind(desc *recordschema.Descriptor, path []string) (recordschema.FieldKind, error) {
	current := desc
	for i, name := range path {
		f, ok := current.FieldByName(name)
		if !ok {
			return 0, fmt.Errorf("%w: %v", bagzerrors.ErrPathNotFound, path)
		}
		if i == len(path)-1 {
			return f.Kind, nil
		}
		if f.Kind != recordschema.KindMessage || f.Message == nil {
			return 0, fmt.Errorf("%w: %v descends through non-message field %q", bagzerrors.ErrPathNotFound, path, name)
		}
		current = f.Message
	}
	return 0, fmt.Errorf("%w: empty path", bagzerrors.ErrPathNotFound)
}

// GenerateIndex imports the record type, expands key-field patterns,
// infers the key variant, constructs the appropriate config, and streams
// every record in the input bag file through the pattern engine into a
// sharded builder, finally closing it to produce cfg.OutputBagzPath.
func GenerateIndex(cfg GenerateConfig) error {
	recordType, err := schemaimport.ImportJSONSchema(cfg.ProtoFile, cfg.RecordTypeName)
	if err != nil {
		return fmt.Errorf("indexbuild: import record type: %w", err)
	}
	desc := recordType.Descriptor()

	paths, err := fieldpattern.ExpandKeyFields(desc, cfg.KeyFieldPatterns, cfg.ExcludeFieldPatterns)
	if err != nil {
		return fmt.Errorf("indexbuild: expand key fields: %w", err)
	}

	variant, err := inferKeyVariant(desc, paths, cfg.Trigram)
	if err != nil {
		return err
	}

	in, err := bagfile.Open(cfg.InputBagzPath)
	if err != nil {
		return fmt.Errorf("indexbuild: open input: %w", err)
	}
	defer in.Close()

	klog.Infof("indexbuild: generating index over %d records, %d key path(s), trigram=%v", in.Len(), len(paths), cfg.Trigram)

	if cfg.Trigram {
		return generateTrigram(cfg, in, recordType, paths)
	}
	return generateHashBucket(cfg, in, recordType, paths, variant)
}

func generateHashBucket(cfg GenerateConfig, in *bagfile.Reader, recordType recordschema.RecordType, paths [][]string, variant string) error {
	config := &hashbucket.Config{AvgBucketSize: defaultHashBucketAvgBucketSize, KeyProtoName: variant}
	builder, err := shardbuild.NewKeyBuilder(config, cfg.OutputBagzPath, cfg.ShardLimit)
	if err != nil {
		return err
	}

	for i := 0; i < in.Len(); i++ {
		data, err := in.Get(i)
		if err != nil {
			return fmt.Errorf("indexbuild: read record %d: %w", i, err)
		}
		msg, err := recordType.Parse(data)
		if err != nil {
			return fmt.Errorf("indexbuild: parse record %d: %w", i, err)
		}
		for value := range distinctProjectedValues(msg, paths) {
			key, err := keys.NewForVariant(variant, value)
			if err != nil {
				return fmt.Errorf("indexbuild: record %d: %w", i, err)
			}
			if err := builder.AddKey(key, []int64{int64(i)}); err != nil {
				return fmt.Errorf("indexbuild: add key at record %d: %w", i, err)
			}
		}
	}
	return builder.Close()
}

// distinctProjectedValues unions fieldpattern.Project across every selected
// path and returns the set of distinct values, matching the ground truth's
// lookup_field_values (which builds one set() over all expanded paths before
// iterating). Without this, overlapping key-field patterns, or a repeated
// field that contains a literal duplicate, would add the same value once per
// occurrence instead of once per record.
func distinctProjectedValues(msg recordschema.Message, paths [][]string) map[any]struct{} {
	values := make(map[any]struct{})
	for _, path := range paths {
		for _, value := range fieldpattern.Project(msg, path) {
			values[value] = struct{}{}
		}
	}
	return values
}

func generateTrigram(cfg GenerateConfig, in *bagfile.Reader, recordType recordschema.RecordType, paths [][]string) error {
	config := trigram.NewConfig(trigramCharacterSet, trigramNgramSize, trigramNormalize, trigramStorePositions, trigramDeltaEncodeRecordIDs)
	builder, err := shardbuild.NewTextBuilder(config, cfg.OutputBagzPath, cfg.ShardLimit)
	if err != nil {
		return err
	}

	for i := 0; i < in.Len(); i++ {
		data, err := in.Get(i)
		if err != nil {
			return fmt.Errorf("indexbuild: read record %d: %w", i, err)
		}
		msg, err := recordType.Parse(data)
		if err != nil {
			return fmt.Errorf("indexbuild: parse record %d: %w", i, err)
		}
		for value := range distinctProjectedValues(msg, paths) {
			text, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: trigram mode requires string values, got %T at record %d", bagzerrors.ErrKeyTypeConflict, value, i)
			}
			if err := builder.AddText(text, int64(i)); err != nil {
				return fmt.Errorf("indexbuild: add text at record %d: %w", i, err)
			}
		}
	}
	return builder.Close()
}
