// Package indexconfig implements the config registry: a closed tagged union
// over the HashBucket and Trigram descriptor types, dispatching construction,
// reading, writing, and merging by the descriptor's "type" tag.
package indexconfig

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/rpcpool/bagz-index/bagfile"
	"github.com/rpcpool/bagz-index/bagzerrors"
	"github.com/rpcpool/bagz-index/hashbucket"
	"github.com/rpcpool/bagz-index/trigram"
)

// Capability is a compile-time property of a Config describing which index
// operations it implements.
type Capability int

const (
	CapabilityKeyAddition Capability = iota
	CapabilityKeyLookup
	CapabilityTextAddition
	CapabilityTextSearch
)

// Config is the closed tagged union over every registered index descriptor
// type. Only the unexported adapters over *hashbucket.Config and
// *trigram.Config (built by NewHashBucket, NewTrigram and ConfigFromJSON)
// implement it.
type Config interface {
	// Type returns the registry tag this config was registered under.
	Type() string
	// Capabilities returns the set of operations this config implements.
	Capabilities() map[Capability]bool
}

// hashbucketConfig and trigramConfig adapt the family configs to the Config
// interface without requiring those packages to import indexconfig (which
// would create an import cycle, since indexconfig dispatches on both).
type hashbucketConfig struct{ *hashbucket.Config }

func (hashbucketConfig) Capabilities() map[Capability]bool {
	return map[Capability]bool{CapabilityKeyAddition: true, CapabilityKeyLookup: true}
}

type trigramConfig struct{ *trigram.Config }

func (trigramConfig) Capabilities() map[Capability]bool {
	return map[Capability]bool{CapabilityTextAddition: true, CapabilityTextSearch: true}
}

// registryEntry holds the decode function for one registered type tag.
type registryEntry struct {
	decode func(data []byte) (Config, error)
}

var registry = make(map[string]registryEntry)

// RegisterConfig associates a type tag with a decode function. Re-registering
// an already-registered tag fails fast with ErrDuplicateConfigType, matching
// the reference implementation's "duplicate registration... fails fast"
// contract even though, in this module, the union of concrete types is
// closed at compile time.
func RegisterConfig(tag string, decode func(data []byte) (Config, error)) {
	if _, exists := registry[tag]; exists {
		panic(fmt.Errorf("%w: %q", bagzerrors.ErrDuplicateConfigType, tag))
	}
	registry[tag] = registryEntry{decode: decode}
}

func init() {
	RegisterConfig(hashbucket.ConfigTypeTag, func(data []byte) (Config, error) {
		c, err := hashbucket.DecodeDescriptor(data)
		if err != nil {
			return nil, err
		}
		return hashbucketConfig{c}, nil
	})
	RegisterConfig(trigram.ConfigTypeTag, func(data []byte) (Config, error) {
		c, err := trigram.DecodeDescriptor(data)
		if err != nil {
			return nil, err
		}
		return trigramConfig{c}, nil
	})
}

// typeTag is used only to sniff the "type" field of a descriptor payload
// before dispatching to the registered decoder.
type typeTag struct {
	Type string `json:"type"`
}

// ConfigFromJSON parses a trailing descriptor payload, dispatching on its
// "type" field to the registered decoder. Returns ErrUnknownConfigType if the
// tag has no registered decoder.
func ConfigFromJSON(data []byte) (Config, error) {
	var t typeTag
	if err := sonic.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("indexconfig: decode descriptor type tag: %w", err)
	}
	entry, ok := registry[t.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", bagzerrors.ErrUnknownConfigType, t.Type)
	}
	return entry.decode(data)
}

// NewHashBucket wraps a *hashbucket.Config as a Config.
func NewHashBucket(c *hashbucket.Config) Config { return hashbucketConfig{c} }

// NewTrigram wraps a *trigram.Config as a Config.
func NewTrigram(c *trigram.Config) Config { return trigramConfig{c} }

// requireCapability returns ErrUnsupportedProtocol if c does not implement
// capability.
func requireCapability(c Config, capability Capability) error {
	if !c.Capabilities()[capability] {
		return fmt.Errorf("%w: %s does not implement capability %d", bagzerrors.ErrUnsupportedProtocol, c.Type(), capability)
	}
	return nil
}

// descriptorOf reads and parses the trailing descriptor entry of an already
// fully-written bag file.
func descriptorOf(bag *bagfile.Reader) (Config, error) {
	n := bag.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty bag file has no descriptor", bagzerrors.ErrCorruptIndex)
	}
	data, err := bag.Get(n - 1)
	if err != nil {
		return nil, err
	}
	return ConfigFromJSON(data)
}

// OpenDescriptor opens bagzPath and returns its parsed descriptor Config,
// without retaining the bag file reader (closed before returning).
func OpenDescriptor(bagzPath string) (Config, error) {
	bag, err := bagfile.Open(bagzPath)
	if err != nil {
		return nil, err
	}
	defer bag.Close()
	return descriptorOf(bag)
}

// MergeIndices opens every input path, checks that all descriptors are
// identical (ErrConfigMismatch otherwise), and dispatches to the appropriate
// family merger.
func MergeIndices(inputPaths []string, outputPath string) error {
	if len(inputPaths) == 0 {
		return fmt.Errorf("indexconfig: merge requires at least one input")
	}

	var first Config
	for _, p := range inputPaths {
		c, err := OpenDescriptor(p)
		if err != nil {
			return fmt.Errorf("indexconfig: reading descriptor for %s: %w", p, err)
		}
		if first == nil {
			first = c
			continue
		}
		if !configsEqual(first, c) {
			return fmt.Errorf("%w: %s vs %s", bagzerrors.ErrConfigMismatch, p, inputPaths[0])
		}
	}

	switch c := first.(type) {
	case hashbucketConfig:
		return hashbucket.Merge(c.Config, inputPaths, outputPath)
	case trigramConfig:
		return trigram.Merge(c.Config, inputPaths, outputPath)
	default:
		return fmt.Errorf("%w: %s", bagzerrors.ErrUnknownConfigType, first.Type())
	}
}

func configsEqual(a, b Config) bool {
	switch av := a.(type) {
	case hashbucketConfig:
		bv, ok := b.(hashbucketConfig)
		return ok && av.Config.Equal(bv.Config)
	case trigramConfig:
		bv, ok := b.(trigramConfig)
		return ok && av.Config.Equal(bv.Config)
	default:
		return false
	}
}

// MakeWriter dispatches construction of a key-adding or text-adding writer,
// keyed off the config's declared capabilities.
//
// Callers that need concrete methods (AddText, Add) should type-switch on
// the returned value; MakeWriter's role is purely the capability check
// described in spec.md §4.C, matching the original's make_writer() plus
// supports_protocol() guard.
func MakeWriter(c Config) (any, error) {
	switch cv := c.(type) {
	case hashbucketConfig:
		if err := requireCapability(c, CapabilityKeyAddition); err != nil {
			return nil, err
		}
		return hashbucket.NewWriter(cv.Config), nil
	case trigramConfig:
		if err := requireCapability(c, CapabilityTextAddition); err != nil {
			return nil, err
		}
		return trigram.NewWriter(cv.Config), nil
	default:
		return nil, fmt.Errorf("%w: %s", bagzerrors.ErrUnknownConfigType, c.Type())
	}
}

// MakeReader dispatches construction of a lookup or search reader over an
// already-open bag file.
func MakeReader(c Config, bag *bagfile.Reader) (any, error) {
	switch cv := c.(type) {
	case hashbucketConfig:
		if err := requireCapability(c, CapabilityKeyLookup); err != nil {
			return nil, err
		}
		return hashbucket.NewReader(cv.Config, bag), nil
	case trigramConfig:
		if err := requireCapability(c, CapabilityTextSearch); err != nil {
			return nil, err
		}
		return trigram.NewReader(cv.Config, bag), nil
	default:
		return nil, fmt.Errorf("%w: %s", bagzerrors.ErrUnknownConfigType, c.Type())
	}
}

// Merger is the family-specific multi-input merge function, bound to a
// single config by MakeMerger.
type Merger func(inputPaths []string, outputPath string) error

// MakeMerger returns the merge function appropriate for c's family. Unlike
// MergeIndices (which sniffs the family from the inputs themselves),
// MakeMerger is for callers that already hold a parsed Config, mirroring the
// original's make_merger() registry method.
func MakeMerger(c Config) (Merger, error) {
	switch cv := c.(type) {
	case hashbucketConfig:
		return func(inputPaths []string, outputPath string) error {
			return hashbucket.Merge(cv.Config, inputPaths, outputPath)
		}, nil
	case trigramConfig:
		return func(inputPaths []string, outputPath string) error {
			return trigram.Merge(cv.Config, inputPaths, outputPath)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", bagzerrors.ErrUnknownConfigType, c.Type())
	}
}
