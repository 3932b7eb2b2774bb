// Package bagzerrors defines the sentinel errors shared across the bagz-index
// packages. Callers should compare with errors.Is, since every operation
// wraps these with additional context via %w.
package bagzerrors

import "errors"

var (
	// ErrConfigMismatch is returned when a merge is attempted over indices
	// whose descriptors are not deeply equal.
	ErrConfigMismatch = errors.New("bagzindex: merge inputs do not share an identical config")

	// ErrUnknownConfigType is returned when a descriptor names a "type" tag
	// that has no registered config.
	ErrUnknownConfigType = errors.New("bagzindex: unknown config type")

	// ErrDuplicateConfigType is returned when two configs register under the
	// same type tag.
	ErrDuplicateConfigType = errors.New("bagzindex: duplicate config type")

	// ErrUnsupportedProtocol is returned when a caller requests a capability
	// a config does not implement.
	ErrUnsupportedProtocol = errors.New("bagzindex: config does not support requested capability")

	// ErrKeyTypeConflict is returned when selected field paths resolve to
	// more than one primitive type, or to an unsupported type.
	ErrKeyTypeConflict = errors.New("bagzindex: key fields resolve to conflicting or unsupported types")

	// ErrPathNotFound is returned when pattern expansion (or key-type
	// inference) references a field path that does not exist in the schema.
	ErrPathNotFound = errors.New("bagzindex: field path not found in schema")

	// ErrCorruptIndex is returned when a merge cannot locate a key it
	// recorded a location for in an earlier pass.
	ErrCorruptIndex = errors.New("bagzindex: corrupt index, recorded key not found in source bucket")

	// ErrMixedKeyVariant is returned when a HashBucket writer is asked to add
	// a key whose variant differs from its config's key_proto_name.
	ErrMixedKeyVariant = errors.New("bagzindex: mixed key variants in a single index")
)
