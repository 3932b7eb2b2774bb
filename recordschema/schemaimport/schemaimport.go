// Package schemaimport stands in for "schema compilation from an external
// interface-description file." Rather than invoking a real protobuf
// compiler (out of scope for this module, per the schema compiler being
// externally owned), it imports a small JSON schema description and parses
// records as JSON, giving the build orchestrator and pattern engine a
// concrete, fully testable schema source.
package schemaimport

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rpcpool/bagz-index/recordschema"
)

// jsonFieldSpec is the on-disk JSON shape of one field declaration.
type jsonFieldSpec struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"` // "string" | "int64" | "message"
	Repeated bool            `json:"repeated"`
	Fields   []jsonFieldSpec `json:"fields,omitempty"` // present iff kind == "message"
}

// jsonSchemaFile is the on-disk JSON shape of a full schema file: a map of
// record type name to its field list, mirroring a minimal interface
// description file.
type jsonSchemaFile struct {
	RecordTypes map[string][]jsonFieldSpec `json:"record_types"`
}

func kindFromString(s string) (recordschema.FieldKind, error) {
	switch s {
	case "string":
		return recordschema.KindString, nil
	case "int64":
		return recordschema.KindInt64, nil
	case "message":
		return recordschema.KindMessage, nil
	default:
		return 0, fmt.Errorf("schemaimport: unknown field kind %q", s)
	}
}

func buildDescriptor(specs []jsonFieldSpec) (*recordschema.Descriptor, error) {
	d := &recordschema.Descriptor{Fields: make([]recordschema.Field, 0, len(specs))}
	for _, spec := range specs {
		kind, err := kindFromString(spec.Kind)
		if err != nil {
			return nil, err
		}
		f := recordschema.Field{Name: spec.Name, Kind: kind, Repeated: spec.Repeated}
		if kind == recordschema.KindMessage {
			nested, err := buildDescriptor(spec.Fields)
			if err != nil {
				return nil, err
			}
			f.Message = nested
		}
		d.Fields = append(d.Fields, f)
	}
	return d, nil
}

// ImportJSONSchema reads a JSON schema file and returns a RecordType for the
// named record type, standing in for `_import_record_type(proto_file,
// record_type_name)`.
func ImportJSONSchema(path, recordTypeName string) (recordschema.RecordType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schemaimport: read schema file: %w", err)
	}

	var file jsonSchemaFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("schemaimport: parse schema file: %w", err)
	}

	specs, ok := file.RecordTypes[recordTypeName]
	if !ok {
		return nil, fmt.Errorf("schemaimport: record type %q not declared in schema", recordTypeName)
	}
	descriptor, err := buildDescriptor(specs)
	if err != nil {
		return nil, err
	}
	return &jsonRecordType{descriptor: descriptor}, nil
}

// jsonRecordType parses records as generic JSON objects, validated against
// descriptor on access rather than up front.
type jsonRecordType struct {
	descriptor *recordschema.Descriptor
}

func (rt *jsonRecordType) Descriptor() *recordschema.Descriptor { return rt.descriptor }

func (rt *jsonRecordType) Parse(data []byte) (recordschema.Message, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schemaimport: parse record: %w", err)
	}
	return &jsonMessage{descriptor: rt.descriptor, raw: raw}, nil
}

// jsonMessage implements recordschema.Message over a decoded JSON object,
// consulting the descriptor to decide message vs. scalar shape and to
// coerce int64-kind values.
type jsonMessage struct {
	descriptor *recordschema.Descriptor
	raw        map[string]any
}

func (m *jsonMessage) Get(fieldName string) (any, bool) {
	v, ok := m.raw[fieldName]
	if !ok {
		return v, ok
	}
	if field, ok := m.descriptor.FieldByName(fieldName); ok {
		v = coerceToKind(field.Kind, v)
	}
	return v, true
}

func (m *jsonMessage) GetRepeated(fieldName string) ([]recordschema.Message, bool) {
	field, ok := m.descriptor.FieldByName(fieldName)
	if !ok || field.Kind != recordschema.KindMessage {
		return nil, false
	}
	v, ok := m.raw[fieldName]
	if !ok {
		return nil, false
	}
	if obj, isObj := v.(map[string]any); isObj && !field.Repeated {
		return []recordschema.Message{&jsonMessage{descriptor: field.Message, raw: obj}}, true
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]recordschema.Message, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, &jsonMessage{descriptor: field.Message, raw: obj})
	}
	return out, true
}

func (m *jsonMessage) GetRepeatedScalar(fieldName string) ([]any, bool) {
	field, ok := m.descriptor.FieldByName(fieldName)
	if !ok || field.Kind == recordschema.KindMessage {
		return nil, false
	}
	v, ok := m.raw[fieldName]
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = coerceToKind(field.Kind, item)
	}
	return out, true
}

// coerceToKind normalizes a value decoded by encoding/json.Unmarshal into
// map[string]any against the schema's declared field kind. JSON numbers
// always decode to float64, so an Int64-kind field needs an explicit
// float64-to-int64 conversion before it reaches keys.NewForVariant; values
// that aren't whole numbers are left as-is; int64() doesn't flag a non-
// whole-number float64, and keys.NewForVariant's error path expects to see
// the ill-typed original value, not a silently truncated int64.
func coerceToKind(kind recordschema.FieldKind, v any) any {
	if kind != recordschema.KindInt64 {
		return v
	}
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if f != float64(int64(f)) {
		return v
	}
	return int64(f)
}
