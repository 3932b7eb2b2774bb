// Package recordschema is a thin stand-in for a record schema and decoded
// message, minimal enough to drive the field-path pattern engine and the
// build orchestrator without a real protobuf reflection/compilation
// toolchain, which is explicitly out of scope for this module.
package recordschema

// FieldKind enumerates the field kinds this module's pattern engine and
// key-type inference understand. Other primitive kinds are rejected at
// key-type inference time.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt64
	KindMessage
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Field describes one declared field of a Descriptor.
type Field struct {
	Name     string
	Kind     FieldKind
	Repeated bool
	// Message is non-nil iff Kind == KindMessage, naming the nested
	// record's own field layout.
	Message *Descriptor
}

// Descriptor is the rose-tree schema of a record type: a flat field list,
// any of which may recurse into a nested Descriptor.
type Descriptor struct {
	Fields []Field
}

// FieldByName returns the named field and whether it exists.
func (d *Descriptor) FieldByName(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Message is a decoded record instance, deliberately small: scalar leaves,
// nested message fields, and repeated scalar leaves are the only shapes
// the pattern engine needs to project through.
type Message interface {
	// Get returns the value of a scalar (non-repeated) leaf field.
	Get(fieldName string) (value any, ok bool)
	// GetRepeated returns the values of a message field: every element of a
	// repeated message field, or a single element for a non-repeated one.
	GetRepeated(fieldName string) ([]Message, bool)
	// GetRepeatedScalar returns the values of a repeated scalar leaf field.
	GetRepeatedScalar(fieldName string) ([]any, bool)
}

// RecordType parses raw record bytes into a Message and exposes the schema
// those messages conform to.
type RecordType interface {
	Parse(data []byte) (Message, error)
	Descriptor() *Descriptor
}
