package schemaimport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpcpool/bagz-index/recordschema"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "record_types": {
    "Person": [
      {"name": "name", "kind": "string"},
      {"name": "id", "kind": "int64"},
      {"name": "tags", "kind": "string", "repeated": true},
      {"name": "addresses", "kind": "message", "repeated": true, "fields": [
        {"name": "city", "kind": "string"},
        {"name": "zip", "kind": "string"}
      ]}
    ]
  }
}`

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o644))
	return path
}

func TestImportJSONSchemaDescriptor(t *testing.T) {
	path := writeSchema(t)
	rt, err := ImportJSONSchema(path, "Person")
	require.NoError(t, err)

	desc := rt.Descriptor()
	f, ok := desc.FieldByName("name")
	require.True(t, ok)
	require.Equal(t, recordschema.KindString, f.Kind)

	f, ok = desc.FieldByName("addresses")
	require.True(t, ok)
	require.Equal(t, recordschema.KindMessage, f.Kind)
	require.True(t, f.Repeated)
	require.NotNil(t, f.Message)
}

func TestImportJSONSchemaUnknownRecordType(t *testing.T) {
	path := writeSchema(t)
	_, err := ImportJSONSchema(path, "Nonexistent")
	require.Error(t, err)
}

func TestJSONRecordTypeParseAndProject(t *testing.T) {
	path := writeSchema(t)
	rt, err := ImportJSONSchema(path, "Person")
	require.NoError(t, err)

	record := map[string]any{
		"name": "Alice",
		"id":   float64(7),
		"tags": []any{"a", "b"},
		"addresses": []any{
			map[string]any{"city": "Springfield", "zip": "00000"},
			map[string]any{"city": "Shelbyville", "zip": "11111"},
		},
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)

	msg, err := rt.Parse(data)
	require.NoError(t, err)

	name, ok := msg.Get("name")
	require.True(t, ok)
	require.Equal(t, "Alice", name)

	// JSON numbers decode to float64; an int64-kind field must come back
	// as int64 so it reaches keys.NewForVariant in the shape it expects.
	id, ok := msg.Get("id")
	require.True(t, ok)
	require.Equal(t, int64(7), id)

	tags, ok := msg.GetRepeatedScalar("tags")
	require.True(t, ok)
	require.Equal(t, []any{"a", "b"}, tags)

	addrs, ok := msg.GetRepeated("addresses")
	require.True(t, ok)
	require.Len(t, addrs, 2)
	city, ok := addrs[0].Get("city")
	require.True(t, ok)
	require.Equal(t, "Springfield", city)
}
