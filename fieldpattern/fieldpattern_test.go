package fieldpattern

import (
	"sort"
	"testing"

	"github.com/rpcpool/bagz-index/recordschema"
	"github.com/stretchr/testify/require"
)

// seedSchema builds the spec §8 pattern-expansion schema:
// {id:str, name:str, value:int32(modeled as int64), sub:{sub_id:str,
// sub_name:str, sub_value:int32}, tags:repeated str,
// nested_subs:repeated{sub_id:str,sub_name:str,sub_value:int32}}.
func seedSchema() *recordschema.Descriptor {
	subDescriptor := &recordschema.Descriptor{Fields: []recordschema.Field{
		{Name: "sub_id", Kind: recordschema.KindString},
		{Name: "sub_name", Kind: recordschema.KindString},
		{Name: "sub_value", Kind: recordschema.KindInt64},
	}}
	return &recordschema.Descriptor{Fields: []recordschema.Field{
		{Name: "id", Kind: recordschema.KindString},
		{Name: "name", Kind: recordschema.KindString},
		{Name: "value", Kind: recordschema.KindInt64},
		{Name: "sub", Kind: recordschema.KindMessage, Message: subDescriptor},
		{Name: "tags", Kind: recordschema.KindString, Repeated: true},
		{Name: "nested_subs", Kind: recordschema.KindMessage, Repeated: true, Message: subDescriptor},
	}}
}

func pathStrings(paths [][]string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, joinDot(p))
	}
	sort.Strings(out)
	return out
}

func joinDot(path []string) string {
	s := ""
	for i, c := range path {
		if i > 0 {
			s += "."
		}
		s += c
	}
	return s
}

func TestExpandPatternDoubleWildcardSubId(t *testing.T) {
	desc := seedSchema()
	p, err := ParsePattern("**.sub_id")
	require.NoError(t, err)
	got := pathStrings(ExpandPattern(desc, p))
	require.Equal(t, []string{"nested_subs.sub_id", "sub.sub_id"}, got)
}

func TestExpandPatternSubWildcard(t *testing.T) {
	desc := seedSchema()
	p, err := ParsePattern("sub.*")
	require.NoError(t, err)
	got := pathStrings(ExpandPattern(desc, p))
	require.Equal(t, []string{"sub.sub_id", "sub.sub_name", "sub.sub_value"}, got)
}

func TestExpandPatternSet(t *testing.T) {
	desc := seedSchema()
	p, err := ParsePattern("{id,name}")
	require.NoError(t, err)
	got := pathStrings(ExpandPattern(desc, p))
	require.Equal(t, []string{"id", "name"}, got)
}

func TestParsePatternUnbalancedBraces(t *testing.T) {
	_, err := ParsePattern("{id,name")
	require.Error(t, err)
	_, err = ParsePattern("id,name}")
	require.Error(t, err)
}

func TestMatchIterativeAgreesWithRecursive(t *testing.T) {
	desc := seedSchema()
	for _, pattern := range []string{"**.sub_id", "sub.*", "{id,name}", "**"} {
		p, err := ParsePattern(pattern)
		require.NoError(t, err)
		recursive := pathStrings(ExpandPattern(desc, p))

		var iterative []string
		var walk func(d *recordschema.Descriptor, prefix []string)
		walk = func(d *recordschema.Descriptor, prefix []string) {
			for _, f := range d.Fields {
				path := append(append([]string(nil), prefix...), f.Name)
				if MatchIterative(p, path) {
					iterative = append(iterative, joinDot(path))
				}
				if f.Kind == recordschema.KindMessage && f.Message != nil {
					walk(f.Message, path)
				}
			}
		}
		walk(desc, nil)
		sort.Strings(iterative)
		require.Equal(t, recursive, iterative, "pattern %q", pattern)
	}
}

func TestExpandKeyFieldsUnionMinusExclude(t *testing.T) {
	desc := seedSchema()
	paths, err := ExpandKeyFields(desc, []string{"{id,name}", "sub.*"}, []string{"sub.sub_value"})
	require.NoError(t, err)
	got := pathStrings(paths)
	require.Equal(t, []string{"id", "name", "sub.sub_id", "sub.sub_name"}, got)
}

func TestExpandKeyFieldsNoMatchIsError(t *testing.T) {
	desc := seedSchema()
	_, err := ExpandKeyFields(desc, []string{"nonexistent_field"}, nil)
	require.Error(t, err)
}

type staticMessage struct {
	fields    map[string]any
	repeated  map[string][]recordschema.Message
	repScalar map[string][]any
}

func (m staticMessage) Get(name string) (any, bool) {
	v, ok := m.fields[name]
	return v, ok
}
func (m staticMessage) GetRepeated(name string) ([]recordschema.Message, bool) {
	v, ok := m.repeated[name]
	return v, ok
}
func (m staticMessage) GetRepeatedScalar(name string) ([]any, bool) {
	v, ok := m.repScalar[name]
	return v, ok
}

func TestProjectScalarLeaf(t *testing.T) {
	msg := staticMessage{fields: map[string]any{"id": "abc"}}
	got := Project(msg, []string{"id"})
	require.Equal(t, []any{"abc"}, got)
}

func TestProjectRepeatedMessageCrossProduct(t *testing.T) {
	sub1 := staticMessage{fields: map[string]any{"sub_id": "a"}}
	sub2 := staticMessage{fields: map[string]any{"sub_id": "b"}}
	msg := staticMessage{repeated: map[string][]recordschema.Message{
		"nested_subs": {sub1, sub2},
	}}
	got := Project(msg, []string{"nested_subs", "sub_id"})
	require.Equal(t, []any{"a", "b"}, got)
}

func TestProjectAbsentFieldYieldsNothing(t *testing.T) {
	msg := staticMessage{}
	require.Empty(t, Project(msg, []string{"id"}))
}
