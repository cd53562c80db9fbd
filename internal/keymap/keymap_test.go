package keymap

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlcase/internal/casing"
)

type columnName string

func TestClassify(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		value    any
		expected Shape
	}{
		{"nil", nil, Primitive},
		{"string", "hello", Primitive},
		{"int", 1234, Primitive},
		{"float", 1.5, Primitive},
		{"bool", true, Primitive},
		{"slice", []any{1, 2}, Sequence},
		{"rows", []map[string]any{{"a": 1}}, Sequence},
		{"typed rows", []Row{{"a": 1}}, Sequence},
		{"map", map[string]any{"a": 1}, Mapping},
		{"row", Row{"a": 1}, Mapping},
		{"time", now, OpaqueLeaf},
		{"time pointer", &now, OpaqueLeaf},
		{"bytes", []byte("raw"), OpaqueLeaf},
		{"raw json", json.RawMessage(`{"a":1}`), OpaqueLeaf},
		{"struct", struct{ A int }{1}, OpaqueLeaf},
		{"int keyed map", map[int]string{1: "a"}, OpaqueLeaf},
		{"string map", map[string]string{"a": "b"}, Mapping},
		{"int valued map", map[string]int{"a": 1}, Mapping},
		{"named key map", map[columnName]any{"a": 1}, Mapping},
		{"typed map rows", []map[string]int{{"a": 1}}, Sequence},
		{"string slice", []string{"a"}, OpaqueLeaf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.value))
		})
	}
}

func TestRewrite_SnakeCasePreservesShape(t *testing.T) {
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	input := map[string]any{
		"TestTypes": map[string]any{
			"TestNull":    nil,
			"TestNumber":  1234,
			"TestBoolean": true,
			"testDate":    date,
		},
		"TEST-ARRAYS": []any{
			map[string]any{"TEST-ANY": "hello"},
			map[string]any{"TEST-ANY": "world"},
		},
	}

	got := Rewrite(input, casing.MustLookup(casing.SnakeCase))

	expected := map[string]any{
		"test_types": map[string]any{
			"test_null":    nil,
			"test_number":  1234,
			"test_boolean": true,
			"test_date":    date,
		},
		"test_arrays": []any{
			map[string]any{"test_any": "hello"},
			map[string]any{"test_any": "world"},
		},
	}
	assert.Equal(t, expected, got)

	types := got.(map[string]any)["test_types"].(map[string]any)
	gotDate, ok := types["test_date"].(time.Time)
	require.True(t, ok, "date must stay a time.Time")
	assert.True(t, gotDate.Equal(date))
}

func TestRewrite_CamelCaseNested(t *testing.T) {
	input := map[string]any{
		"test_nested": map[string]any{
			"test_nested_one": map[string]any{"test_any": "hello"},
			"test_nested_two": map[string]any{"test_any": "world"},
		},
	}

	got := Rewrite(input, casing.MustLookup(casing.CamelCase))

	assert.Equal(t, map[string]any{
		"testNested": map[string]any{
			"testNestedOne": map[string]any{"testAny": "hello"},
			"testNestedTwo": map[string]any{"testAny": "world"},
		},
	}, got)
}

func TestRewrite_KeepsContainerTypes(t *testing.T) {
	rows := []map[string]any{{"user_id": 1}, {"user_id": 2}}
	got, ok := Rewrite(rows, strings.ToUpper).([]map[string]any)
	require.True(t, ok)
	assert.Equal(t, []map[string]any{{"USER_ID": 1}, {"USER_ID": 2}}, got)

	typed := []Row{{"user_id": 1}}
	gotTyped, ok := Rewrite(typed, strings.ToUpper).([]Row)
	require.True(t, ok)
	assert.Equal(t, []Row{{"USER_ID": 1}}, gotTyped)

	row, ok := Rewrite(Row{"a_b": []any{Row{"c_d": 1}}}, strings.ToUpper).(Row)
	require.True(t, ok)
	assert.Equal(t, Row{"A_B": []any{Row{"C_D": 1}}}, row)
}

func TestRewrite_TypedMappings(t *testing.T) {
	attrs := map[string]string{"InnerKey": "v"}
	input := map[string]any{
		"TestAttrs": attrs,
		"Counts":    []map[string]int{{"FirstCount": 1}},
		"Nested":    map[string][]map[string]any{"DeepList": {{"LeafKey": nil}}},
		"Named":     map[columnName]any{"ColumnName": Row{"RowKey": 1}},
		"NoAttrs":   map[string]string(nil),
	}

	got := Rewrite(input, casing.MustLookup(casing.SnakeCase))

	assert.Equal(t, map[string]any{
		"test_attrs": map[string]string{"inner_key": "v"},
		"counts":     []map[string]int{{"first_count": 1}},
		"nested":     map[string][]map[string]any{"deep_list": {{"leaf_key": nil}}},
		"named":      map[columnName]any{"column_name": Row{"row_key": 1}},
		"no_attrs":   map[string]string(nil),
	}, got)
	assert.Equal(t, map[string]string{"InnerKey": "v"}, attrs)
}

func TestRewrite_DoesNotMutateInput(t *testing.T) {
	inner := map[string]any{"inner_key": 1}
	list := []any{inner}
	input := map[string]any{"outer_key": list}

	got := Rewrite(input, casing.MustLookup(casing.CamelCase)).(map[string]any)

	assert.Equal(t, map[string]any{"outer_key": []any{map[string]any{"inner_key": 1}}}, input)
	gotList := got["outerKey"].([]any)
	gotList[0].(map[string]any)["extra"] = true
	assert.NotContains(t, inner, "extra")
}

func TestRewrite_IdentityAllocatesNewContainers(t *testing.T) {
	input := map[string]any{"TEST-KEY": []any{map[string]any{"a": 1}}}

	got := Rewrite(input, casing.MustLookup(casing.None)).(map[string]any)
	assert.Equal(t, input, got)

	got["added"] = true
	assert.NotContains(t, input, "added")
}

func TestRewrite_OpaqueLeavesUntouched(t *testing.T) {
	raw := []byte("payload")
	doc := json.RawMessage(`{"Some_Key":1}`)
	input := map[string]any{"blob_data": raw, "doc_value": doc}

	got := Rewrite(input, casing.MustLookup(casing.CamelCase)).(map[string]any)

	assert.Equal(t, raw, got["blobData"])
	assert.Equal(t, doc, got["docValue"])
	assert.Same(t, &raw[0], &got["blobData"].([]byte)[0])
}

func TestRewrite_Primitives(t *testing.T) {
	mapper := casing.MustLookup(casing.SnakeCase)
	for _, v := range []any{nil, "SomeString", 42, 3.14, false} {
		assert.Equal(t, v, Rewrite(v, mapper))
	}
}

func TestRewrite_CollisionsResolveDeterministically(t *testing.T) {
	input := map[string]any{
		"testKey":  "camel",
		"test_key": "snake",
	}

	for i := 0; i < 20; i++ {
		got := Rewrite(input, casing.MustLookup(casing.CamelCase)).(map[string]any)
		// "test_key" sorts after "testKey" so its value survives.
		assert.Equal(t, map[string]any{"testKey": "snake"}, got)
	}
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "mapping", Mapping.String())
	assert.Equal(t, "sequence", Sequence.String())
	assert.Equal(t, "opaque", OpaqueLeaf.String())
	assert.Equal(t, "primitive", Primitive.String())
	assert.Equal(t, "unknown", Shape(42).String())
}
