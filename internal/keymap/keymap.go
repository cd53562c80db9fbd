// Package keymap rewrites the keys of nested result structures.
package keymap

import (
	"database/sql"
	"encoding/json"
	"reflect"
	"sort"
	"time"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Shape is the traversal category of a value.
type Shape int

const (
	// Primitive values (nil, strings, numbers, booleans) are returned as is.
	Primitive Shape = iota
	// Sequence values have each element rewritten, keeping order.
	Sequence
	// OpaqueLeaf values look like objects but are never traversed.
	OpaqueLeaf
	// Mapping values have each key renamed and each value rewritten.
	Mapping
)

func (s Shape) String() string {
	switch s {
	case Primitive:
		return "primitive"
	case Sequence:
		return "sequence"
	case OpaqueLeaf:
		return "opaque"
	case Mapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Classify returns the shape of v. Any map with string keys is a mapping and
// any slice of such maps is a sequence, whatever their value types. Other
// types not explicitly recognized are treated as opaque leaves.
func Classify(v any) Shape {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Primitive
	case []any, []map[string]any, []Row, []map[string]string:
		return Sequence
	case map[string]any, Row, map[string]string:
		return Mapping
	case time.Time, *time.Time, []byte, json.RawMessage, sql.RawBytes:
		return OpaqueLeaf
	}

	t := reflect.TypeOf(v)
	switch {
	case stringKeyedMap(t):
		return Mapping
	case t.Kind() == reflect.Slice && stringKeyedMap(t.Elem()):
		return Sequence
	default:
		return OpaqueLeaf
	}
}

func stringKeyedMap(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
}

// Rewrite returns a copy of v with every mapping key replaced by mapper(key),
// recursing through sequences and mappings. The input is never modified.
//
// Keys of a mapping are visited in sorted order, so when two keys map to the
// same name the one that sorts last wins.
func Rewrite(v any, mapper func(string) string) any {
	switch Classify(v) {
	case Sequence:
		return rewriteSequence(v, mapper)
	case Mapping:
		return rewriteMapping(v, mapper)
	default:
		return v
	}
}

func rewriteSequence(v any, mapper func(string) string) any {
	switch s := v.(type) {
	case []any:
		if s == nil {
			return s
		}
		out := make([]any, len(s))
		for i, elem := range s {
			out[i] = Rewrite(elem, mapper)
		}
		return out
	case []map[string]any:
		if s == nil {
			return s
		}
		out := make([]map[string]any, len(s))
		for i, elem := range s {
			out[i] = rewriteMap(elem, mapper)
		}
		return out
	case []Row:
		if s == nil {
			return s
		}
		out := make([]Row, len(s))
		for i, elem := range s {
			out[i] = Row(rewriteMap(elem, mapper))
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.IsNil() {
		return v
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	for i := range rv.Len() {
		out.Index(i).Set(rewriteValue(rv.Index(i), mapper))
	}
	return out.Interface()
}

func rewriteMapping(v any, mapper func(string) string) any {
	switch m := v.(type) {
	case map[string]any:
		return rewriteMap(m, mapper)
	case Row:
		return Row(rewriteMap(m, mapper))
	}
	return rewriteTypedMap(reflect.ValueOf(v), mapper)
}

// rewriteTypedMap handles string-keyed maps whose value type is not any,
// keeping the concrete map type.
func rewriteTypedMap(rv reflect.Value, mapper func(string) string) any {
	if rv.IsNil() {
		return rv.Interface()
	}
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	t := rv.Type()
	out := reflect.MakeMapWithSize(t, len(keys))
	for _, k := range keys {
		name := reflect.ValueOf(mapper(k.String())).Convert(t.Key())
		out.SetMapIndex(name, rewriteValue(rv.MapIndex(k), mapper))
	}
	return out.Interface()
}

func rewriteValue(elem reflect.Value, mapper func(string) string) reflect.Value {
	rewritten := Rewrite(elem.Interface(), mapper)
	if rewritten == nil {
		return reflect.Zero(elem.Type())
	}
	return reflect.ValueOf(rewritten)
}

func rewriteMap(m map[string]any, mapper func(string) string) map[string]any {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[mapper(k)] = Rewrite(m[k], mapper)
	}
	return out
}
