package schema

import (
	"maps"
	"slices"
)

// FieldKind is the shape of a document field value.
type FieldKind string

const (
	KindNull       FieldKind = "null"
	KindString     FieldKind = "string"
	KindBool       FieldKind = "boolean"
	KindInt        FieldKind = "integer"
	KindStringList FieldKind = "list"
	KindStringSet  FieldKind = "set"
	KindIntList    FieldKind = "intlist"
	KindMapList    FieldKind = "maplist"
)

// StringSet is an unordered set of strings.
type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	s.Add(items...)
	return s
}

func (s StringSet) Add(items ...string) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

func (s StringSet) Contains(item string) bool {
	_, ok := s[item]
	return ok
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

func (s StringSet) Clone() StringSet {
	return maps.Clone(s)
}

// Document is the field bag that view metadata is encoded into before it is
// written to storage or sent over the network. Values are one of: nil,
// string, bool, int, []string, StringSet, []int, []map[string]string.
type Document map[string]any

func (d Document) Set(name string, value any) Document {
	d[name] = value
	return d
}

func (d Document) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// Kind reports the kind of the named field; ok is false for absent fields
// and values of an unsupported Go type.
func (d Document) Kind(name string) (FieldKind, bool) {
	v, present := d[name]
	if !present {
		return "", false
	}
	return kindOf(v)
}

// The typed accessors below return ok=false when the field is absent or holds
// a value of another kind. Collections are returned as copies.

func (d Document) StringField(name string) (string, bool) {
	v, ok := d[name].(string)
	return v, ok
}

func (d Document) BoolField(name string) (bool, bool) {
	v, ok := d[name].(bool)
	return v, ok
}

func (d Document) IntField(name string) (int, bool) {
	v, ok := d[name].(int)
	return v, ok
}

func (d Document) ListField(name string) ([]string, bool) {
	v, ok := d[name].([]string)
	if !ok {
		return nil, false
	}
	if v == nil {
		return []string{}, true
	}
	return slices.Clone(v), true
}

func (d Document) SetField(name string) (StringSet, bool) {
	v, ok := d[name].(StringSet)
	if !ok {
		return nil, false
	}
	if v == nil {
		return StringSet{}, true
	}
	return v.Clone(), true
}

func (d Document) IntListField(name string) ([]int, bool) {
	v, ok := d[name].([]int)
	if !ok {
		return nil, false
	}
	if v == nil {
		return []int{}, true
	}
	return slices.Clone(v), true
}

func (d Document) MapListField(name string) ([]map[string]string, bool) {
	v, ok := d[name].([]map[string]string)
	if !ok {
		return nil, false
	}
	out := make([]map[string]string, len(v))
	for i, m := range v {
		out[i] = maps.Clone(m)
		if out[i] == nil {
			out[i] = map[string]string{}
		}
	}
	return out, true
}

func kindOf(v any) (FieldKind, bool) {
	switch v.(type) {
	case nil:
		return KindNull, true
	case string:
		return KindString, true
	case bool:
		return KindBool, true
	case int:
		return KindInt, true
	case []string:
		return KindStringList, true
	case StringSet:
		return KindStringSet, true
	case []int:
		return KindIntList, true
	case []map[string]string:
		return KindMapList, true
	default:
		return "", false
	}
}
