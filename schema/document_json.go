package schema

import (
	"encoding/json"
	"fmt"
)

type storedField struct {
	Type  FieldKind `json:"type"`
	Value any       `json:"value"`
}

type rawField struct {
	Type  FieldKind       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalDocument renders a document as indented JSON where every field
// carries its kind, so that a list and a set (or an absent and a null field)
// stay distinguishable after a round trip. Set members are written sorted.
func MarshalDocument(doc Document) ([]byte, error) {
	fields := make(map[string]storedField, len(doc))
	for name, value := range doc {
		kind, ok := kindOf(value)
		if !ok {
			return nil, fmt.Errorf("%w: field %s has type %T", ErrUnsupportedValue, name, value)
		}
		switch v := value.(type) {
		case StringSet:
			value = v.Sorted()
		case []string:
			if v == nil {
				value = []string{}
			}
		case []int:
			if v == nil {
				value = []int{}
			}
		case []map[string]string:
			if v == nil {
				value = []map[string]string{}
			}
		}
		fields[name] = storedField{Type: kind, Value: value}
	}

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// UnmarshalDocument is the inverse of MarshalDocument.
func UnmarshalDocument(data []byte) (Document, error) {
	var fields map[string]rawField
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	doc := make(Document, len(fields))
	for name, field := range fields {
		value, err := decodeFieldValue(field)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		doc[name] = value
	}
	return doc, nil
}

func decodeFieldValue(field rawField) (any, error) {
	if field.Type == KindNull {
		return nil, nil
	}

	var err error
	switch field.Type {
	case KindString:
		var v string
		err = json.Unmarshal(field.Value, &v)
		return v, err
	case KindBool:
		var v bool
		err = json.Unmarshal(field.Value, &v)
		return v, err
	case KindInt:
		var v int
		err = json.Unmarshal(field.Value, &v)
		return v, err
	case KindStringList:
		v := []string{}
		err = json.Unmarshal(field.Value, &v)
		return v, err
	case KindStringSet:
		var members []string
		if err = json.Unmarshal(field.Value, &members); err != nil {
			return nil, err
		}
		return NewStringSet(members...), nil
	case KindIntList:
		v := []int{}
		err = json.Unmarshal(field.Value, &v)
		return v, err
	case KindMapList:
		v := []map[string]string{}
		err = json.Unmarshal(field.Value, &v)
		return v, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFieldKind, field.Type)
	}
}
