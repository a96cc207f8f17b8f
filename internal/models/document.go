package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is an untyped JSON object as stored by the ingestion process.
//
// Nested values keep whatever shape the decoder produced, so lookups go through
// the path helpers instead of direct type assertions.
type Document map[string]any

// Lookup walks path through nested objects and returns the value found at the end.
// It reports false as soon as a step is missing or is not an object.
func (d Document) Lookup(path ...string) (any, bool) {
	var cur any = d
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, found := m[key]
		if !found {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// LookupString is like Lookup but only succeeds when the final value is a string.
func (d Document) LookupString(path ...string) (string, bool) {
	v, ok := d.Lookup(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// asMap converts the object representations produced by the JSON, YAML and BSON decoders.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Document:
		return m, m != nil
	case map[string]any:
		return m, m != nil
	case bson.M:
		return m, m != nil
	case bson.D:
		return m.Map(), true
	default:
		return nil, false
	}
}

// stringify renders a scalar the way it should appear in a response.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case primitive.ObjectID:
		return s.Hex()
	default:
		return fmt.Sprint(s)
	}
}
