package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultItemsKey is the conventional container key for record lists.
const DefaultItemsKey = "items"

var (
	identityKeys = []string{"id", "ID", "Id", "uuid", "guid", "Ref_Key", "code"}
	nameKeys     = []string{"name", "Name", "title", "Title", "description", "Description"}
)

// Validator decides whether a decoded payload is a usable record collection and
// extracts the object records from it.
type Validator interface {
	Validate(payload any) ([]map[string]any, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(payload any) ([]map[string]any, error)

func (f ValidatorFunc) Validate(payload any) ([]map[string]any, error) {
	return f(payload)
}

// DefaultShape accepts {"items": [...]} or a non-empty list whose first
// element carries an identity and a name-like field.
var DefaultShape Validator = ItemsKey(DefaultItemsKey)

// ItemsKey returns the default heuristic with a different container key.
func ItemsKey(key string) Validator {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultItemsKey
	}
	return shape{itemsKey: key}
}

type shape struct {
	itemsKey string
}

func (s shape) Validate(payload any) ([]map[string]any, error) {
	switch v := payload.(type) {
	case map[string]any:
		raw, ok := v[s.itemsKey]
		if !ok {
			return nil, &InvalidResponseShapeError{Reason: fmt.Sprintf("object has no %q key", s.itemsKey)}
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, &InvalidResponseShapeError{Reason: fmt.Sprintf("%q is not a list", s.itemsKey)}
		}
		return objectRecords(items), nil
	case []any:
		if len(v) == 0 {
			return nil, &InvalidResponseShapeError{Reason: "empty list"}
		}
		first, ok := v[0].(map[string]any)
		if !ok {
			return nil, &InvalidResponseShapeError{Reason: "first element is not an object"}
		}
		if !hasAnyKey(first, identityKeys) || !hasAnyKey(first, nameKeys) {
			return nil, &InvalidResponseShapeError{Reason: "first element lacks identity or name field"}
		}
		return objectRecords(v), nil
	case nil:
		return nil, &InvalidResponseShapeError{Reason: "null payload"}
	default:
		return nil, &InvalidResponseShapeError{Reason: fmt.Sprintf("unexpected payload type %T", payload)}
	}
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func objectRecords(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Decode parses a JSON body keeping numbers as json.Number so identifiers
// survive intact.
func Decode(body []byte) (any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &InvalidResponseShapeError{Reason: "empty body"}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &InvalidResponseShapeError{Reason: "body is not JSON"}
	}
	return payload, nil
}
