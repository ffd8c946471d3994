// Package validate provides a minimal declarative schema so
// RegisterEvent has a usable default Validator without forcing every
// caller to bring their own.
package validate

import (
	"encoding/json"
	"fmt"

	"eventcore/pkg/eventcore"
)

// FieldKind is the subset of JSON types a Schema field can require.
type FieldKind int

const (
	String FieldKind = iota
	Number
	Bool
	Object
	Array
)

// Field describes one required or optional key in a Schema.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// Schema is a flat, single-level object schema: a set of named fields
// with a required JSON kind each. It covers the common case of a flat
// record shape without pulling in a full JSON-Schema implementation.
type Schema struct {
	Fields []Field
}

// New builds an eventcore.Validator backed by this schema.
func (s Schema) New() eventcore.Validator {
	return eventcore.ValidatorFunc(func(payload json.RawMessage) []eventcore.FieldError {
		return s.validate(payload)
	})
}

func (s Schema) validate(payload json.RawMessage) []eventcore.FieldError {
	var obj map[string]json.RawMessage
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return []eventcore.FieldError{{Field: "$", Message: fmt.Sprintf("not a JSON object: %v", err)}}
	}

	var errs []eventcore.FieldError
	for _, f := range s.Fields {
		raw, ok := obj[f.Name]
		if !ok {
			if f.Required {
				errs = append(errs, eventcore.FieldError{Field: f.Name, Message: "required field missing"})
			}
			continue
		}
		if msg, ok := checkKind(raw, f.Kind); !ok {
			errs = append(errs, eventcore.FieldError{Field: f.Name, Message: msg})
		}
	}
	return errs
}

func checkKind(raw json.RawMessage, kind FieldKind) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Sprintf("invalid JSON: %v", err), false
	}
	switch kind {
	case String:
		if _, ok := v.(string); !ok {
			return "expected string", false
		}
	case Number:
		if _, ok := v.(float64); !ok {
			return "expected number", false
		}
	case Bool:
		if _, ok := v.(bool); !ok {
			return "expected bool", false
		}
	case Object:
		if _, ok := v.(map[string]any); !ok {
			return "expected object", false
		}
	case Array:
		if _, ok := v.([]any); !ok {
			return "expected array", false
		}
	}
	return "", true
}
