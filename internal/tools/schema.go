package tools

import (
	"encoding/json"
	"fmt"
)

// Schema is the subset of JSON Schema the validator understands. Anything
// beyond it is passed through untouched.
type Schema struct {
	Type       string             `json:"type,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
	Enum       []any              `json:"enum,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
}

// ParseSchema decodes a raw JSON Schema. A nil or empty input yields a nil
// schema, which the validator treats as "cannot validate, pass through".
func ParseSchema(raw json.RawMessage) (*Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var schema Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parsing tool schema: %w", err)
	}
	return &schema, nil
}

func (s *Schema) isRequired(field string) bool {
	for _, name := range s.Required {
		if name == field {
			return true
		}
	}
	return false
}
