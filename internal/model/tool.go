package model

import "encoding/json"

// ToolDescriptor is one entry of the flattened catalog exposed to the model.
// Name is unique across all currently enabled tools; collisions across
// services are a configuration error, not something to resolve silently.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ServiceID   string          `json:"service_id"`
	Schema      json.RawMessage `json:"schema,omitempty"` // JSON Schema for parameters; nil when undeclared
	Enabled     bool            `json:"enabled"`
	AutoExecute bool            `json:"auto_execute"`
}

// ToolService is one tool backend together with its cached tool list.
type ToolService struct {
	ID       string
	Name     string
	Endpoint string
	Enabled  bool
	Tools    []ToolDescriptor
}
