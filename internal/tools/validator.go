package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"hivemind.app/conduit/common/logger"
)

var (
	ErrMalformedArguments   = errors.New("arguments are not valid JSON")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidEnumValue     = errors.New("invalid enum value")
	ErrCoercionFailed       = errors.New("cannot coerce value to declared type")
)

// ValidationError identifies which field of which tool call failed.
type ValidationError struct {
	Tool  string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Tool, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateArguments coerces and validates a tool call's raw JSON arguments
// against the tool's declared schema. Models frequently stringify numbers
// and booleans, so conforming coercions are applied rather than rejected;
// validating already-valid arguments is a no-op. Unknown fields pass
// through with a warning since backends may accept undeclared parameters.
// A nil schema passes everything through unmodified.
func ValidateArguments(ctx context.Context, toolName, rawArgs string, schema *Schema) (map[string]any, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ToolName: logger.Ptr(toolName)})

	if rawArgs == "" {
		rawArgs = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, &ValidationError{Tool: toolName, Err: fmt.Errorf("%w: %v", ErrMalformedArguments, err)}
	}

	if schema == nil {
		return args, nil
	}

	for field, value := range args {
		prop, declared := schema.Properties[field]
		if !declared {
			slog.WarnContext(ctx, "undeclared argument passed through", "field", field)
			continue
		}

		coerced, err := coerce(ctx, value, prop, schema.isRequired(field))
		if err != nil {
			return nil, &ValidationError{Tool: toolName, Field: field, Err: err}
		}
		args[field] = coerced

		if len(prop.Enum) > 0 && !enumContains(prop.Enum, args[field]) {
			return nil, &ValidationError{Tool: toolName, Field: field,
				Err: fmt.Errorf("%w: %v not in %v", ErrInvalidEnumValue, args[field], prop.Enum)}
		}
	}

	for _, field := range schema.Required {
		if value, ok := args[field]; !ok || value == nil {
			return nil, &ValidationError{Tool: toolName, Field: field, Err: ErrMissingRequiredField}
		}
	}

	return args, nil
}

// coerce adapts a value to its declared type. Failed coercions keep the
// original value with a warning, except on required fields where execution
// cannot proceed with a wrongly-typed value.
func coerce(ctx context.Context, value any, prop *Schema, required bool) (any, error) {
	switch prop.Type {
	case "string":
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}

	case "number":
		if s, ok := value.(string); ok {
			if parsed, err := strconv.ParseFloat(s, 64); err == nil {
				return parsed, nil
			}
			if required {
				return nil, fmt.Errorf("%w: %q is not a number", ErrCoercionFailed, s)
			}
			slog.WarnContext(ctx, "keeping unparseable number argument", "value", logger.Truncate(s, 50))
		}

	case "integer":
		switch v := value.(type) {
		case string:
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				return parsed, nil
			}
			if required {
				return nil, fmt.Errorf("%w: %q is not an integer", ErrCoercionFailed, v)
			}
			slog.WarnContext(ctx, "keeping unparseable integer argument", "value", logger.Truncate(v, 50))
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		}

	case "boolean":
		if s, ok := value.(string); ok {
			switch s {
			case "true", "1":
				return true, nil
			case "false", "0":
				return false, nil
			}
			if required {
				return nil, fmt.Errorf("%w: %q is not a boolean", ErrCoercionFailed, s)
			}
			slog.WarnContext(ctx, "keeping unparseable boolean argument", "value", logger.Truncate(s, 50))
		}

	case "array":
		if _, ok := value.([]any); ok {
			return value, nil
		}
		if s, ok := value.(string); ok {
			var parsed []any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return parsed, nil
			}
		}
		// Scalar where an array was declared: wrap it.
		return []any{value}, nil

	case "object":
		if s, ok := value.(string); ok {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return parsed, nil
			}
			if required {
				return nil, fmt.Errorf("%w: string is not a JSON object", ErrCoercionFailed)
			}
			slog.WarnContext(ctx, "keeping unparseable object argument", "value", logger.Truncate(s, 50))
		}
	}

	return value, nil
}

// enumContains compares loosely across JSON number representations, since
// coercion may have produced an int64 where the schema declares floats.
func enumContains(enum []any, value any) bool {
	for _, member := range enum {
		if member == value {
			return true
		}
		mf, mok := asFloat(member)
		vf, vok := asFloat(value)
		if mok && vok && mf == vf {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
