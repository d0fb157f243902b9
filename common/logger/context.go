package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so business identifiers
// (conversation_id, batch_id, tool) show up in every log statement without
// being threaded by hand.
type LogFields struct {
	ConversationID *int64  // Conversation being served
	TurnID         *int64  // Root user turn driving the current loop
	BatchID        *int64  // Tool-call batch in flight
	ToolName       *string // Tool being validated/executed
	ServiceID      *string // Owning tool service
	Component      string  // Component name (e.g., "conduit.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.TurnID != nil {
		result.TurnID = next.TurnID
	}
	if next.BatchID != nil {
		result.BatchID = next.BatchID
	}
	if next.ToolName != nil {
		result.ToolName = next.ToolName
	}
	if next.ServiceID != nil {
		result.ServiceID = next.ServiceID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{BatchID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like queries or tool results.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
