package model

import "time"

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ToolCall is a model-issued request to invoke a named tool, as recorded on
// an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded
}

// Message is one turn in a conversation. Assistant messages may carry tool
// calls and an empty content; tool messages carry the result of exactly one
// call, correlated by ToolCallID to a preceding assistant message.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID     string     `json:"tool_call_id,omitempty"`
	ToolName       string     `json:"tool_name,omitempty"`
	IsError        bool       `json:"is_error,omitempty"` // tool messages: result is an error trace
	CreatedAt      time.Time  `json:"created_at"`
}

// Conversation is the append-only log fed back into every model call.
// Metadata holds cross-cutting facts detected during the conversation
// (e.g., notification addresses).
type Conversation struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
