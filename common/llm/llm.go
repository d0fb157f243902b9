package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Config holds chat client configuration.
type Config struct {
	APIKey    string // Required: API key for the completion endpoint
	BaseURL   string // Optional: any OpenAI-compatible endpoint
	Model     string // Model name (e.g., "gpt-4o")
	MaxTokens int
}

// Streamer produces streamed tool-calling completions.
type Streamer interface {
	// StreamTurn opens a streamed completion for the given messages and
	// tool catalog. A nil/empty Tools slice omits the catalog entirely,
	// forcing a plain text response.
	StreamTurn(ctx context.Context, req TurnRequest) (Stream, error)
	Model() string
}

// TurnRequest contains the messages and tools for one model turn.
type TurnRequest struct {
	Messages    []Message
	Tools       []Tool
	MaxTokens   int
	Temperature *float64
}

// Stream yields frames of a streamed completion. Recv returns io.EOF when
// the stream is exhausted.
type Stream interface {
	Recv() (Frame, error)
	Close() error
}

// Frame is one increment of a streamed response: a text fragment, a
// slot-indexed tool-call fragment, or usage totals on the final frame.
type Frame struct {
	Text     string
	ToolCall *ToolCallDelta
	Usage    *Usage
}

// ToolCallDelta is a partial tool call keyed by slot index. The ID and Name
// arrive once per slot; Arguments arrives as appended string fragments with
// no semantic boundaries.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Usage reports token counts for a completed stream.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Message represents a conversation message.
type Message struct {
	Role       string     // "system", "user", "assistant", "tool"
	Content    string     // Text content
	ToolCalls  []ToolCall // For assistant messages that request tool calls
	ToolCallID string     // For tool result messages (references the tool call)
}

// Tool defines a function the model can call.
type Tool struct {
	Name        string
	Description string
	Parameters  any // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string // Unique ID for this call
	Name      string // Tool name
	Arguments string // JSON-encoded arguments
}

// ParseToolArguments unmarshals tool arguments into the target struct.
func ParseToolArguments[T any](arguments string) (T, error) {
	var result T
	if err := json.Unmarshal([]byte(arguments), &result); err != nil {
		return result, fmt.Errorf("parse tool arguments: %w", err)
	}
	return result, nil
}

// GenerateSchemaFrom generates a JSON schema from an instance value.
// Used for declaring parameter schemas of locally-implemented tools.
func GenerateSchemaFrom(v any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}
