package orchestrator

import (
	"context"

	"hivemind.app/conduit/common/llm"
)

// ToolPrompt is a pending manual confirmation surfaced to the UI. RouteErr
// is set when the tool's owning service could not be resolved; such calls
// are surfaced as error prompts rather than silently skipped.
type ToolPrompt struct {
	ID             int64
	BatchID        int64
	ConversationID int64
	Call           llm.ToolCall
	ServiceID      string
	ServiceName    string
	RouteErr       string
}

// Sink receives the loop's events. The core never renders anything; the UI
// layer derives its entire view from these calls and feeds decisions back
// in through ConfirmPrompt/CancelPrompt on the Orchestrator.
type Sink interface {
	AssistantText(ctx context.Context, conversationID int64, content string)
	ToolPromptRequired(ctx context.Context, prompt ToolPrompt)
	ToolResult(ctx context.Context, conversationID int64, call llm.ToolCall, result string, err error)
	TurnComplete(ctx context.Context, conversationID int64, finalContent string)
	TurnFailed(ctx context.Context, conversationID int64, err error)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) AssistantText(ctx context.Context, conversationID int64, content string) {
	for _, s := range m {
		s.AssistantText(ctx, conversationID, content)
	}
}

func (m MultiSink) ToolPromptRequired(ctx context.Context, prompt ToolPrompt) {
	for _, s := range m {
		s.ToolPromptRequired(ctx, prompt)
	}
}

func (m MultiSink) ToolResult(ctx context.Context, conversationID int64, call llm.ToolCall, result string, err error) {
	for _, s := range m {
		s.ToolResult(ctx, conversationID, call, result, err)
	}
}

func (m MultiSink) TurnComplete(ctx context.Context, conversationID int64, finalContent string) {
	for _, s := range m {
		s.TurnComplete(ctx, conversationID, finalContent)
	}
}

func (m MultiSink) TurnFailed(ctx context.Context, conversationID int64, err error) {
	for _, s := range m {
		s.TurnFailed(ctx, conversationID, err)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) AssistantText(context.Context, int64, string)                  {}
func (NopSink) ToolPromptRequired(context.Context, ToolPrompt)                {}
func (NopSink) ToolResult(context.Context, int64, llm.ToolCall, string, error) {}
func (NopSink) TurnComplete(context.Context, int64, string)                   {}
func (NopSink) TurnFailed(context.Context, int64, error)                      {}
