// Package events publishes turn progress to per-conversation Redis streams.
// The UI subscribes to a conversation's stream to render assistant text,
// confirmation prompts, and tool results while a turn is in flight; streams
// are capped so an abandoned conversation cannot grow without bound.
package events

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	TypeAssistantText EventType = "assistant_text"
	TypeToolPrompt    EventType = "tool_prompt"
	TypeToolResult    EventType = "tool_result"
	TypeTurnComplete  EventType = "turn_complete"
	TypeTurnFailed    EventType = "turn_failed"
)

type Event struct {
	ID             string // Redis stream entry ID, set on read
	Type           EventType
	ConversationID int64
	PromptID       int64 // tool_prompt only
	BatchID        int64 // tool_prompt only
	Tool           string
	ServiceID      string
	ServiceName    string
	Content        string
	Error          string
}

// StreamName returns the Redis stream carrying one conversation's events.
func StreamName(prefix string, conversationID int64) string {
	return fmt.Sprintf("%s:conversation-%d", prefix, conversationID)
}

func (e Event) values() map[string]any {
	values := map[string]any{
		"type":            string(e.Type),
		"conversation_id": e.ConversationID,
	}
	if e.PromptID != 0 {
		values["prompt_id"] = e.PromptID
	}
	if e.BatchID != 0 {
		values["batch_id"] = e.BatchID
	}
	if e.Tool != "" {
		values["tool"] = e.Tool
	}
	if e.ServiceID != "" {
		values["service_id"] = e.ServiceID
	}
	if e.ServiceName != "" {
		values["service_name"] = e.ServiceName
	}
	if e.Content != "" {
		values["content"] = e.Content
	}
	if e.Error != "" {
		values["error"] = e.Error
	}
	return values
}

// ParseEvent decodes a stream entry. Unknown fields are ignored so readers
// tolerate newer writers.
func ParseEvent(msg redis.XMessage) (Event, error) {
	event := Event{ID: msg.ID}

	typ, err := parseString(msg.Values, "type")
	if err != nil {
		return Event{}, err
	}
	event.Type = EventType(typ)

	event.ConversationID, err = parseInt64(msg.Values, "conversation_id")
	if err != nil {
		return Event{}, err
	}

	event.PromptID = parseOptionalInt64(msg.Values, "prompt_id")
	event.BatchID = parseOptionalInt64(msg.Values, "batch_id")
	event.Tool = parseOptionalString(msg.Values, "tool")
	event.ServiceID = parseOptionalString(msg.Values, "service_id")
	event.ServiceName = parseOptionalString(msg.Values, "service_name")
	event.Content = parseOptionalString(msg.Values, "content")
	event.Error = parseOptionalString(msg.Values, "error")

	return event, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt64(values map[string]any, key string) int64 {
	raw, ok := values[key]
	if !ok {
		return 0
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0
	}
	return num
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
