package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"hivemind.app/conduit/common/llm"
	"hivemind.app/conduit/internal/orchestrator"
)

// maxStreamLength caps each conversation stream (approximate trim, XADD
// MAXLEN ~). Old entries only matter to a live subscriber.
const maxStreamLength = 1024

// Publisher writes orchestrator events to Redis streams. It implements
// orchestrator.Sink; publish failures are logged and swallowed since the
// turn itself must not fail because a UI feed hiccuped.
type Publisher struct {
	client *redis.Client
	prefix string
}

func NewPublisher(client *redis.Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

func (p *Publisher) AssistantText(ctx context.Context, conversationID int64, content string) {
	p.publish(ctx, Event{
		Type:           TypeAssistantText,
		ConversationID: conversationID,
		Content:        content,
	})
}

func (p *Publisher) ToolPromptRequired(ctx context.Context, prompt orchestrator.ToolPrompt) {
	p.publish(ctx, Event{
		Type:           TypeToolPrompt,
		ConversationID: prompt.ConversationID,
		PromptID:       prompt.ID,
		BatchID:        prompt.BatchID,
		Tool:           prompt.Call.Name,
		ServiceID:      prompt.ServiceID,
		ServiceName:    prompt.ServiceName,
		Content:        prompt.Call.Arguments,
		Error:          prompt.RouteErr,
	})
}

func (p *Publisher) ToolResult(ctx context.Context, conversationID int64, call llm.ToolCall, result string, err error) {
	event := Event{
		Type:           TypeToolResult,
		ConversationID: conversationID,
		Tool:           call.Name,
		Content:        result,
	}
	if err != nil {
		event.Error = err.Error()
	}
	p.publish(ctx, event)
}

func (p *Publisher) TurnComplete(ctx context.Context, conversationID int64, finalContent string) {
	p.publish(ctx, Event{
		Type:           TypeTurnComplete,
		ConversationID: conversationID,
		Content:        finalContent,
	})
}

func (p *Publisher) TurnFailed(ctx context.Context, conversationID int64, err error) {
	p.publish(ctx, Event{
		Type:           TypeTurnFailed,
		ConversationID: conversationID,
		Error:          err.Error(),
	})
}

func (p *Publisher) publish(ctx context.Context, event Event) {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(p.prefix, event.ConversationID),
		MaxLen: maxStreamLength,
		Approx: true,
		Values: event.values(),
	}).Err()
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish turn event",
			"type", event.Type,
			"conversation_id", event.ConversationID,
			"error", err)
	}
}

// Reader tails one conversation's stream. Every subscriber reads the whole
// stream independently; there is no consumer group because UI feeds are
// fan-out, not work distribution.
type Reader struct {
	client *redis.Client
	stream string
	lastID string
	block  time.Duration
}

// NewReader tails a conversation stream starting after lastID ("0" replays
// everything still retained).
func NewReader(client *redis.Client, prefix string, conversationID int64, lastID string, block time.Duration) *Reader {
	if lastID == "" {
		lastID = "0"
	}
	return &Reader{
		client: client,
		stream: StreamName(prefix, conversationID),
		lastID: lastID,
		block:  block,
	}
}

// LastID returns the ID of the newest entry currently in the stream, or "0"
// for an empty stream. Tailing from this point skips history without
// missing entries written after the call.
func LastID(ctx context.Context, client *redis.Client, prefix string, conversationID int64) (string, error) {
	entries, err := client.XRevRangeN(ctx, StreamName(prefix, conversationID), "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("reading stream head: %w", err)
	}
	if len(entries) == 0 {
		return "0", nil
	}
	return entries[0].ID, nil
}

// Next blocks for up to the configured duration and returns any new events.
// An empty slice means the block elapsed quietly; callers use it to emit
// keepalives.
func (r *Reader) Next(ctx context.Context) ([]Event, error) {
	streams, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{r.stream, r.lastID},
		Count:   64,
		Block:   r.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading stream %s: %w", r.stream, err)
	}

	var out []Event
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			r.lastID = msg.ID
			event, parseErr := ParseEvent(msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "skipping malformed turn event",
					"stream", r.stream,
					"raw_message_id", msg.ID,
					"error", parseErr)
				continue
			}
			out = append(out, event)
		}
	}
	return out, nil
}
