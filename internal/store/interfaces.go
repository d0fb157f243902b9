package store

import (
	"context"
	"errors"

	"hivemind.app/conduit/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ConversationStore defines the contract for conversation data access.
// Every append must be durable before the orchestrator issues its next
// network call, so a crash mid-loop leaves a consistent, resumable log.
type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	List(ctx context.Context) ([]model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID int64, msg *model.Message) error
	UpdateTitle(ctx context.Context, id int64, title string) error
	SetMetadata(ctx context.Context, id int64, key, value string) error
	Delete(ctx context.Context, id int64) error
}
