package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hivemind.app/conduit/core/db"
	"hivemind.app/conduit/internal/model"
)

type conversationStore struct {
	db *db.DB
}

// NewConversationStore creates a Postgres-backed ConversationStore.
func NewConversationStore(database *db.DB) ConversationStore {
	return &conversationStore{db: database}
}

func (s *conversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	metadata, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	row := s.db.Pool().QueryRow(ctx, `
		INSERT INTO conversations (id, title, metadata)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		conv.ID, conv.Title, metadata)
	if err := row.Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	conv := &model.Conversation{ID: id}

	var metadata []byte
	row := s.db.Pool().QueryRow(ctx, `
		SELECT title, metadata, created_at, updated_at
		FROM conversations WHERE id = $1`, id)
	if err := row.Scan(&conv.Title, &metadata, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	rows, err := s.db.Pool().Query(ctx, `
		SELECT id, role, content, tool_calls, tool_call_id, tool_name, is_error, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		msg := model.Message{ConversationID: id}
		var toolCalls []byte
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &toolCalls,
			&msg.ToolCallID, &msg.ToolName, &msg.IsError, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
			}
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, rows.Err()
}

func (s *conversationStore) List(ctx context.Context) ([]model.Conversation, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// AppendMessage inserts the message and bumps the conversation's updated_at
// in one transaction. Returns before the caller's next network call only
// once the append is committed.
func (s *conversationStore) AppendMessage(ctx context.Context, conversationID int64, msg *model.Message) error {
	var toolCalls []byte
	if len(msg.ToolCalls) > 0 {
		var err error
		toolCalls, err = json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshaling tool calls: %w", err)
		}
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_call_id, tool_name, is_error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at`,
			msg.ID, conversationID, msg.Role, msg.Content, toolCalls,
			msg.ToolCallID, msg.ToolName, msg.IsError)
		if err := row.Scan(&msg.CreatedAt); err != nil {
			return fmt.Errorf("appending message: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *conversationStore) UpdateTitle(ctx context.Context, id int64, title string) error {
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`, id, title)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *conversationStore) SetMetadata(ctx context.Context, id int64, key, value string) error {
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE conversations
		SET metadata = coalesce(metadata, '{}'::jsonb) || jsonb_build_object($2::text, $3::text),
		    updated_at = now()
		WHERE id = $1`, id, key, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *conversationStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
