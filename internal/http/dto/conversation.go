package dto

import (
	"time"

	"hivemind.app/conduit/internal/model"
)

type CreateConversationRequest struct {
	Title    string            `json:"title" binding:"omitempty,max=255"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type TurnRequest struct {
	Content string `json:"content" binding:"required,min=1,max=32768"`
}

type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required,min=1,max=255"`
}

type SetMetadataRequest struct {
	Key   string `json:"key" binding:"required,min=1,max=255"`
	Value string `json:"value" binding:"max=4096"`
}

type ToolCallResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type MessageResponse struct {
	ID         int64              `json:"id,string"`
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	ToolCalls  []ToolCallResponse `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	ToolName   string             `json:"tool_name,omitempty"`
	IsError    bool               `json:"is_error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

type ConversationResponse struct {
	ID        int64             `json:"id,string"`
	Title     string            `json:"title"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type ConversationDetailResponse struct {
	ConversationResponse
	Messages []MessageResponse `json:"messages"`
}

func ToConversationResponse(conv *model.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		Metadata:  conv.Metadata,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

func ToConversationDetailResponse(conv *model.Conversation) *ConversationDetailResponse {
	resp := &ConversationDetailResponse{
		ConversationResponse: *ToConversationResponse(conv),
		Messages:             make([]MessageResponse, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Messages {
		resp.Messages = append(resp.Messages, ToMessageResponse(msg))
	}
	return resp
}

func ToMessageResponse(msg model.Message) MessageResponse {
	out := MessageResponse{
		ID:         msg.ID,
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		ToolName:   msg.ToolName,
		IsError:    msg.IsError,
		CreatedAt:  msg.CreatedAt,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCallResponse{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	return out
}
