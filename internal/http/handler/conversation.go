package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hivemind.app/conduit/common/id"
	"hivemind.app/conduit/internal/http/dto"
	"hivemind.app/conduit/internal/model"
	"hivemind.app/conduit/internal/store"
)

type ConversationHandler struct {
	conversations store.ConversationStore
}

func NewConversationHandler(conversations store.ConversationStore) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        id.New(),
		Title:     req.Title,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.conversations.Create(ctx, conv); err != nil {
		slog.ErrorContext(ctx, "failed to create conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	conversations, err := h.conversations.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list conversations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	out := make([]*dto.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		out = append(out, dto.ToConversationResponse(&conversations[i]))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := parseIDParam(c)
	if !ok {
		return
	}

	conv, err := h.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, dto.ToConversationDetailResponse(conv))
}

func (h *ConversationHandler) Rename(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req dto.UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversations.UpdateTitle(ctx, conversationID, req.Title); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to update title", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update title"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) SetMetadata(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req dto.SetMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversations.SetMetadata(ctx, conversationID, req.Key, req.Value); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to set metadata", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set metadata"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.conversations.Delete(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to delete conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	c.Status(http.StatusNoContent)
}

func parseIDParam(c *gin.Context) (int64, bool) {
	parsed, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return parsed, true
}
