package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"hivemind.app/conduit/internal/orchestrator"
)

type PromptHandler struct {
	runner TurnRunner
}

func NewPromptHandler(runner TurnRunner) *PromptHandler {
	return &PromptHandler{runner: runner}
}

func (h *PromptHandler) Confirm(c *gin.Context) {
	h.resolve(c, h.runner.ConfirmPrompt, "confirmed")
}

func (h *PromptHandler) Cancel(c *gin.Context) {
	h.resolve(c, h.runner.CancelPrompt, "cancelled")
}

func (h *PromptHandler) resolve(c *gin.Context, resolve func(int64) error, action string) {
	ctx := c.Request.Context()

	promptID, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := resolve(promptID); err != nil {
		if errors.Is(err, orchestrator.ErrUnknownPrompt) {
			c.JSON(http.StatusNotFound, gin.H{"error": "prompt not found or already resolved"})
			return
		}
		slog.ErrorContext(ctx, "failed to resolve prompt", "prompt_id", promptID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve prompt"})
		return
	}

	slog.InfoContext(ctx, "tool prompt resolved", "prompt_id", promptID, "action", action)
	c.JSON(http.StatusOK, gin.H{"status": action})
}
