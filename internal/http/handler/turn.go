package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"hivemind.app/conduit/internal/events"
	"hivemind.app/conduit/internal/http/dto"
	"hivemind.app/conduit/internal/orchestrator"
	"hivemind.app/conduit/internal/store"
)

const (
	ssePollBlock = 5 * time.Second
	// How long to keep draining the event stream after the turn goroutine
	// returns, so the terminal event reaches the client.
	drainTimeout = 3 * time.Second
)

// TurnRunner is the orchestrator surface the HTTP layer needs.
type TurnRunner interface {
	RunTurn(ctx context.Context, conversationID int64, userContent string) (string, error)
	ConfirmPrompt(promptID int64) error
	CancelPrompt(promptID int64) error
}

type TurnHandler struct {
	runner       TurnRunner
	redis        *redis.Client
	streamPrefix string
}

func NewTurnHandler(runner TurnRunner, redisClient *redis.Client, streamPrefix string) *TurnHandler {
	return &TurnHandler{runner: runner, redis: redisClient, streamPrefix: streamPrefix}
}

// Run starts a turn and streams its events back over SSE until the turn
// reaches a terminal state. The turn itself runs detached from the request
// context: a dropped SSE connection must not cancel tool executions in
// flight, the client reconnects via Events instead.
func (h *TurnHandler) Run(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req dto.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Resolve the stream head before launching, so no event of this turn
	// can slip between "turn started" and "reader attached".
	lastID, err := events.LastID(ctx, h.redis, h.streamPrefix, conversationID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read event stream head", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event stream unavailable"})
		return
	}

	done := make(chan error, 1)
	go func() {
		_, runErr := h.runner.RunTurn(context.WithoutCancel(ctx), conversationID, req.Content)
		done <- runErr
	}()

	setSSEHeaders(c.Writer)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	sseWrite(c.Writer, "ping", "ready")
	flusher.Flush()

	reader := events.NewReader(h.redis, h.streamPrefix, conversationID, lastID, ssePollBlock)
	turnDone := false
	var deadline <-chan time.Time

	for {
		select {
		case runErr := <-done:
			turnDone = true
			deadline = time.After(drainTimeout)
			if runErr != nil && !terminalEventExpected(runErr) {
				// Errors raised before the loop started (busy, unknown
				// conversation) never reach the event stream.
				sseWrite(c.Writer, string(events.TypeTurnFailed), map[string]string{"error": runErr.Error()})
				flusher.Flush()
				return
			}
		case <-deadline:
			slog.WarnContext(ctx, "terminal turn event did not arrive before drain timeout")
			return
		case <-ctx.Done():
			return
		default:
		}

		batch, err := reader.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "event stream read failed", "error", err)
			sseWrite(c.Writer, "error", map[string]string{"error": "event stream read failed"})
			flusher.Flush()
			return
		}
		if len(batch) == 0 {
			if !turnDone {
				sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
				flusher.Flush()
			}
			continue
		}

		for _, event := range batch {
			sseWrite(c.Writer, string(event.Type), event)
			flusher.Flush()
			if event.Type == events.TypeTurnComplete || event.Type == events.TypeTurnFailed {
				return
			}
		}
	}
}

// Events re-attaches a client to a conversation's live event stream, e.g.
// after the popup was closed while a confirmation prompt was pending.
func (h *TurnHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := parseIDParam(c)
	if !ok {
		return
	}

	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = "0"
	}

	setSSEHeaders(c.Writer)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	sseWrite(c.Writer, "ping", "ready")
	flusher.Flush()

	reader := events.NewReader(h.redis, h.streamPrefix, conversationID, lastID, 25*time.Second)
	for {
		if ctx.Err() != nil {
			return
		}

		batch, err := reader.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sseWrite(c.Writer, "error", map[string]string{"error": "event stream read failed"})
			flusher.Flush()
			return
		}
		if len(batch) == 0 {
			sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
			continue
		}

		for _, event := range batch {
			sseWrite(c.Writer, string(event.Type), event)
			flusher.Flush()
		}
	}
}

// terminalEventExpected reports whether the orchestrator will have emitted
// a turn_failed event for this error, making a handler-synthesized one
// redundant.
func terminalEventExpected(err error) bool {
	return !errors.Is(err, orchestrator.ErrConversationBusy) && !errors.Is(err, store.ErrNotFound)
}
