package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"hivemind.app/conduit/internal/http/dto"
	"hivemind.app/conduit/internal/registry"
)

type ToolHandler struct {
	registry *registry.Registry
}

func NewToolHandler(reg *registry.Registry) *ToolHandler {
	return &ToolHandler{registry: reg}
}

// List returns the per-service tool catalog the way the UI renders it:
// grouped by service, with enablement and auto-execution flags.
func (h *ToolHandler) List(c *gin.Context) {
	services := h.registry.Services()

	resp := dto.ToolCatalogResponse{
		Services: make([]dto.ToolServiceResponse, 0, len(services)),
	}
	for _, svc := range services {
		resp.Services = append(resp.Services, dto.ToToolServiceResponse(svc))
	}
	if _, err := h.registry.Catalog(); err != nil {
		resp.Warning = err.Error()
	}

	c.JSON(http.StatusOK, resp)
}

// Refresh re-fetches every service's tool list.
func (h *ToolHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.registry.Refresh(ctx); err != nil {
		// Partial refreshes keep the registry usable; report what failed.
		slog.WarnContext(ctx, "tool catalog refresh had errors", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}
