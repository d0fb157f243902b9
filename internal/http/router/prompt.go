package router

import (
	"github.com/gin-gonic/gin"

	"hivemind.app/conduit/internal/http/handler"
)

func PromptRouter(rg *gin.RouterGroup, h *handler.PromptHandler) {
	rg.POST("/:id/confirm", h.Confirm)
	rg.POST("/:id/cancel", h.Cancel)
}
