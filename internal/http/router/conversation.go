package router

import (
	"github.com/gin-gonic/gin"

	"hivemind.app/conduit/internal/http/handler"
)

func ConversationRouter(rg *gin.RouterGroup, h *handler.ConversationHandler, turns *handler.TurnHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Rename)
	rg.PUT("/:id/metadata", h.SetMetadata)
	rg.DELETE("/:id", h.Delete)

	rg.POST("/:id/turns", turns.Run)
	rg.GET("/:id/events", turns.Events)
}
