package router

import (
	"github.com/gin-gonic/gin"

	"hivemind.app/conduit/internal/http/handler"
)

func ToolRouter(rg *gin.RouterGroup, h *handler.ToolHandler) {
	rg.GET("", h.List)
	rg.POST("/refresh", h.Refresh)
}
