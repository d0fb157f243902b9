package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"hivemind.app/conduit/internal/http/handler"
	"hivemind.app/conduit/internal/http/middleware"
	"hivemind.app/conduit/internal/registry"
	"hivemind.app/conduit/internal/store"
)

type RouterConfig struct {
	APIKey       string
	StreamPrefix string
}

type Dependencies struct {
	Conversations store.ConversationStore
	Runner        handler.TurnRunner
	Registry      *registry.Registry
	Redis         *redis.Client
}

func SetupRoutes(router *gin.Engine, deps Dependencies, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.APIKeyAuth(cfg.APIKey))
	{
		conversationHandler := handler.NewConversationHandler(deps.Conversations)
		turnHandler := handler.NewTurnHandler(deps.Runner, deps.Redis, cfg.StreamPrefix)
		ConversationRouter(v1.Group("/conversations"), conversationHandler, turnHandler)

		promptHandler := handler.NewPromptHandler(deps.Runner)
		PromptRouter(v1.Group("/prompts"), promptHandler)

		toolHandler := handler.NewToolHandler(deps.Registry)
		ToolRouter(v1.Group("/tools"), toolHandler)
	}
}
