package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"hivemind.app/conduit/common/id"
	"hivemind.app/conduit/common/llm"
	"hivemind.app/conduit/common/logger"
	"hivemind.app/conduit/common/otel"
	"hivemind.app/conduit/core/config"
	"hivemind.app/conduit/core/db"
	"hivemind.app/conduit/internal/events"
	"hivemind.app/conduit/internal/http/middleware"
	httprouter "hivemind.app/conduit/internal/http/router"
	"hivemind.app/conduit/internal/orchestrator"
	"hivemind.app/conduit/internal/registry"
	"hivemind.app/conduit/internal/store"
	"hivemind.app/conduit/internal/tools"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "conduit starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := store.Migrate(ctx, database); err != nil {
		slog.ErrorContext(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Events.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream_prefix", cfg.Events.RedisStream)

	streamer, err := llm.NewOpenAIStreamer(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create chat client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "chat client ready", "model", streamer.Model(), "base_url", cfg.LLM.BaseURL)

	executor := tools.NewExecutor(tools.NewMCPClient("conduit", version), tools.NewBuiltinService())
	defer executor.Close()

	reg := registry.New(executor, cfg.ToolServices, cfg.ToolEnabled)
	if err := reg.Refresh(ctx); err != nil {
		// Unreachable tool services at boot are not fatal; the catalog can
		// be refreshed once they come up.
		slog.WarnContext(ctx, "tool catalog refresh had errors", "error", err)
	}

	conversations := store.NewConversationStore(database)
	publisher := events.NewPublisher(redisClient, cfg.Events.RedisStream)

	orch := orchestrator.New(
		orchestrator.Config{
			MaxDepth:        cfg.Orchestrator.MaxDepth,
			ResubmitRetries: cfg.Orchestrator.ResubmitRetries,
			ConcludeRetries: cfg.Orchestrator.ConcludeRetries,
			PromptTTL:       cfg.Orchestrator.PromptTTL,
		},
		streamer,
		reg,
		executor,
		conversations,
		publisher,
		orchestrator.DefaultSufficiency,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Dependencies{
		Conversations: conversations,
		Runner:        orch,
		Registry:      reg,
		Redis:         redisClient,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Long-lived SSE responses; no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, deps httprouter.Dependencies) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, deps, httprouter.RouterConfig{
		APIKey:       cfg.APIKey,
		StreamPrefix: cfg.Events.RedisStream,
	})

	return router
}

const version = "0.1.0"

const banner = `
 ██████╗ ██████╗ ███╗   ██╗██████╗ ██╗   ██╗██╗████████╗
██╔════╝██╔═══██╗████╗  ██║██╔══██╗██║   ██║██║╚══██╔══╝
██║     ██║   ██║██╔██╗ ██║██║  ██║██║   ██║██║   ██║
██║     ██║   ██║██║╚██╗██║██║  ██║██║   ██║██║   ██║
╚██████╗╚██████╔╝██║ ╚████║██████╔╝╚██████╔╝██║   ██║
 ╚═════╝ ╚═════╝ ╚═╝  ╚═══╝╚═════╝  ╚═════╝ ╚═╝   ╚═╝
`
