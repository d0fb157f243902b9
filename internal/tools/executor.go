package tools

import (
	"context"

	"hivemind.app/conduit/core/config"
	"hivemind.app/conduit/internal/model"
)

// Invoker executes one validated tool call against a service endpoint.
type Invoker interface {
	Invoke(ctx context.Context, endpoint, toolName string, args map[string]any) (string, error)
}

// Executor routes tool calls to their backend: locally implemented tools on
// the builtin pseudo-endpoint, everything else over MCP. It also serves as
// the registry's catalog source.
type Executor struct {
	mcp     *MCPClient
	builtin *BuiltinService
}

func NewExecutor(mcpClient *MCPClient, builtin *BuiltinService) *Executor {
	return &Executor{mcp: mcpClient, builtin: builtin}
}

func (e *Executor) ListTools(ctx context.Context, svc config.ToolServiceConfig) ([]model.ToolDescriptor, error) {
	if svc.Endpoint == BuiltinEndpoint {
		return e.builtin.ListTools(ctx, svc)
	}
	return e.mcp.ListTools(ctx, svc)
}

func (e *Executor) Invoke(ctx context.Context, endpoint, toolName string, args map[string]any) (string, error) {
	if endpoint == BuiltinEndpoint {
		return e.builtin.Call(ctx, toolName, args)
	}
	return e.mcp.CallTool(ctx, endpoint, toolName, args)
}

// Close releases backend sessions.
func (e *Executor) Close() error {
	return e.mcp.Close()
}
