package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"hivemind.app/conduit/core/config"
	"hivemind.app/conduit/internal/model"
)

// ErrToolTransport marks network or protocol failures talking to a tool
// backend. Transport failures are recorded as tool error results and fed
// back to the model; they are not retried here.
var ErrToolTransport = errors.New("tool transport failure")

// MCPClient maintains one session per tool server. Sessions are stateful
// and do not tolerate interleaved requests, so each endpoint's session is
// used serially under its own lock.
type MCPClient struct {
	impl *mcp.Implementation

	mu       sync.Mutex
	sessions map[string]*endpointSession
}

type endpointSession struct {
	mu      sync.Mutex
	session *mcp.ClientSession
}

func NewMCPClient(name, version string) *MCPClient {
	return &MCPClient{
		impl:     &mcp.Implementation{Name: name, Version: version},
		sessions: make(map[string]*endpointSession),
	}
}

// ListTools fetches the full tool list of one service, following pagination.
func (c *MCPClient) ListTools(ctx context.Context, svc config.ToolServiceConfig) ([]model.ToolDescriptor, error) {
	es, err := c.endpoint(ctx, svc.Endpoint)
	if err != nil {
		return nil, err
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	var descriptors []model.ToolDescriptor
	var cursor string
	for {
		page, err := es.session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			c.drop(svc.Endpoint, es)
			return nil, fmt.Errorf("%w: listing tools on %s: %v", ErrToolTransport, svc.ID, err)
		}

		for _, tool := range page.Tools {
			var schema json.RawMessage
			if tool.InputSchema != nil {
				schema, err = json.Marshal(tool.InputSchema)
				if err != nil {
					return nil, fmt.Errorf("marshaling schema for %s: %w", tool.Name, err)
				}
			}
			descriptors = append(descriptors, model.ToolDescriptor{
				Name:        tool.Name,
				Description: tool.Description,
				Schema:      schema,
			})
		}

		if page.NextCursor == "" {
			return descriptors, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool invokes one tool and flattens its content to text. A result the
// server marks as an error is returned as an error carrying the text, so
// the caller records it as a tool failure rather than a success.
func (c *MCPClient) CallTool(ctx context.Context, endpoint, name string, args map[string]any) (string, error) {
	es, err := c.endpoint(ctx, endpoint)
	if err != nil {
		return "", err
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	result, err := es.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		c.drop(endpoint, es)
		return "", fmt.Errorf("%w: calling %s: %v", ErrToolTransport, name, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s reported an error: %s", name, text)
	}
	return text, nil
}

// Close shuts down all cached sessions.
func (c *MCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for endpoint, es := range c.sessions {
		if err := es.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session for %s: %w", endpoint, err))
		}
		delete(c.sessions, endpoint)
	}
	return errors.Join(errs...)
}

// endpoint returns the cached session for an endpoint, dialing on demand.
func (c *MCPClient) endpoint(ctx context.Context, endpoint string) (*endpointSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if es, ok := c.sessions[endpoint]; ok {
		return es, nil
	}

	client := mcp.NewClient(c.impl, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: endpoint}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrToolTransport, endpoint, err)
	}

	slog.InfoContext(ctx, "mcp session established", "endpoint", endpoint)
	es := &endpointSession{session: session}
	c.sessions[endpoint] = es
	return es, nil
}

// drop evicts a session after a transport failure so the next call redials.
func (c *MCPClient) drop(endpoint string, es *endpointSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.sessions[endpoint]; ok && current == es {
		_ = es.session.Close()
		delete(c.sessions, endpoint)
	}
}

func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		if text, ok := item.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
