package transport

import (
	"context"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpGoAdapter adapts mcp-go's client.MCPClient (whose six verbs take no
// auth parameter) to this package's Client interface. It backs the stdio
// transport, the one kind with no notion of per-call outbound
// authorization: a spawned subprocess has no HTTP headers to rewrite and no
// 402 response to react to, so the OutboundAuth it's handed is simply
// dropped.
type mcpGoAdapter struct {
	c client.MCPClient
}

func (a *mcpGoAdapter) Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return a.c.Initialize(ctx, request)
}

func (a *mcpGoAdapter) Close() error { return a.c.Close() }

func (a *mcpGoAdapter) Ping(ctx context.Context) error { return a.c.Ping(ctx) }

func (a *mcpGoAdapter) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return a.c.ListTools(ctx, request)
}

func (a *mcpGoAdapter) CallTool(ctx context.Context, request mcp.CallToolRequest, _ OutboundAuth) (*mcp.CallToolResult, error) {
	return a.c.CallTool(ctx, request)
}

func (a *mcpGoAdapter) ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	return a.c.ListResources(ctx, request)
}

func (a *mcpGoAdapter) ReadResource(ctx context.Context, request mcp.ReadResourceRequest, _ OutboundAuth) (*mcp.ReadResourceResult, error) {
	return a.c.ReadResource(ctx, request)
}

func (a *mcpGoAdapter) ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	return a.c.ListPrompts(ctx, request)
}

func (a *mcpGoAdapter) GetPrompt(ctx context.Context, request mcp.GetPromptRequest, _ OutboundAuth) (*mcp.GetPromptResult, error) {
	return a.c.GetPrompt(ctx, request)
}
