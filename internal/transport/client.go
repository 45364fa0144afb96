package transport

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Client is the narrow surface every transport-specific client must satisfy:
// the six MCP verbs plus Initialize/Close/Ping. The three verbs a payment
// policy can apply to (CallTool/ReadResource/GetPrompt) additionally take an
// OutboundAuth so a transport that speaks HTTP can react to a downstream 402
// per spec §4.5.3; transports with no such concept (stdio, websocket) simply
// ignore it. mcp-go's stdio client is adapted to this shape by mcpGoAdapter;
// the HTTP/SSE and websocket branches implement it directly.
type Client interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	Close() error
	Ping(ctx context.Context) error
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest, auth OutboundAuth) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ReadResource(ctx context.Context, request mcp.ReadResourceRequest, auth OutboundAuth) (*mcp.ReadResourceResult, error)
	ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, request mcp.GetPromptRequest, auth OutboundAuth) (*mcp.GetPromptResult, error)
}
