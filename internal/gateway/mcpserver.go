package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer builds an mcp-go server exposing every tool/resource/prompt
// currently in the Registry, wired straight through to the Front-End's
// verbs. This is the primary downstream-facing MCP endpoint of spec §2
// component #7/§4.7 — the stdio/streaming MCP binding cmd/gateway serves
// unconditionally, independent of whether the optional HTTP wrapper in
// http.go is also enabled. It snapshots the registry at construction time,
// matching the rest of the aggregated surface being snapshot-based per spec
// §4.4; call it again after a RefreshRegistry if upstreams change and the
// binding needs to be re-served.
func NewMCPServer(f *FrontEnd, name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
	)

	if tools := buildServerTools(f); len(tools) > 0 {
		s.AddTools(tools...)
	}
	if resources := buildServerResources(f); len(resources) > 0 {
		s.AddResources(resources...)
	}
	if prompts := buildServerPrompts(f); len(prompts) > 0 {
		s.AddPrompts(prompts...)
	}

	return s
}

// stdio connections carry no HTTP headers; noHeaders stands in for them so
// the Mediator sees an anonymous inbound request (admitted free only when the
// entry's pricing is free or payment is disabled, challenged otherwise)
// instead of a nil that would need special-casing at every AdmitInbound call
// site.
var noHeaders = http.Header{}

func buildServerTools(f *FrontEnd) []server.ServerTool {
	entries := f.registry.ListTools()
	tools := make([]server.ServerTool, 0, len(entries))
	for _, entry := range entries {
		entry := entry
		tools = append(tools, server.ServerTool{
			Tool: mcp.Tool{Name: entry.ExposedName, Description: entry.Description},
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				args, _ := req.Params.Arguments.(map[string]interface{})
				result, rpcErr := f.CallTool(ctx, req.Params.Name, args, noHeaders, "/tools/"+req.Params.Name)
				if rpcErr != nil {
					return mcp.NewToolResultError(rpcErrMessage(rpcErr)), nil
				}
				return result, nil
			},
		})
	}
	return tools
}

func buildServerResources(f *FrontEnd) []server.ServerResource {
	entries := f.registry.ListResources()
	resources := make([]server.ServerResource, 0, len(entries))
	for _, entry := range entries {
		entry := entry
		resources = append(resources, server.ServerResource{
			Resource: mcp.Resource{URI: entry.ExposedName, Description: entry.Description, MIMEType: entry.MimeType},
			Handler: func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				result, rpcErr := f.ReadResource(ctx, req.Params.URI, noHeaders)
				if rpcErr != nil {
					return nil, rpcErr
				}
				return result.Contents, nil
			},
		})
	}
	return resources
}

func buildServerPrompts(f *FrontEnd) []server.ServerPrompt {
	entries := f.registry.ListPrompts()
	prompts := make([]server.ServerPrompt, 0, len(entries))
	for _, entry := range entries {
		entry := entry
		args := make([]mcp.PromptArgument, 0, len(entry.Arguments))
		for _, a := range entry.Arguments {
			args = append(args, mcp.PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		prompts = append(prompts, server.ServerPrompt{
			Prompt: mcp.Prompt{Name: entry.ExposedName, Description: entry.Description, Arguments: args},
			Handler: func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
				result, rpcErr := f.GetPrompt(ctx, req.Params.Name, req.Params.Arguments, noHeaders)
				if rpcErr != nil {
					return nil, rpcErr
				}
				return result, nil
			},
		})
	}
	return prompts
}

// rpcErrMessage folds an RPCError's payment-challenge data into the
// tool-result error text: a stdio-connected client has no X-Accept-Payment
// header or HTTP 402 status the way http.go's wrapper gives it, so the
// PaymentRequirements have to travel as a string for it to see them at all.
func rpcErrMessage(rpcErr *RPCError) string {
	if rpcErr.Data == nil {
		return rpcErr.Message
	}
	data, err := json.Marshal(rpcErr.Data)
	if err != nil {
		return rpcErr.Message
	}
	return fmt.Sprintf("%s: %s", rpcErr.Message, string(data))
}
