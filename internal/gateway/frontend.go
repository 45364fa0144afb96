// Package gateway implements the Gateway Front-End of spec §4.7: the
// downstream-facing MCP endpoint answering list* from the Registry and
// call*/read*/get* by consulting the Mediator then dispatching through the
// Connection Manager, plus an optional HTTP wrapper (internal/gateway/http.go).
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/elizaOS/mcp-gateway/internal/connmgr"
	"github.com/elizaOS/mcp-gateway/internal/payment"
	"github.com/elizaOS/mcp-gateway/internal/registry"
	"github.com/elizaOS/mcp-gateway/internal/upstream"
	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

const subsystem = "Gateway"

// RPCError mirrors the JSON-RPC error shape the Front-End surfaces, per
// spec §6 ("standard JSON-RPC codes: MethodNotFound ... InternalError").
type RPCError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *RPCError) Error() string { return e.Message }

func methodNotFound(message string) *RPCError {
	return &RPCError{Code: mcp.METHOD_NOT_FOUND, Message: message}
}

func internalError(message string) *RPCError {
	return &RPCError{Code: mcp.INTERNAL_ERROR, Message: message}
}

func paymentRequired(req *payment.Requirements) *RPCError {
	return &RPCError{Code: mcp.INTERNAL_ERROR, Message: "payment required", Data: req}
}

// FrontEnd wires the Registry, Connection Manager, and Mediator into the
// six downstream MCP verbs.
type FrontEnd struct {
	registry *registry.Registry
	connMgr  *connmgr.Manager
	mediator *payment.Mediator
	policies map[string]payment.UpstreamPolicy // upstreamId -> its UpstreamPaymentPolicy, per spec §3
}

func New(reg *registry.Registry, connMgr *connmgr.Manager, mediator *payment.Mediator, policies map[string]payment.UpstreamPolicy) *FrontEnd {
	return &FrontEnd{registry: reg, connMgr: connMgr, mediator: mediator, policies: policies}
}

// RefreshRegistry triggers a Registry rebuild from the current
// getConnected() snapshot, per spec §4.7's administrative operation.
func (f *FrontEnd) RefreshRegistry(ctx context.Context) {
	f.registry.Refresh(ctx, f.connMgr.GetConnected())
}

func (f *FrontEnd) ListTools() []mcp.Tool {
	entries := f.registry.ListTools()
	tools := make([]mcp.Tool, 0, len(entries))
	for _, e := range entries {
		tools = append(tools, mcp.Tool{
			Name:        e.ExposedName,
			Description: e.Description,
		})
	}
	return tools
}

func (f *FrontEnd) ListResources() []mcp.Resource {
	entries := f.registry.ListResources()
	resources := make([]mcp.Resource, 0, len(entries))
	for _, e := range entries {
		resources = append(resources, mcp.Resource{
			URI:         e.ExposedName,
			Description: e.Description,
			MIMEType:    e.MimeType,
		})
	}
	return resources
}

func (f *FrontEnd) ListPrompts() []mcp.Prompt {
	entries := f.registry.ListPrompts()
	prompts := make([]mcp.Prompt, 0, len(entries))
	for _, e := range entries {
		args := make([]mcp.PromptArgument, 0, len(e.Arguments))
		for _, a := range e.Arguments {
			args = append(args, mcp.PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		prompts = append(prompts, mcp.Prompt{
			Name:        e.ExposedName,
			Description: e.Description,
			Arguments:   args,
		})
	}
	return prompts
}

// dispatch resolves the Connected session owning entry, or the appropriate
// RPCError, per spec §4.7 step 2.
func (f *FrontEnd) dispatch(entry registry.Entry) (*upstream.Session, *RPCError) {
	session, ok := f.connMgr.Get(entry.UpstreamID)
	if !ok || session.Status() != upstream.StatusConnected {
		return nil, internalError("server not connected")
	}
	return session, nil
}

// CallTool implements spec §4.7's callTool flow.
func (f *FrontEnd) CallTool(ctx context.Context, exposedName string, args map[string]interface{}, headers http.Header, resourcePath string) (*mcp.CallToolResult, *RPCError) {
	entry, ok := f.registry.FindTool(exposedName)
	if !ok {
		return nil, methodNotFound(fmt.Sprintf("unknown tool %q", exposedName))
	}

	session, rpcErr := f.dispatch(entry)
	if rpcErr != nil {
		return nil, rpcErr
	}

	upstreamPolicy := f.policies[entry.UpstreamID]
	outcome := f.mediator.AdmitInbound(ctx, upstreamPolicy, entry.OriginalName, resourcePath, headers)
	switch outcome.Kind {
	case payment.OutcomeChallenge:
		return nil, paymentRequired(outcome.Requirements)
	case payment.OutcomeReject:
		return nil, internalError("payment rejected: " + outcome.Reason)
	}
	directive := f.mediator.ResolveForward(upstreamPolicy, entry.OriginalName, headers)

	result, err := session.CallTool(ctx, entry.OriginalName, args, directive.Auth)
	if err != nil {
		logging.Warn(subsystem, "tool execution failed for %s: %v", exposedName, err)
		return nil, internalError("tool execution failed: " + err.Error())
	}
	return result, nil
}

// ReadResource implements spec §4.7's readResource flow; pricing key is
// originalUri.
func (f *FrontEnd) ReadResource(ctx context.Context, exposedName string, headers http.Header) (*mcp.ReadResourceResult, *RPCError) {
	entry, ok := f.registry.FindResource(exposedName)
	if !ok {
		return nil, methodNotFound(fmt.Sprintf("unknown resource %q", exposedName))
	}

	session, rpcErr := f.dispatch(entry)
	if rpcErr != nil {
		return nil, rpcErr
	}

	upstreamPolicy := f.policies[entry.UpstreamID]
	outcome := f.mediator.AdmitInbound(ctx, upstreamPolicy, entry.OriginalName, "/resources/"+entry.OriginalName, headers)
	switch outcome.Kind {
	case payment.OutcomeChallenge:
		return nil, paymentRequired(outcome.Requirements)
	case payment.OutcomeReject:
		return nil, internalError("payment rejected: " + outcome.Reason)
	}
	directive := f.mediator.ResolveForward(upstreamPolicy, entry.OriginalName, headers)

	result, err := session.ReadResource(ctx, entry.OriginalName, directive.Auth)
	if err != nil {
		return nil, internalError("resource read failed: " + err.Error())
	}
	return result, nil
}

// GetPrompt implements spec §4.7's getPrompt flow; pricing key is
// originalName.
func (f *FrontEnd) GetPrompt(ctx context.Context, exposedName string, args map[string]string, headers http.Header) (*mcp.GetPromptResult, *RPCError) {
	entry, ok := f.registry.FindPrompt(exposedName)
	if !ok {
		return nil, methodNotFound(fmt.Sprintf("unknown prompt %q", exposedName))
	}

	session, rpcErr := f.dispatch(entry)
	if rpcErr != nil {
		return nil, rpcErr
	}

	upstreamPolicy := f.policies[entry.UpstreamID]
	outcome := f.mediator.AdmitInbound(ctx, upstreamPolicy, entry.OriginalName, "/prompts/"+entry.OriginalName, headers)
	switch outcome.Kind {
	case payment.OutcomeChallenge:
		return nil, paymentRequired(outcome.Requirements)
	case payment.OutcomeReject:
		return nil, internalError("payment rejected: " + outcome.Reason)
	}
	directive := f.mediator.ResolveForward(upstreamPolicy, entry.OriginalName, headers)

	result, err := session.GetPrompt(ctx, entry.OriginalName, args, directive.Auth)
	if err != nil {
		return nil, internalError("prompt fetch failed: " + err.Error())
	}
	return result, nil
}
