package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/elizaOS/mcp-gateway/internal/transport"
	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

const protocolVersion = "2024-11-05"

// NewSession constructs a Session in the Connecting state. It does not
// attempt the transport handshake — Connect does.
func NewSession(spec Spec) *Session {
	return &Session{Spec: spec, status: StatusConnecting}
}

// Connect builds the transport client and performs the MCP handshake,
// followed by eager capability discovery (spec §4.2). spec.ConnectTimeoutMs
// is a hard deadline on the handshake and capability discovery; building the
// client in transport.Make (a stdio spawn or websocket dial) runs before that
// deadline is applied.
func (s *Session) Connect(ctx context.Context) error {
	s.setStatus(StatusConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, s.Spec.connectTimeout())
	defer cancel()

	c, err := transport.Make(s.Spec.Transport)
	if err != nil {
		s.setError(err)
		return Fatal(err, "build transport for upstream %s", s.Spec.ID)
	}

	if _, err := c.Initialize(connectCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "mcp-gateway",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}); err != nil {
		_ = c.Close()
		wrapped := classify(err)
		s.setError(wrapped)
		return wrapped
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	s.discoverCapabilities(connectCtx)

	s.setStatus(StatusConnected)
	return nil
}

// discoverCapabilities probes each list* verb once; a failing verb only
// clears that one capability bit, per spec §4.2 — an upstream that only
// supports tools remains a valid, Connected session.
func (s *Session) discoverCapabilities(ctx context.Context) {
	s.mu.RLock()
	c := s.client
	s.mu.RUnlock()

	var caps Capabilities

	if _, err := c.ListTools(ctx, mcp.ListToolsRequest{}); err == nil {
		caps.HasTools = true
	} else {
		logging.Debug("UpstreamSession", "upstream %s does not support tools: %v", s.Spec.ID, err)
	}
	if _, err := c.ListResources(ctx, mcp.ListResourcesRequest{}); err == nil {
		caps.HasResources = true
	} else {
		logging.Debug("UpstreamSession", "upstream %s does not support resources: %v", s.Spec.ID, err)
	}
	if _, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{}); err == nil {
		caps.HasPrompts = true
	} else {
		logging.Debug("UpstreamSession", "upstream %s does not support prompts: %v", s.Spec.ID, err)
	}

	s.mu.Lock()
	s.capabilities = caps
	s.mu.Unlock()
}

// Close cleanly shuts down the underlying client, per spec §4.3 closeAll.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.status = StatusDisconnected
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

// Probe is the cheap liveness check the health loop calls for Connected
// sessions (spec §4.3 healthCheck). It uses Ping rather than a full list
// fetch, and always stamps lastHealthCheckAt — the timestamp records that a
// check was attempted, not that it succeeded.
func (s *Session) Probe(ctx context.Context) error {
	s.setHealthCheckAt(time.Now())

	s.mu.RLock()
	c := s.client
	status := s.status
	s.mu.RUnlock()

	if status != StatusConnected || c == nil {
		return Fatal(nil, "upstream %s not connected", s.Spec.ID)
	}

	if err := c.Ping(ctx); err != nil {
		wrapped := classify(err)
		s.setError(wrapped)
		return wrapped
	}
	return nil
}

func (s *Session) liveClient() (transport.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusConnected || s.client == nil {
		return nil, Fatal(nil, "upstream %s not connected", s.Spec.ID)
	}
	return s.client, nil
}

func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, classify(err)
	}
	return result.Tools, nil
}

func (s *Session) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	c, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	result, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, classify(err)
	}
	return result.Resources, nil
}

func (s *Session) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	c, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	result, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, classify(err)
	}
	return result.Prompts, nil
}

// CallTool dispatches name through the Upstream Session's client, applying
// auth the way spec §4.5.3 requires: Passthrough headers are set
// unconditionally, and Markup/Absorb's Authorize closure is only invoked by
// the underlying Client if the downstream actually answers with a 402.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}, auth transport.OutboundAuth) (*mcp.CallToolResult, error) {
	c, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}, auth)
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Session) ReadResource(ctx context.Context, uri string, auth transport.OutboundAuth) (*mcp.ReadResourceResult, error) {
	c, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	result, err := c.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{URI: uri},
	}, auth)
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Session) GetPrompt(ctx context.Context, name string, args map[string]string, auth transport.OutboundAuth) (*mcp.GetPromptResult, error) {
	c, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	result, err := c.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}{Name: name, Arguments: args},
	}, auth)
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// classify maps a raw transport/protocol error onto the UpstreamError
// taxonomy. ErrPaymentCapExceeded, surfaced by the HTTP/SSE fetcher's
// 402-retry state machine, is always fatal — the cap is a hard configured
// ceiling, not a transient condition a reconnect could fix. Everything else
// mcp-go or httpFetcher raises is treated as transient so the health loop
// gets a chance to reconnect; retryAttempts exhaustion is what ultimately
// parks the session in Error.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	if existing, ok := err.(*Error); ok {
		return existing
	}
	if errors.Is(err, transport.ErrPaymentCapExceeded) {
		return Fatal(nil, "downstream payment exceeds cap")
	}
	return Transient(err, "upstream request failed")
}
