package upstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elizaOS/mcp-gateway/internal/transport"
)

// fakeClient is a hand-rolled stand-in for transport.Client, used instead of
// spinning up a real stdio/http/sse/websocket transport for unit tests.
type fakeClient struct {
	initErr      error
	listToolsErr error
	listResErr   error
	listPromptsErr error
	pingErr      error
	closed       bool
}

func (f *fakeClient) Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &mcp.InitializeResult{}, nil
}
func (f *fakeClient) Close() error { f.closed = true; return nil }
func (f *fakeClient) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeClient) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.listToolsErr != nil {
		return nil, f.listToolsErr
	}
	return &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "echo"}}}, nil
}
func (f *fakeClient) CallTool(ctx context.Context, request mcp.CallToolRequest, auth transport.OutboundAuth) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}
func (f *fakeClient) ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	if f.listResErr != nil {
		return nil, f.listResErr
	}
	return &mcp.ListResourcesResult{}, nil
}
func (f *fakeClient) ReadResource(ctx context.Context, request mcp.ReadResourceRequest, auth transport.OutboundAuth) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}
func (f *fakeClient) ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	if f.listPromptsErr != nil {
		return nil, f.listPromptsErr
	}
	return &mcp.ListPromptsResult{}, nil
}
func (f *fakeClient) GetPrompt(ctx context.Context, request mcp.GetPromptRequest, auth transport.OutboundAuth) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}

func TestSession_NewSessionStartsConnecting(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	assert.Equal(t, StatusConnecting, s.Status())
}

func TestSession_ProbeBeforeConnectFails(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	err := s.Probe(context.Background())
	require.Error(t, err)
	var upErr *Error
	require.ErrorAs(t, err, &upErr)
}

func TestSession_CapabilitiesPartialFailureDoesNotFailSession(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	fc := &fakeClient{listResErr: errors.New("not supported")}

	s.client = fc
	s.discoverCapabilities(context.Background())

	caps := s.Capabilities()
	assert.True(t, caps.HasTools)
	assert.False(t, caps.HasResources)
	assert.True(t, caps.HasPrompts)
}

func TestSession_CloseMarksDisconnected(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	fc := &fakeClient{}
	s.client = fc
	s.status = StatusConnected

	require.NoError(t, s.Close())
	assert.Equal(t, StatusDisconnected, s.Status())
	assert.True(t, fc.closed)
}

func TestSession_ListToolsRequiresConnected(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	_, err := s.ListTools(context.Background())
	require.Error(t, err)
}

func TestSession_ListToolsReturnsUpstreamTools(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	s.client = &fakeClient{}
	s.status = StatusConnected

	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
}

func TestSession_ProbeFailureSetsErrorStatus(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	s.client = &fakeClient{pingErr: errors.New("connection reset")}
	s.status = StatusConnected

	err := s.Probe(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, s.Status())
}

func TestSession_LastHealthCheckAtDefaultsZero(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	assert.True(t, s.LastHealthCheckAt().IsZero())
}

func TestSession_ProbeStampsLastHealthCheckAtOnSuccess(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	s.client = &fakeClient{}
	s.status = StatusConnected

	require.NoError(t, s.Probe(context.Background()))
	assert.False(t, s.LastHealthCheckAt().IsZero())
}

func TestSession_ProbeStampsLastHealthCheckAtOnFailure(t *testing.T) {
	s := NewSession(Spec{ID: "svc"})
	s.client = &fakeClient{pingErr: errors.New("connection reset")}
	s.status = StatusConnected

	require.Error(t, s.Probe(context.Background()))
	assert.False(t, s.LastHealthCheckAt().IsZero())
}

func TestClassify_PaymentCapExceededIsFatal(t *testing.T) {
	err := classify(transport.ErrPaymentCapExceeded)
	require.NotNil(t, err)
	assert.False(t, err.Transient)
	assert.Equal(t, "downstream payment exceeds cap", err.Message)
}

func TestError_TransientUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := Transient(cause, "upstream %s failed", "svc")
	assert.True(t, err.Transient)
	assert.ErrorIs(t, err, cause)
}

func TestSpec_ConnectTimeoutDefault(t *testing.T) {
	s := Spec{ID: "svc"}
	assert.Equal(t, 10*time.Second, s.connectTimeout())
}

func TestSpec_ConnectTimeoutExplicit(t *testing.T) {
	s := Spec{ID: "svc", ConnectTimeoutMs: 500}
	assert.Equal(t, 500*time.Millisecond, s.connectTimeout())
}
