package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elizaOS/mcp-gateway/internal/connmgr"
	"github.com/elizaOS/mcp-gateway/internal/payment"
	"github.com/elizaOS/mcp-gateway/internal/registry"
)

func newEmptyFrontEnd() *FrontEnd {
	reg := registry.New(registry.ConflictResolution{})
	mgr := connmgr.New(connmgr.DefaultMaxConcurrentConnections, nil)
	mediator := payment.New(payment.Policy{Enabled: false}, nil)
	return New(reg, mgr, mediator, map[string]payment.UpstreamPolicy{})
}

func TestFrontEnd_CallTool_UnknownToolReturnsMethodNotFound(t *testing.T) {
	f := newEmptyFrontEnd()
	_, rpcErr := f.CallTool(context.Background(), "does-not-exist", nil, http.Header{}, "/tools/does-not-exist")
	require.NotNil(t, rpcErr)
	assert.Contains(t, rpcErr.Message, "unknown tool")
}

func TestFrontEnd_ReadResource_UnknownResourceReturnsMethodNotFound(t *testing.T) {
	f := newEmptyFrontEnd()
	_, rpcErr := f.ReadResource(context.Background(), "does-not-exist", http.Header{})
	require.NotNil(t, rpcErr)
	assert.Contains(t, rpcErr.Message, "unknown resource")
}

func TestFrontEnd_GetPrompt_UnknownPromptReturnsMethodNotFound(t *testing.T) {
	f := newEmptyFrontEnd()
	_, rpcErr := f.GetPrompt(context.Background(), "does-not-exist", nil, http.Header{})
	require.NotNil(t, rpcErr)
	assert.Contains(t, rpcErr.Message, "unknown prompt")
}

func TestFrontEnd_ListTools_EmptyRegistryReturnsEmptySlice(t *testing.T) {
	f := newEmptyFrontEnd()
	assert.Empty(t, f.ListTools())
}

func TestFrontEnd_ListResources_EmptyRegistryReturnsEmptySlice(t *testing.T) {
	f := newEmptyFrontEnd()
	assert.Empty(t, f.ListResources())
}

func TestFrontEnd_ListPrompts_EmptyRegistryReturnsEmptySlice(t *testing.T) {
	f := newEmptyFrontEnd()
	assert.Empty(t, f.ListPrompts())
}

func TestFrontEnd_RefreshRegistry_NoUpstreamsYieldsEmptyStats(t *testing.T) {
	f := newEmptyFrontEnd()
	f.RefreshRegistry(context.Background())
	stats := f.registry.GetStats()
	assert.Equal(t, 0, stats.ToolCount)
}
