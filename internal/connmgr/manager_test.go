package connmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elizaOS/mcp-gateway/internal/transport"
	"github.com/elizaOS/mcp-gateway/internal/upstream"
)

// badSpec describes an upstream whose transport can never connect (no
// listener), exercising retry exhaustion without a real server fixture.
func badSpec(id string, attempts int) upstream.Spec {
	return upstream.Spec{
		ID:      id,
		Enabled: true,
		Transport: transport.Descriptor{
			Kind: transport.KindHTTP,
			URL:  "http://127.0.0.1:1/does-not-exist",
		},
		ConnectTimeoutMs: 50,
		RetryAttempts:    attempts,
		RetryDelayMs:     1,
	}
}

func TestManager_InitializeParksFailedUpstreamsInError(t *testing.T) {
	m := New(2, nil)
	m.Initialize(context.Background(), []upstream.Spec{badSpec("a", 2)})

	s, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, upstream.StatusError, s.Status())
}

func TestManager_InitializeSkipsDisabledSpecs(t *testing.T) {
	m := New(2, nil)
	spec := badSpec("a", 1)
	spec.Enabled = false
	m.Initialize(context.Background(), []upstream.Spec{spec})

	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestManager_GetConnectedEmptyWhenNoneConnected(t *testing.T) {
	m := New(2, nil)
	m.Initialize(context.Background(), []upstream.Spec{badSpec("a", 1)})
	assert.Empty(t, m.GetConnected())
}

func TestManager_CloseAllClearsSessions(t *testing.T) {
	m := New(2, nil)
	m.Initialize(context.Background(), []upstream.Spec{badSpec("a", 1)})
	m.CloseAll()

	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Empty(t, m.GetConnected())
}

func TestManager_HealthCheckInvokesOnRebuild(t *testing.T) {
	rebuilt := make(chan []*upstream.Session, 1)
	m := New(2, func(connected []*upstream.Session) {
		rebuilt <- connected
	})
	m.Initialize(context.Background(), []upstream.Spec{badSpec("a", 1)})

	m.HealthCheck(context.Background())

	select {
	case got := <-rebuilt:
		assert.Empty(t, got)
	case <-time.After(time.Second):
		t.Fatal("onRebuild was not called")
	}
}

func TestManager_StartStopHealthLoop(t *testing.T) {
	m := New(2, nil)
	m.Initialize(context.Background(), []upstream.Spec{badSpec("a", 1)})

	m.StartHealthLoop(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	m.StopHealthLoop()
}

func TestManager_GetUnknownUpstream(t *testing.T) {
	m := New(2, nil)
	_, ok := m.Get("nonexistent")
	assert.False(t, ok)
}
