package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
)

// websocketClient implements Client directly over a gorilla/websocket
// connection. mcp-go has no native websocket transport (it covers
// stdio/sse/streamable-http only), so the "websocket" TransportDescriptor
// kind is the one branch of the Transport Factory that cannot delegate to
// the library and instead speaks raw JSON-RPC 2.0 request/response framing
// itself, matching the shape mcp-go's own client transports use internally.
type websocketClient struct {
	conn   *websocket.Conn
	nextID int64

	mu      sync.Mutex // guards writes and the pending map
	pending map[int64]chan rpcResponse

	readOnce sync.Once
	readErr  error
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func newWebsocketClient(url string, headers map[string]string) (Client, error) {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, h)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	c := &websocketClient{
		conn:    conn,
		pending: make(map[int64]chan rpcResponse),
	}
	go c.readLoop()
	return c, nil
}

// readLoop demultiplexes responses onto their waiting call() by id. It runs
// for the lifetime of the connection; Close terminates it by closing conn.
func (c *websocketClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.failPending(err)
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

func (c *websocketClient) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *websocketClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := atomic.AddInt64(&c.nextID, 1)
	respCh := make(chan rpcResponse, 1)

	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	c.mu.Lock()
	writeErr := c.conn.WriteMessage(websocket.TextMessage, payload)
	c.mu.Unlock()
	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("write %s request: %w", method, writeErr)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp, ok := <-respCh:
		if !ok {
			return fmt.Errorf("websocket closed while awaiting %s: %w", method, c.readErr)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	}
}

func (c *websocketClient) Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	var result mcp.InitializeResult
	if err := c.call(ctx, "initialize", request.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *websocketClient) Close() error {
	return c.conn.Close()
}

func (c *websocketClient) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", struct{}{}, nil)
}

func (c *websocketClient) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	var result mcp.ListToolsResult
	if err := c.call(ctx, "tools/list", request.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *websocketClient) CallTool(ctx context.Context, request mcp.CallToolRequest, _ OutboundAuth) (*mcp.CallToolResult, error) {
	var result mcp.CallToolResult
	if err := c.call(ctx, "tools/call", request.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *websocketClient) ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	var result mcp.ListResourcesResult
	if err := c.call(ctx, "resources/list", request.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *websocketClient) ReadResource(ctx context.Context, request mcp.ReadResourceRequest, _ OutboundAuth) (*mcp.ReadResourceResult, error) {
	var result mcp.ReadResourceResult
	if err := c.call(ctx, "resources/read", request.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *websocketClient) ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	var result mcp.ListPromptsResult
	if err := c.call(ctx, "prompts/list", request.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *websocketClient) GetPrompt(ctx context.Context, request mcp.GetPromptRequest, _ OutboundAuth) (*mcp.GetPromptResult, error) {
	var result mcp.GetPromptResult
	if err := c.call(ctx, "prompts/get", request.Params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
