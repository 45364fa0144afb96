package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
)

// httpFetcher implements Client by POSTing JSON-RPC 2.0 envelopes to a
// single endpoint: the streamable URL for the http transport, or postUrl
// for sse. mcp-go's own http/sse clients fix their headers at construction
// and give callers no hook to react mid-call, so they cannot satisfy spec
// §4.5.3's MUST: "the Upstream Session's HTTP/SSE fetcher ... transparently
// react to downstream 402 responses by signing a maxAmountRequired <=
// outbound.maxValue authorization ... re-sending once". httpFetcher speaks
// the wire protocol directly instead, the same way websocketClient already
// does for the one kind mcp-go never covered at all.
type httpFetcher struct {
	url         string
	baseHeaders map[string]string
	httpClient  *http.Client
	nextID      int64
}

func newHTTPFetcher(url string, headers map[string]string) *httpFetcher {
	return &httpFetcher{
		url:         url,
		baseHeaders: headers,
		httpClient:  &http.Client{},
	}
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  interface{}     `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// paymentChallenge is the one field of spec §3's PaymentRequirements the
// 402-retry state machine needs.
type paymentChallenge struct {
	Accepts []struct {
		MaxAmountRequired string `json:"maxAmountRequired"`
	} `json:"accepts"`
}

func (f *httpFetcher) send(ctx context.Context, payload []byte, passthrough map[string]string, xPayment string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range f.baseHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range passthrough {
		req.Header.Set(k, v)
	}
	if xPayment != "" {
		req.Header.Set("X-PAYMENT", xPayment)
	}
	return f.httpClient.Do(req)
}

// do drives one JSON-RPC call through spec §9's 402-retry state machine:
// Idle (first send) -> SentOnce; on a 402 with auth.Authorize set,
// SentOnce -> Signed (after the cap check) -> SentTwice (the retry). A
// second 402 on the retry, or a challenge exceeding MaxValueAtomic, fails
// with ErrPaymentCapExceeded rather than retrying again.
func (f *httpFetcher) do(ctx context.Context, method string, params interface{}, auth OutboundAuth, out interface{}) error {
	id := atomic.AddInt64(&f.nextID, 1)
	payload, err := json.Marshal(rpcEnvelope{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	resp, err := f.send(ctx, payload, auth.PassthroughHeaders, "")
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	status := resp.StatusCode

	if status == http.StatusPaymentRequired {
		if auth.Authorize == nil {
			return fmt.Errorf("%s: downstream requires payment", method)
		}

		maxAmountRequired := challengeAmount(body)
		if !auth.checkCap(maxAmountRequired) {
			return ErrPaymentCapExceeded
		}

		signed, err := auth.Authorize(maxAmountRequired)
		if err != nil {
			return fmt.Errorf("sign outbound payment for %s: %w", method, err)
		}

		resp, err = f.send(ctx, payload, auth.PassthroughHeaders, signed)
		if err != nil {
			return fmt.Errorf("%s retry request: %w", method, err)
		}
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read %s retry response: %w", method, err)
		}
		status = resp.StatusCode
		if status == http.StatusPaymentRequired {
			return ErrPaymentCapExceeded
		}
	}

	if status >= 400 {
		return fmt.Errorf("%s: http %d: %s", method, status, string(body))
	}

	var env rpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if env.Error != nil {
		return env.Error
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func challengeAmount(body []byte) string {
	var challenge paymentChallenge
	if err := json.Unmarshal(body, &challenge); err != nil || len(challenge.Accepts) == 0 {
		return ""
	}
	return challenge.Accepts[0].MaxAmountRequired
}

func (f *httpFetcher) Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	var result mcp.InitializeResult
	if err := f.do(ctx, "initialize", request.Params, OutboundAuth{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *httpFetcher) Close() error { return nil }

func (f *httpFetcher) Ping(ctx context.Context) error {
	return f.do(ctx, "ping", struct{}{}, OutboundAuth{}, nil)
}

func (f *httpFetcher) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	var result mcp.ListToolsResult
	if err := f.do(ctx, "tools/list", request.Params, OutboundAuth{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *httpFetcher) CallTool(ctx context.Context, request mcp.CallToolRequest, auth OutboundAuth) (*mcp.CallToolResult, error) {
	var result mcp.CallToolResult
	if err := f.do(ctx, "tools/call", request.Params, auth, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *httpFetcher) ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	var result mcp.ListResourcesResult
	if err := f.do(ctx, "resources/list", request.Params, OutboundAuth{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *httpFetcher) ReadResource(ctx context.Context, request mcp.ReadResourceRequest, auth OutboundAuth) (*mcp.ReadResourceResult, error) {
	var result mcp.ReadResourceResult
	if err := f.do(ctx, "resources/read", request.Params, auth, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *httpFetcher) ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	var result mcp.ListPromptsResult
	if err := f.do(ctx, "prompts/list", request.Params, OutboundAuth{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *httpFetcher) GetPrompt(ctx context.Context, request mcp.GetPromptRequest, auth OutboundAuth) (*mcp.GetPromptResult, error) {
	var result mcp.GetPromptResult
	if err := f.do(ctx, "prompts/get", request.Params, auth, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
