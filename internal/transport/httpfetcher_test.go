package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successEnvelope(t *testing.T, id int64) []byte {
	t.Helper()
	body, err := json.Marshal(rpcEnvelope{JSONRPC: "2.0", ID: id, Result: json.RawMessage(`{}`)})
	require.NoError(t, err)
	return body
}

func TestHTTPFetcher_PlainCallNeverChallenged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(successEnvelope(t, 1))
	}))
	defer srv.Close()

	f := newHTTPFetcher(srv.URL, nil)
	_, err := f.CallTool(context.Background(), mcp.CallToolRequest{}, OutboundAuth{})
	require.NoError(t, err)
}

func TestHTTPFetcher_402RetrySignsAndResends(t *testing.T) {
	var calls int
	var sawXPayment string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"accepts":[{"maxAmountRequired":"5000"}]}`))
			return
		}
		sawXPayment = r.Header.Get("X-PAYMENT")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(successEnvelope(t, 1))
	}))
	defer srv.Close()

	f := newHTTPFetcher(srv.URL, nil)
	auth := OutboundAuth{
		MaxValueAtomic: "10000",
		Authorize: func(maxAmountRequired string) (string, error) {
			assert.Equal(t, "5000", maxAmountRequired)
			return "signed-credential", nil
		},
	}

	_, err := f.CallTool(context.Background(), mcp.CallToolRequest{}, auth)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "signed-credential", sawXPayment)
}

func TestHTTPFetcher_ChallengeExceedingCapFailsWithoutRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"accepts":[{"maxAmountRequired":"999999"}]}`))
	}))
	defer srv.Close()

	f := newHTTPFetcher(srv.URL, nil)
	auth := OutboundAuth{
		MaxValueAtomic: "10000",
		Authorize: func(maxAmountRequired string) (string, error) {
			t.Fatal("Authorize must not be called when the challenge exceeds the cap")
			return "", nil
		},
	}

	_, err := f.CallTool(context.Background(), mcp.CallToolRequest{}, auth)
	require.ErrorIs(t, err, ErrPaymentCapExceeded)
	assert.Equal(t, 1, calls)
}

func TestHTTPFetcher_SecondChallengeOnRetryFailsCapExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"accepts":[{"maxAmountRequired":"5000"}]}`))
	}))
	defer srv.Close()

	f := newHTTPFetcher(srv.URL, nil)
	auth := OutboundAuth{
		MaxValueAtomic: "10000",
		Authorize: func(maxAmountRequired string) (string, error) {
			return "signed-credential", nil
		},
	}

	_, err := f.CallTool(context.Background(), mcp.CallToolRequest{}, auth)
	require.ErrorIs(t, err, ErrPaymentCapExceeded)
}

func TestHTTPFetcher_PassthroughModeNeverRetries(t *testing.T) {
	var calls int
	var sawCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		sawCustom = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"accepts":[{"maxAmountRequired":"5000"}]}`))
	}))
	defer srv.Close()

	f := newHTTPFetcher(srv.URL, nil)
	auth := OutboundAuth{PassthroughHeaders: map[string]string{"X-Custom": "inbound-value"}}

	_, err := f.CallTool(context.Background(), mcp.CallToolRequest{}, auth)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "inbound-value", sawCustom)
}
