package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

// defaultFacilitatorTimeout is the Facilitator Client's request timeout,
// per spec §4.6.
const defaultFacilitatorTimeout = 30 * time.Second

// VerifyResult is the outcome of a Facilitator.verify call, per spec §4.6.
type VerifyResult struct {
	Verified bool
	Error    string
}

// FacilitatorClient is the narrow interface the Mediator depends on, so
// tests can substitute a fake without standing up an HTTP server.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload json.RawMessage, requirements Requirements) (VerifyResult, error)
}

// HTTPFacilitatorClient posts to an external facilitator's /verify
// endpoint, grounded on kshinn-umbra-gateway's RemoteFacilitator adapter.
type HTTPFacilitatorClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFacilitatorClient constructs a client against baseURL (no trailing
// /verify).
func NewHTTPFacilitatorClient(baseURL string) *HTTPFacilitatorClient {
	return &HTTPFacilitatorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultFacilitatorTimeout},
	}
}

// Verify posts {paymentPayload, paymentRequirements} to ${url}/verify. A
// non-2xx response or unparseable body both yield verified=false, per spec
// §4.6.
func (f *HTTPFacilitatorClient) Verify(ctx context.Context, payload json.RawMessage, requirements Requirements) (VerifyResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	})
	if err != nil {
		return VerifyResult{Verified: false}, fmt.Errorf("marshal facilitator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return VerifyResult{Verified: false}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		logging.Warn("Facilitator", "verify request failed: %v", err)
		return VerifyResult{Verified: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Warn("Facilitator", "verify returned HTTP %d", resp.StatusCode)
		return VerifyResult{Verified: false, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return VerifyResult{Verified: false}, nil
	}

	var parsed struct {
		Verified bool   `json:"verified"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return VerifyResult{Verified: false}, nil
	}

	return VerifyResult{Verified: parsed.Verified, Error: parsed.Error}, nil
}
