package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFacilitator struct {
	result VerifyResult
	err    error
}

func (f *fakeFacilitator) Verify(ctx context.Context, payload json.RawMessage, requirements Requirements) (VerifyResult, error) {
	return f.result, f.err
}

func disabledMediator() *Mediator {
	return New(Policy{Enabled: false}, nil)
}

func TestMediator_DisabledPolicyAlwaysAllowsFree(t *testing.T) {
	m := disabledMediator()
	outcome := m.AdmitInbound(context.Background(), UpstreamPolicy{}, "ls", "/tools/ls", http.Header{})
	assert.Equal(t, OutcomeAllowFree, outcome.Kind)
}

func TestMediator_S1_FreePricingAllowsFree(t *testing.T) {
	m := New(Policy{Enabled: true}, &fakeFacilitator{})
	policy := UpstreamPolicy{DefaultPricing: &Pricing{Free: true}}

	outcome := m.AdmitInbound(context.Background(), policy, "ls", "/tools/ls", http.Header{})
	assert.Equal(t, OutcomeAllowFree, outcome.Kind)
}

func TestMediator_S2_ChallengeOnMissingPayment(t *testing.T) {
	recipient := common.HexToAddress("0xAB00000000000000000000000000000000AB01")
	m := New(Policy{
		Enabled:   true,
		Network:   NetworkBaseSepolia,
		Recipient: recipient,
	}, &fakeFacilitator{})
	policy := UpstreamPolicy{DefaultPricing: &Pricing{X402: "$0.01"}}

	outcome := m.AdmitInbound(context.Background(), policy, "price", "/tools/price", http.Header{})
	require.Equal(t, OutcomeChallenge, outcome.Kind)
	require.NotNil(t, outcome.Requirements)
	require.Len(t, outcome.Requirements.Accepts, 1)

	accept := outcome.Requirements.Accepts[0]
	assert.Equal(t, "exact", accept.Scheme)
	assert.Equal(t, "base-sepolia", accept.Network)
	assert.Equal(t, "10000", accept.MaxAmountRequired)
	assert.Equal(t, recipient.Hex(), accept.PayTo)
	assert.Equal(t, USDCAddress(NetworkBaseSepolia), accept.Asset)
	assert.Equal(t, 30, accept.MaxTimeoutSeconds)
	assert.Equal(t, "application/json", accept.MimeType)
	assert.Equal(t, "Payment for MCP tool: price", accept.Description)
}

func TestMediator_S3_APIKeyFreeTierBypassesFacilitator(t *testing.T) {
	m := New(Policy{
		Enabled: true,
		APIKeys: []APIKeyEntry{{Key: "K", Tier: "premium"}},
	}, &fakeFacilitator{err: assert.AnError})
	policy := UpstreamPolicy{DefaultPricing: &Pricing{
		X402:        "$0.10",
		APIKeyTiers: map[string]string{"premium": "free"},
	}}

	headers := http.Header{}
	headers.Set("X-ELIZA-API-KEY", "K")

	outcome := m.AdmitInbound(context.Background(), policy, "price", "/tools/price", headers)
	require.Equal(t, OutcomeAllowPaid, outcome.Kind)
	assert.Equal(t, MethodAPIKey, outcome.Method)
	assert.Equal(t, "$0", outcome.Amount)
}

func TestMediator_UnknownAPIKeyFallsThroughToX402Challenge(t *testing.T) {
	m := New(Policy{Enabled: true, APIKeys: []APIKeyEntry{{Key: "K", Tier: "premium"}}}, &fakeFacilitator{})
	policy := UpstreamPolicy{DefaultPricing: &Pricing{X402: "$0.10"}}

	headers := http.Header{}
	headers.Set("X-ELIZA-API-KEY", "unknown-key")

	outcome := m.AdmitInbound(context.Background(), policy, "price", "/tools/price", headers)
	assert.Equal(t, OutcomeChallenge, outcome.Kind)
}

func TestMediator_VerifiedX402PaymentAllowsPaid(t *testing.T) {
	m := New(Policy{Enabled: true}, &fakeFacilitator{result: VerifyResult{Verified: true}})
	policy := UpstreamPolicy{DefaultPricing: &Pricing{X402: "$0.05"}}

	headers := http.Header{}
	headers.Set("X-PAYMENT", base64.StdEncoding.EncodeToString([]byte(`{"x402Version":1}`)))

	outcome := m.AdmitInbound(context.Background(), policy, "price", "/tools/price", headers)
	require.Equal(t, OutcomeAllowPaid, outcome.Kind)
	assert.Equal(t, MethodX402, outcome.Method)
	assert.Equal(t, "$0.05", outcome.Amount)
}

func TestMediator_UnverifiedX402PaymentRejects(t *testing.T) {
	m := New(Policy{Enabled: true}, &fakeFacilitator{result: VerifyResult{Verified: false}})
	policy := UpstreamPolicy{DefaultPricing: &Pricing{X402: "$0.05"}}

	headers := http.Header{}
	headers.Set("X-PAYMENT", base64.StdEncoding.EncodeToString([]byte(`{"x402Version":1}`)))

	outcome := m.AdmitInbound(context.Background(), policy, "price", "/tools/price", headers)
	assert.Equal(t, OutcomeReject, outcome.Kind)
}

func TestMediator_MalformedX402HeaderRejectsWithoutCallingFacilitator(t *testing.T) {
	m := New(Policy{Enabled: true}, &fakeFacilitator{err: assert.AnError})
	policy := UpstreamPolicy{DefaultPricing: &Pricing{X402: "$0.05"}}

	headers := http.Header{}
	headers.Set("X-PAYMENT", "not-base64!!!")

	outcome := m.AdmitInbound(context.Background(), policy, "price", "/tools/price", headers)
	assert.Equal(t, OutcomeReject, outcome.Kind)
	assert.Equal(t, "malformed payment payload", outcome.Reason)
}

func TestMediator_ResolveForward_Passthrough(t *testing.T) {
	m := New(Policy{}, nil)
	headers := http.Header{}
	headers.Set("X-PAYMENT", "abc")
	headers.Set("X-Custom", "ignored")

	directive := m.ResolveForward(UpstreamPolicy{Mode: string(ModePassthrough)}, "price", headers)
	assert.Equal(t, ModePassthrough, directive.Mode)
	assert.Equal(t, "abc", directive.Auth.PassthroughHeaders["X-Payment"])
	_, hasCustom := directive.Auth.PassthroughHeaders["X-Custom"]
	assert.False(t, hasCustom)
}

func TestMediator_ResolveForward_None(t *testing.T) {
	m := New(Policy{}, nil)
	directive := m.ResolveForward(UpstreamPolicy{}, "price", http.Header{})
	assert.Equal(t, ModeNone, directive.Mode)
}

func TestMediator_ResolveForward_MarkupBuildsLazyAuthorizer(t *testing.T) {
	m := New(Policy{OutboundCredential: &OutboundCredential{
		SigningKey: []byte("secret"),
		Issuer:     "mcp-gateway",
		MaxValue:   "$1.00",
	}}, nil)

	directive := m.ResolveForward(UpstreamPolicy{Mode: string(ModeMarkup)}, "price", http.Header{})
	assert.Equal(t, ModeMarkup, directive.Mode)
	assert.Equal(t, "1000000", directive.Auth.MaxValueAtomic)
	require.NotNil(t, directive.Auth.Authorize)

	signed, err := directive.Auth.Authorize("500000")
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
}

func TestMediator_ResolveForward_AbsorbWithoutCredentialLeavesAuthorizeNil(t *testing.T) {
	m := New(Policy{}, nil)
	directive := m.ResolveForward(UpstreamPolicy{Mode: string(ModeAbsorb)}, "price", http.Header{})
	assert.Equal(t, ModeAbsorb, directive.Mode)
	assert.Nil(t, directive.Auth.Authorize)
}

func TestResolvePricing_PerToolBeatsDefault(t *testing.T) {
	policy := UpstreamPolicy{
		DefaultPricing: &Pricing{X402: "$0.10"},
		PerTool:        map[string]*Pricing{"price": {X402: "$0.05"}},
	}
	got := ResolvePricing(policy, "price")
	require.NotNil(t, got)
	assert.Equal(t, "$0.05", got.X402)
}

func TestResolvePricing_NilWhenNoPolicy(t *testing.T) {
	assert.Nil(t, ResolvePricing(UpstreamPolicy{}, "price"))
}

func TestPublishedPrice_S5_MarkupPercent(t *testing.T) {
	got, err := PublishedPrice(UpstreamPolicy{Mode: string(ModeMarkup), Markup: "20%"}, "$0.10")
	require.NoError(t, err)
	assert.Equal(t, "$0.120000", got)
}

func TestPublishedPrice_S5_MarkupFixed(t *testing.T) {
	got, err := PublishedPrice(UpstreamPolicy{Mode: string(ModeMarkup), Markup: "$0.05"}, "$0.10")
	require.NoError(t, err)
	assert.Equal(t, "$0.150000", got)
}

func TestPublishedPrice_NonMarkupModeUnchanged(t *testing.T) {
	got, err := PublishedPrice(UpstreamPolicy{Mode: string(ModeNone)}, "$0.10")
	require.NoError(t, err)
	assert.Equal(t, "$0.10", got)
}
