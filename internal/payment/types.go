// Package payment implements the Payment Mediator of spec §4.5: a pure
// function of (toolName, upstreamId, inboundHeaders) plus gateway and
// per-upstream policy, deciding whether to admit a call and how to forward
// it. Facilitator verification is delegated to FacilitatorClient, grounded
// on kshinn-umbra-gateway's gateway/x402/facilitator.go REST adapter.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/elizaOS/mcp-gateway/internal/transport"
	"github.com/elizaOS/mcp-gateway/internal/upstream"
)

// Network is one of the chains the gateway accepts payment on, per spec §3.
type Network string

const (
	NetworkBaseSepolia Network = "base-sepolia"
	NetworkBase        Network = "base"
	NetworkEthereum    Network = "ethereum"
	NetworkOptimism    Network = "optimism"
	NetworkPolygon     Network = "polygon"
)

// Policy is the gateway-wide PaymentPolicy of spec §3.
type Policy struct {
	Enabled            bool
	Recipient          common.Address
	Network            Network
	FacilitatorURL     string
	OutboundCredential *OutboundCredential
	APIKeys            []APIKeyEntry
}

// APIKeyEntry is one entry of PaymentPolicy.apiKeys.
type APIKeyEntry struct {
	Key       string
	Tier      string
	RateLimit int
}

// apiKeyIndex builds the immutable key->entry index the Mediator holds by
// value, per spec §3's ownership summary ("the Mediator holds ... its
// apiKey index by value").
func (p Policy) apiKeyIndex() map[string]APIKeyEntry {
	idx := make(map[string]APIKeyEntry, len(p.APIKeys))
	for _, e := range p.APIKeys {
		idx[e.Key] = e
	}
	return idx
}

// OutboundCredential is the opaque gateway-owned credential used to
// synthesize outbound x402 payments in Markup/Absorb mode. Per spec §1 the
// actual on-chain signing is delegated to the Facilitator; this struct is
// the in-memory stand-in for "the gateway's own credential" the spec
// leaves opaque, carried as a signed JWT so it can be handed to an
// Upstream Session's HTTP/SSE fetcher without re-deriving key material on
// every call.
type OutboundCredential struct {
	SigningKey []byte
	Issuer     string
	MaxValue   string // Money, cap on any single signed authorization
}

// outboundCredentialClaims is what Mint puts in the signed JWT: enough for
// a downstream server (or the Facilitator, if it chooses to inspect it) to
// see who is paying, for what, and under what cap, without re-deriving key
// material on every call.
type outboundCredentialClaims struct {
	jwt.RegisteredClaims
	Tool     string `json:"tool"`
	MaxValue string `json:"maxValue"`
}

// Mint signs a short-lived credential authorizing payment up to MaxValue
// for one tool call, per spec §1's note that outbound settlement is
// delegated to the Facilitator and the gateway only needs to assert its
// own authorization. Each credential gets a fresh jti so two mints for the
// same tool never collide.
func (c *OutboundCredential) Mint(toolName string) (string, error) {
	return c.mint(toolName, c.MaxValue)
}

// mint signs the claims with maxValue asserted verbatim: Mint passes the
// configured Money cap, Authorize the downstream's atomic-unit
// maxAmountRequired.
func (c *OutboundCredential) mint(toolName, maxValue string) (string, error) {
	now := time.Now()
	claims := outboundCredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
		Tool:     toolName,
		MaxValue: maxValue,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.SigningKey)
}

// outboundPaymentEnvelope is the {scheme, network, payload} shape a
// downstream server expects inside X-PAYMENT, mirroring the inbound
// envelope AdmitInbound decodes.
type outboundPaymentEnvelope struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
	Payload string `json:"payload"`
}

// Authorize signs a credential good for exactly maxAmountRequired atomic
// units of toolName on network and wraps it in the X-PAYMENT envelope a
// downstream expects, per spec §4.5.3's retry requirement. Unlike Mint,
// which always asserts the configured MaxValue, Authorize is meant to be
// called lazily — only once a downstream has actually challenged with a
// 402 carrying its real maxAmountRequired.
func (c *OutboundCredential) Authorize(toolName, network, maxAmountRequired string) (string, error) {
	signed, err := c.mint(toolName, maxAmountRequired)
	if err != nil {
		return "", err
	}
	envelope := outboundPaymentEnvelope{Scheme: "exact", Network: network, Payload: signed}
	body, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// ForwardMode is UpstreamPaymentPolicy.mode of spec §3.
type ForwardMode string

const (
	ModeNone        ForwardMode = "None"
	ModePassthrough ForwardMode = "Passthrough"
	ModeMarkup      ForwardMode = "Markup"
	ModeAbsorb      ForwardMode = "Absorb"
)

// Outcome is the PaymentOutcome of spec §3.
type Outcome struct {
	Kind         OutcomeKind
	Method       AdmitMethod
	Amount       string
	Requirements *Requirements
	Reason       string
}

type OutcomeKind string

const (
	OutcomeAllowFree  OutcomeKind = "AllowFree"
	OutcomeAllowPaid  OutcomeKind = "AllowPaid"
	OutcomeChallenge  OutcomeKind = "Challenge"
	OutcomeReject     OutcomeKind = "Reject"
)

type AdmitMethod string

const (
	MethodNone   AdmitMethod = ""
	MethodX402   AdmitMethod = "X402"
	MethodAPIKey AdmitMethod = "ApiKey"
)

// Requirements is PaymentRequirements of spec §3.
type Requirements struct {
	X402Version int             `json:"x402Version"`
	Accepts     []RequirementAccept `json:"accepts"`
}

type RequirementAccept struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	PayTo             string `json:"payTo"`
	Asset             string `json:"asset"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
}

// ForwardDirective tells the Front-End/Upstream Session how to shape the
// outbound request after admission, per spec §4.5.3. Auth carries the
// transport-level mechanics (passthrough headers, or a lazy signer plus
// cap) so internal/transport's HTTP/SSE fetcher can react to a downstream
// 402 without internal/transport knowing anything about money or JWTs.
type ForwardDirective struct {
	Mode ForwardMode
	Auth transport.OutboundAuth
}

// InboundAuth is the tagged variant from spec §9's design note, computed
// once at the Front-End boundary from raw headers.
type InboundAuth struct {
	Kind   InboundAuthKind
	APIKey string
	X402   []byte // raw X-PAYMENT header value (base64-encoded JSON, decoded by AdmitInbound)
}

type InboundAuthKind string

const (
	InboundAnonymous InboundAuthKind = "Anonymous"
	InboundAPIKey    InboundAuthKind = "ApiKey"
	InboundX402      InboundAuthKind = "X402"
)

// UpstreamPolicy adapts upstream.PaymentPolicy/Pricing into this package's
// vocabulary so Mediator doesn't need to import upstream's internal pricing
// shapes directly in its decision functions.
type UpstreamPolicy = upstream.PaymentPolicy
type Pricing = upstream.Pricing
