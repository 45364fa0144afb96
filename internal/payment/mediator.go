package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/elizaOS/mcp-gateway/internal/transport"
	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

const subsystem = "Mediator"

const (
	headerXPayment   = "X-PAYMENT"
	headerXAPIKey    = "X-ELIZA-API-KEY"
	headerAuthorize  = "Authorization"
	defaultX402Price = "$0.01"
)

// Mediator evaluates inbound and outbound payment policy, per spec §4.5.
// It is stateless across calls beyond its immutable policy and apiKey
// index, matching spec §3's ownership summary.
type Mediator struct {
	policy      Policy
	apiKeyIndex map[string]APIKeyEntry
	facilitator FacilitatorClient
}

// New constructs a Mediator from the gateway-wide Policy. facilitator may
// be nil only if policy.Enabled is false.
func New(policy Policy, facilitator FacilitatorClient) *Mediator {
	return &Mediator{
		policy:      policy,
		apiKeyIndex: policy.apiKeyIndex(),
		facilitator: facilitator,
	}
}

// ResolvePricing implements spec §4.5.1.
func ResolvePricing(upstreamPolicy UpstreamPolicy, originalName string) *Pricing {
	if upstreamPolicy.PerTool != nil {
		if p, ok := upstreamPolicy.PerTool[originalName]; ok {
			return p
		}
	}
	if upstreamPolicy.DefaultPricing != nil {
		return upstreamPolicy.DefaultPricing
	}
	return nil
}

// extractInboundAuth computes the InboundAuth tagged variant from raw
// headers, per spec §9's design note and §4.5.2's admission order ("Try API
// key (cheap, local)" before falling through to x402): a request carrying
// both an API key and a payment is treated as API-key-authenticated. Header
// lookups are case-insensitive; http.Header already normalizes this when
// built via http.Header.Set, but callers constructing a map manually should
// canonicalize keys first.
func extractInboundAuth(headers http.Header) InboundAuth {
	if key := headers.Get(headerXAPIKey); key != "" {
		return InboundAuth{Kind: InboundAPIKey, APIKey: key}
	}
	if auth := headers.Get(headerAuthorize); strings.HasPrefix(auth, "Bearer ") {
		return InboundAuth{Kind: InboundAPIKey, APIKey: strings.TrimPrefix(auth, "Bearer ")}
	}
	if xp := headers.Get(headerXPayment); xp != "" {
		return InboundAuth{Kind: InboundX402, X402: []byte(xp)}
	}
	return InboundAuth{Kind: InboundAnonymous}
}

// AdmitInbound implements the inbound admission algorithm of spec §4.5.2.
// resourcePath is used to populate PaymentRequirements.resource (e.g.
// "/tools/price").
func (m *Mediator) AdmitInbound(ctx context.Context, upstreamPolicy UpstreamPolicy, originalName, resourcePath string, headers http.Header) Outcome {
	if !m.policy.Enabled {
		logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "allow_free", Tool: originalName, Details: "payment disabled"})
		return Outcome{Kind: OutcomeAllowFree}
	}

	pricing := ResolvePricing(upstreamPolicy, originalName)
	if pricing == nil || pricing.Free {
		logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "allow_free", Tool: originalName})
		return Outcome{Kind: OutcomeAllowFree}
	}

	auth := extractInboundAuth(headers)

	if auth.Kind == InboundAPIKey {
		if entry, ok := m.apiKeyIndex[auth.APIKey]; ok {
			if tierPrice, ok := pricing.APIKeyTiers[entry.Tier]; ok {
				amount := tierPrice
				if isFreeTierPrice(tierPrice) {
					amount = "$0"
				}
				logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "allow_paid", Tool: originalName, Amount: amount, Details: "method=ApiKey"})
				return Outcome{Kind: OutcomeAllowPaid, Method: MethodAPIKey, Amount: amount}
			}
		}
	}

	x402Price := pricing.X402
	if x402Price == "" {
		x402Price = defaultX402Price
	}

	if auth.Kind != InboundX402 {
		logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "challenge", Tool: originalName, Amount: x402Price, Network: string(m.policy.Network)})
		return Outcome{Kind: OutcomeChallenge, Requirements: m.buildRequirements(x402Price, resourcePath, originalName)}
	}

	payload, err := base64.StdEncoding.DecodeString(string(auth.X402))
	if err != nil {
		logging.Warn(subsystem, "malformed X-PAYMENT header for %s: %v", originalName, err)
		logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "reject", Tool: originalName, Error: "malformed payment payload"})
		return Outcome{Kind: OutcomeReject, Reason: "malformed payment payload"}
	}

	requirements := m.buildRequirements(x402Price, resourcePath, originalName)
	verdict, err := m.facilitator.Verify(ctx, json.RawMessage(payload), *requirements)
	if err != nil {
		logging.Warn(subsystem, "facilitator error verifying payment for %s: %v", originalName, err)
		logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "reject", Tool: originalName, Error: "facilitator error"})
		return Outcome{Kind: OutcomeReject, Reason: "verification failed"}
	}
	if !verdict.Verified {
		logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "reject", Tool: originalName, Error: verdict.Error})
		return Outcome{Kind: OutcomeReject, Reason: "verification failed"}
	}

	logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "allow_paid", Tool: originalName, Amount: x402Price, Network: string(m.policy.Network)})
	return Outcome{Kind: OutcomeAllowPaid, Method: MethodX402, Amount: x402Price}
}

func isFreeTierPrice(price string) bool {
	switch price {
	case "free", "$0", "$0.00":
		return true
	default:
		return false
	}
}

// buildRequirements constructs PaymentRequirements per spec §3's exact
// shape, used both for Challenge responses and for Facilitator.verify.
func (m *Mediator) buildRequirements(x402Price, resourcePath, originalName string) *Requirements {
	return &Requirements{
		X402Version: 1,
		Accepts: []RequirementAccept{
			{
				Scheme:            "exact",
				Network:           string(m.policy.Network),
				MaxAmountRequired: Atomic(x402Price),
				Resource:          resourcePath,
				PayTo:             m.policy.Recipient.Hex(),
				Asset:             USDCAddress(m.policy.Network),
				MaxTimeoutSeconds: 30,
				Description:       "Payment for MCP tool: " + originalName,
				MimeType:          "application/json",
			},
		},
	}
}

// ResolveForward implements spec §4.5.3's outbound mode logic, run after
// admission succeeds. It does not mint anything eagerly: Markup/Absorb only
// produce a closure the Upstream Session's HTTP/SSE fetcher calls if the
// downstream actually challenges with a 402, per spec §4.5.3's "the
// gateway's outbound credential will synthesize a payment on retry".
func (m *Mediator) ResolveForward(upstreamPolicy UpstreamPolicy, toolName string, headers http.Header) ForwardDirective {
	mode := ForwardMode(upstreamPolicy.Mode)
	switch mode {
	case ModePassthrough:
		return ForwardDirective{Mode: mode, Auth: transport.OutboundAuth{PassthroughHeaders: passthroughHeaders(headers)}}
	case ModeMarkup, ModeAbsorb:
		directive := ForwardDirective{Mode: mode}
		if cred := m.policy.OutboundCredential; cred != nil {
			network := string(m.policy.Network)
			directive.Auth = transport.OutboundAuth{
				MaxValueAtomic: Atomic(cred.MaxValue),
				Authorize: func(maxAmountRequired string) (string, error) {
					signed, err := cred.Authorize(toolName, network, maxAmountRequired)
					if err != nil {
						logging.Warn(subsystem, "failed to sign outbound payment for %s: %v", toolName, err)
						return "", err
					}
					return signed, nil
				},
			}
		}
		return directive
	default:
		return ForwardDirective{Mode: ModeNone}
	}
}

// passthroughHeaders copies the headers spec §4.5.3 names, preserving the
// original casing the client used.
func passthroughHeaders(headers http.Header) map[string]string {
	wanted := map[string]bool{
		"x-payment":       true,
		"x-eliza-api-key": true,
		"authorization":   true,
	}
	out := make(map[string]string)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		if wanted[strings.ToLower(name)] {
			out[name] = values[0]
		}
	}
	return out
}

// PublishedPrice computes the client-facing price for Markup mode, per spec
// §4.5.3.
func PublishedPrice(upstreamPolicy UpstreamPolicy, downstreamPrice string) (string, error) {
	if ForwardMode(upstreamPolicy.Mode) != ModeMarkup || upstreamPolicy.Markup == "" {
		return downstreamPrice, nil
	}
	return ComputeMarkupPrice(downstreamPrice, upstreamPolicy.Markup)
}
