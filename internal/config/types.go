// Package config loads the declarative configuration surface described in
// spec §6 into the types the rest of the gateway consumes:
// connmgr.Manager.Initialize's []upstream.Spec and payment.New's Policy.
// It is grounded on muster's internal/config (YAML via gopkg.in/yaml.v3,
// a defaults-first loader, file-based secret resolution) generalized from
// muster's single-aggregator shape to the gateway's servers[] + settings{}
// shape of spec §6.
package config

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/elizaOS/mcp-gateway/internal/payment"
	"github.com/elizaOS/mcp-gateway/internal/transport"
	"github.com/elizaOS/mcp-gateway/internal/upstream"
)

// GatewayConfig is the top-level configuration document of spec §6.
type GatewayConfig struct {
	Name        string         `yaml:"name"`
	Version     string         `yaml:"version"`
	Description string         `yaml:"description,omitempty"`
	Servers     []ServerConfig       `yaml:"servers"`
	Settings    Settings             `yaml:"settings"`
	Payment     GatewayPaymentConfig `yaml:"payment,omitempty"`
}

// Settings is GatewayConfig.settings of spec §6.
type Settings struct {
	EnableToolConflictResolution     bool   `yaml:"enableToolConflictResolution"`
	EnableResourceConflictResolution bool   `yaml:"enableResourceConflictResolution"`
	EnablePromptConflictResolution   bool   `yaml:"enablePromptConflictResolution"`
	LogLevel                         string `yaml:"logLevel"` // error|warn|info|debug
	MaxConcurrentConnections         int    `yaml:"maxConcurrentConnections"`
	HealthCheckIntervalSeconds       int    `yaml:"healthCheckInterval"`
	HTTPEnabled                      bool   `yaml:"httpEnabled"`
	HTTPAddr                         string `yaml:"httpAddr"`
}

// ServerConfig is one entry of GatewayConfig.servers, the YAML shape of
// UpstreamSpec + UpstreamPaymentPolicy (spec §3, §6).
type ServerConfig struct {
	ID               string           `yaml:"id"`
	Namespace        string           `yaml:"namespace,omitempty"`
	Enabled          *bool            `yaml:"enabled,omitempty"` // nil means true, per muster's defaults-first loading
	ConnectTimeoutMs int              `yaml:"connectTimeoutMs,omitempty"`
	RetryAttempts    int              `yaml:"retryAttempts,omitempty"`
	RetryDelayMs     int              `yaml:"retryDelayMs,omitempty"`

	// Transport, tagged by Kind; legacy {command,args} omits Kind and is
	// coerced to stdio by transport.Coerce.
	Kind    string            `yaml:"kind,omitempty"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Cwd     string            `yaml:"cwd,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	SSEURL  string            `yaml:"sseUrl,omitempty"`
	PostURL string            `yaml:"postUrl,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	APIKey  string            `yaml:"apiKey,omitempty"`

	Payment PaymentPolicyConfig `yaml:"payment,omitempty"`
}

// PaymentPolicyConfig is the YAML shape of spec §3's UpstreamPaymentPolicy.
type PaymentPolicyConfig struct {
	Mode           string                   `yaml:"mode,omitempty"` // None|Passthrough|Markup|Absorb
	Markup         string                   `yaml:"markup,omitempty"`
	DefaultPricing *PricingConfig           `yaml:"defaultPricing,omitempty"`
	PerTool        map[string]*PricingConfig `yaml:"perTool,omitempty"`
}

// PricingConfig is the YAML shape of spec §3's Pricing.
type PricingConfig struct {
	Free        bool              `yaml:"free,omitempty"`
	X402        string            `yaml:"x402,omitempty"`
	APIKeyTiers map[string]string `yaml:"apiKeyTiers,omitempty"`
}

// GatewayPaymentConfig is the YAML shape of spec §3's (gateway-wide)
// PaymentPolicy, kept as its own top-level document section since it is
// gateway-wide rather than per-server.
type GatewayPaymentConfig struct {
	Enabled            bool                    `yaml:"enabled"`
	Recipient          string                  `yaml:"recipient,omitempty"`
	Network            string                  `yaml:"network,omitempty"`
	FacilitatorURL     string                  `yaml:"facilitatorUrl,omitempty"`
	OutboundCredential *OutboundCredentialConfig `yaml:"outboundCredential,omitempty"`
	APIKeys            []APIKeyConfig          `yaml:"apiKeys,omitempty"`
}

type OutboundCredentialConfig struct {
	SigningKeyFile string `yaml:"signingKeyFile,omitempty"`
	SigningKey     string `yaml:"signingKey,omitempty"`
	Issuer         string `yaml:"issuer,omitempty"`
	MaxValue       string `yaml:"maxValue,omitempty"`
}

type APIKeyConfig struct {
	Key       string `yaml:"key"`
	Tier      string `yaml:"tier"`
	RateLimit int    `yaml:"rateLimit,omitempty"`
}

// toUpstreamSpec converts one ServerConfig into the immutable
// upstream.Spec the Connection Manager consumes, per Design Note "Legacy
// config coercion": the TransportDescriptor fields are copied verbatim and
// transport.Coerce/Validate run downstream of this conversion.
func (s ServerConfig) toUpstreamSpec() upstream.Spec {
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	return upstream.Spec{
		ID:               s.ID,
		Namespace:        s.Namespace,
		Enabled:          enabled,
		ConnectTimeoutMs: s.ConnectTimeoutMs,
		RetryAttempts:    s.RetryAttempts,
		RetryDelayMs:     s.RetryDelayMs,
		Transport: transport.Descriptor{
			Kind:    transport.Kind(s.Kind),
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
			Cwd:     s.Cwd,
			URL:     s.URL,
			SSEURL:  s.SSEURL,
			PostURL: s.PostURL,
			Headers: s.Headers,
			APIKey:  s.APIKey,
		},
		Payment: s.Payment.toUpstreamPaymentPolicy(),
	}
}

func (p PaymentPolicyConfig) toUpstreamPaymentPolicy() upstream.PaymentPolicy {
	perTool := make(map[string]*payment.Pricing, len(p.PerTool))
	for name, pricing := range p.PerTool {
		perTool[name] = pricing.toPricing()
	}
	return upstream.PaymentPolicy{
		Mode:           p.Mode,
		Markup:         p.Markup,
		DefaultPricing: p.DefaultPricing.toPricing(),
		PerTool:        perTool,
	}
}

func (p *PricingConfig) toPricing() *payment.Pricing {
	if p == nil {
		return nil
	}
	return &payment.Pricing{
		Free:        p.Free,
		X402:        p.X402,
		APIKeyTiers: p.APIKeyTiers,
	}
}

// toPolicy converts the gateway-wide payment config section into
// payment.Policy. Secret/signing-key resolution from file happens in
// loader.go before this is called.
func (g GatewayPaymentConfig) toPolicy() payment.Policy {
	apiKeys := make([]payment.APIKeyEntry, 0, len(g.APIKeys))
	for _, k := range g.APIKeys {
		apiKeys = append(apiKeys, payment.APIKeyEntry{Key: k.Key, Tier: k.Tier, RateLimit: k.RateLimit})
	}

	policy := payment.Policy{
		Enabled:        g.Enabled,
		Network:        payment.Network(g.Network),
		FacilitatorURL: g.FacilitatorURL,
		APIKeys:        apiKeys,
	}
	if g.Recipient != "" {
		policy.Recipient = common.HexToAddress(g.Recipient)
	}
	if g.OutboundCredential != nil {
		policy.OutboundCredential = &payment.OutboundCredential{
			SigningKey: []byte(g.OutboundCredential.SigningKey),
			Issuer:     g.OutboundCredential.Issuer,
			MaxValue:   g.OutboundCredential.MaxValue,
		}
	}
	return policy
}
