package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/elizaOS/mcp-gateway/internal/payment"
	"github.com/elizaOS/mcp-gateway/internal/transport"
	"github.com/elizaOS/mcp-gateway/internal/upstream"
	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

const subsystem = "ConfigLoader"

// Load reads and parses the GatewayConfig YAML document at path, applying
// defaults for anything the file omits, resolving any *File secret
// references, and validating every server's transport descriptor before
// returning, per spec §4's "validates each server spec via
// transport.Validate before startup".
func Load(path string) (GatewayConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info(subsystem, "no config file found at %s, using defaults", path)
			return cfg, nil
		}
		return GatewayConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	logging.Info(subsystem, "loaded configuration from %s", path)

	if err := resolveSecretFiles(&cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("resolving secrets for %s: %w", path, err)
	}

	if errs := ValidateServers(cfg.Servers); len(errs) > 0 {
		return GatewayConfig{}, errors.Join(errs...)
	}

	return cfg, nil
}

// resolveSecretFiles reads the outbound credential's signing key from
// signingKeyFile when set and signingKey is empty, keeping key material
// out of the config file itself, grounded on muster's resolveSecretFiles.
func resolveSecretFiles(cfg *GatewayConfig) error {
	cred := cfg.Payment.OutboundCredential
	if cred == nil || cred.SigningKeyFile == "" || cred.SigningKey != "" {
		return nil
	}
	data, err := os.ReadFile(cred.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("reading signing key file %s: %w", cred.SigningKeyFile, err)
	}
	cred.SigningKey = strings.TrimSpace(string(data))
	logging.Info(subsystem, "loaded outbound credential signing key from file")
	return nil
}

// ValidateServers runs transport.Validate over every server's transport
// descriptor, collecting all failures instead of stopping at the first.
func ValidateServers(servers []ServerConfig) []error {
	var errs []error
	for _, s := range servers {
		d := transport.Descriptor{
			Kind:    transport.Kind(s.Kind),
			Command: s.Command,
			URL:     s.URL,
			SSEURL:  s.SSEURL,
			PostURL: s.PostURL,
		}
		for _, err := range transport.Validate(d) {
			errs = append(errs, fmt.Errorf("server %q: %w", s.ID, err))
		}
	}
	return errs
}

// UpstreamSpecs converts every ServerConfig into an upstream.Spec, in file
// order — the order connmgr.Manager.Initialize preserves for the Registry's
// stable conflict resolution (spec §4.4).
func (c GatewayConfig) UpstreamSpecs() []upstream.Spec {
	specs := make([]upstream.Spec, 0, len(c.Servers))
	for _, s := range c.Servers {
		specs = append(specs, s.toUpstreamSpec())
	}
	return specs
}

// PaymentPolicy converts the gateway-wide payment config section into
// payment.Policy.
func (c GatewayConfig) PaymentPolicy() payment.Policy {
	return c.Payment.toPolicy()
}

// PerUpstreamPolicies indexes each server's UpstreamPaymentPolicy by
// upstream id, the shape gateway.New expects for its policies map.
func (c GatewayConfig) PerUpstreamPolicies() map[string]payment.UpstreamPolicy {
	out := make(map[string]payment.UpstreamPolicy, len(c.Servers))
	for _, s := range c.Servers {
		out[s.ID] = s.Payment.toUpstreamPaymentPolicy()
	}
	return out
}
