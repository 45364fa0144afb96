package config

import "github.com/elizaOS/mcp-gateway/internal/connmgr"

// defaultSettings mirrors muster's GetDefaultConfigWithRoles: a config file
// need only override what it cares about, everything else falls back to
// sensible operational defaults.
func defaultSettings() Settings {
	return Settings{
		LogLevel:                   "info",
		MaxConcurrentConnections:   connmgr.DefaultMaxConcurrentConnections,
		HealthCheckIntervalSeconds: int(connmgr.DefaultHealthCheckInterval.Seconds()),
		HTTPEnabled:                false,
		HTTPAddr:                   ":8080",
	}
}

// DefaultConfig returns an empty, valid GatewayConfig (no servers, payment
// disabled) with defaultSettings applied.
func DefaultConfig() GatewayConfig {
	return GatewayConfig{
		Name:     "mcp-gateway",
		Version:  "0.1.0",
		Settings: defaultSettings(),
	}
}
