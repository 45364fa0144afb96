// Package transport builds client-side MCP session transports from a
// TransportDescriptor. It is the Transport Factory of spec §4.1: a pure
// function from configuration to a wired client, with no knowledge of
// upstream lifecycle or capability negotiation (that belongs to
// internal/upstream).
package transport

import "fmt"

// Kind tags which of the four transport flavors a descriptor carries.
type Kind string

const (
	KindStdio     Kind = "stdio"
	KindHTTP      Kind = "http"
	KindSSE       Kind = "sse"
	KindWebsocket Kind = "websocket"
)

// Descriptor is the tagged variant described in spec §3. Exactly one of the
// kind-specific field groups is meaningful, selected by Kind.
type Descriptor struct {
	Kind Kind

	// stdio
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string

	// http / websocket
	URL     string
	Headers map[string]string
	APIKey  string

	// sse
	SSEURL  string
	PostURL string
}

// ConfigError reports a malformed or incomplete TransportDescriptor. The
// Connection Manager surfaces this by parking the affected upstream in the
// Error state without aborting gateway startup (spec §7).
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("transport config error: %s: %s", e.Field, e.Message)
}

// Coerce normalizes a legacy spec (only Command/Args set, no explicit Kind)
// into a tagged stdio descriptor. The rest of the core never sees the
// legacy shape, per the "Legacy config coercion" design note.
func Coerce(d Descriptor) Descriptor {
	if d.Kind == "" && d.Command != "" {
		d.Kind = KindStdio
	}
	return d
}

// Validate returns per-field errors without constructing a client, so the
// Connection Manager can reject a bad spec before attempting Make.
func Validate(d Descriptor) []error {
	d = Coerce(d)
	var errs []error

	switch d.Kind {
	case KindStdio:
		if d.Command == "" {
			errs = append(errs, &ConfigError{Field: "command", Message: "required for stdio transport"})
		}
	case KindHTTP, KindWebsocket:
		if d.URL == "" {
			errs = append(errs, &ConfigError{Field: "url", Message: fmt.Sprintf("required for %s transport", d.Kind)})
		}
	case KindSSE:
		if d.SSEURL == "" {
			errs = append(errs, &ConfigError{Field: "sseUrl", Message: "required for sse transport"})
		}
		if d.PostURL == "" {
			errs = append(errs, &ConfigError{Field: "postUrl", Message: "required for sse transport"})
		}
	default:
		errs = append(errs, &ConfigError{Field: "kind", Message: fmt.Sprintf("unknown transport kind %q", d.Kind)})
	}

	return errs
}

// mergeHeaders merges configured headers with an API key inserted as a
// bearer Authorization header, per spec §4.1: "if apiKey is present it is
// inserted as Authorization: Bearer <key>; headers are merged."
func mergeHeaders(headers map[string]string, apiKey string) map[string]string {
	merged := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	if apiKey != "" {
		merged["Authorization"] = "Bearer " + apiKey
	}
	return merged
}
