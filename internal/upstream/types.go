// Package upstream implements the Upstream Session of spec §4.2: a thin
// adapter exposing exactly the six MCP verbs plus close/probe over one
// concrete client built by internal/transport, with eager capability
// discovery at connect time and a unified error taxonomy.
package upstream

import (
	"fmt"
	"sync"
	"time"

	"github.com/elizaOS/mcp-gateway/internal/transport"
)

// Status mirrors the UpstreamSession state machine of spec §3.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Capabilities records which MCP capability groups this upstream answered
// successfully at connect time, per spec §4.2's eager-probing design note.
type Capabilities struct {
	HasTools     bool
	HasResources bool
	HasPrompts   bool
}

// Error is the unified UpstreamError of spec §4.2. Transient=true hints to
// the Connection Manager that retry or reconnect may help.
type Error struct {
	Transient bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Transient wraps err as a retryable UpstreamError.
func Transient(err error, format string, args ...interface{}) *Error {
	return &Error{Transient: true, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Fatal wraps err as a non-retryable UpstreamError.
func Fatal(err error, format string, args ...interface{}) *Error {
	return &Error{Transient: false, Message: fmt.Sprintf(format, args...), Cause: err}
}

// PaymentPolicy is the per-upstream payment configuration embedded in
// UpstreamSpec, per spec §3 UpstreamPaymentPolicy. Fields are interpreted by
// internal/payment; upstream only carries them.
type PaymentPolicy struct {
	Mode           string // None | Passthrough | Markup | Absorb
	Markup         string // Money ("$0.01") or Percent ("20%"), only when Mode=Markup
	DefaultPricing *Pricing
	PerTool        map[string]*Pricing
}

// Pricing mirrors spec §3 Pricing.
type Pricing struct {
	Free        bool
	X402        string // Money, e.g. "$0.01"
	APIKeyTiers map[string]string
}

// Spec is the immutable UpstreamSpec of spec §3.
type Spec struct {
	ID               string
	Namespace        string
	Enabled          bool
	Transport        transport.Descriptor
	ConnectTimeoutMs int
	RetryAttempts    int
	RetryDelayMs     int
	Payment          PaymentPolicy
}

func (s Spec) connectTimeout() time.Duration {
	if s.ConnectTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
}

// Session is the mutable runtime record of spec §3, owned exclusively by the
// Connection Manager. Exported fields are read by Registry/Front-End through
// snapshots taken under the Connection Manager's discipline; Session itself
// guards concurrent field access with mu since health-check probes and
// dispatched calls can race against each other.
type Session struct {
	Spec Spec

	mu                sync.RWMutex
	client            transport.Client
	status            Status
	lastError         error
	lastHealthCheckAt time.Time
	capabilities      Capabilities
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *Session) LastHealthCheckAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHealthCheckAt
}

func (s *Session) Capabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
	s.lastError = err
}

func (s *Session) setHealthCheckAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHealthCheckAt = t
}
