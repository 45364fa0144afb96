// Package connmgr implements the Connection Manager of spec §4.3: it owns
// every Upstream Session, drives parallel connect with linear retry,
// periodic bounded-fanout health checks, and graceful teardown. The session
// map is guarded by an RWMutex: writes are serialized under the write lock,
// and readers take snapshots under the read lock.
package connmgr

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elizaOS/mcp-gateway/internal/upstream"
	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

const subsystem = "ConnectionManager"

// DefaultMaxConcurrentConnections bounds health-probe fan-out when a config
// does not set settings.maxConcurrentConnections, per spec §4.3.
const DefaultMaxConcurrentConnections = 10

// DefaultHealthCheckInterval is the health-check task period absent an
// explicit settings.healthCheckInterval, per spec §5.
const DefaultHealthCheckInterval = 60 * time.Second

// OnRebuild is invoked after every health-check pass so the Capability
// Registry can rebuild from the latest getConnected() snapshot, per spec
// §4.3 healthCheck's "emits an event after the pass" requirement.
type OnRebuild func(connected []*upstream.Session)

// Manager owns map<upstreamId, *upstream.Session>. All mutation to the map
// happens under mu's write lock, which serializes writers; connect and
// reconnect work runs outside the lock, so readers taking a snapshot under
// the read lock never wait on a slow connect/reconnect.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*upstream.Session
	order    []string // insertion order of sessions, for Registry's stable conflict resolution (spec §4.4)

	maxConcurrent int
	onRebuild     OnRebuild

	stopHealthLoop context.CancelFunc
	healthLoopDone chan struct{}
}

// New constructs an empty Manager. maxConcurrent <= 0 falls back to
// DefaultMaxConcurrentConnections.
func New(maxConcurrent int, onRebuild OnRebuild) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentConnections
	}
	return &Manager{
		sessions:      make(map[string]*upstream.Session),
		maxConcurrent: maxConcurrent,
		onRebuild:     onRebuild,
	}
}

// Initialize starts one independent connect task per enabled spec. A
// per-upstream failure never fails Initialize itself — per spec §4.3, the
// gateway continues even if zero upstreams connect.
func (m *Manager) Initialize(ctx context.Context, specs []upstream.Spec) {
	var wg sync.WaitGroup
	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}
		session := upstream.NewSession(spec)

		m.mu.Lock()
		m.sessions[spec.ID] = session
		m.order = append(m.order, spec.ID)
		m.mu.Unlock()

		wg.Add(1)
		go func(s *upstream.Session) {
			defer wg.Done()
			m.connectWithRetry(ctx, s)
		}(session)
	}
	wg.Wait()
}

// connectWithRetry retries a single session's Connect up to
// spec.RetryAttempts times with a linear spec.RetryDelayMs pause between
// attempts, stopping early on a non-transient failure, per spec §4.3.
func (m *Manager) connectWithRetry(ctx context.Context, s *upstream.Session) {
	attempts := s.Spec.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(s.Spec.RetryDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := s.Connect(ctx)
		if err == nil {
			logging.Info(subsystem, "upstream %s connected", s.Spec.ID)
			return
		}
		lastErr = err

		var upErr *upstream.Error
		transient := false
		if asUpErr, ok := err.(*upstream.Error); ok {
			upErr = asUpErr
			transient = upErr.Transient
		}
		if !transient || attempt == attempts {
			break
		}

		logging.Warn(subsystem, "upstream %s connect attempt %d/%d failed, retrying: %v", s.Spec.ID, attempt, attempts, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	logging.Error(subsystem, lastErr, "upstream %s failed to connect after %d attempt(s)", s.Spec.ID, attempts)
}

// HealthCheck runs one pass: Connected sessions are probed, Disconnected and
// Error sessions get a single reconnect attempt (bounded by RetryAttempts
// within this pass), each capped by maxConcurrent fan-out via errgroup.
func (m *Manager) HealthCheck(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*upstream.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrent)

	for _, s := range sessions {
		s := s
		g.Go(func() error {
			switch s.Status() {
			case upstream.StatusConnected:
				if err := s.Probe(gctx); err != nil {
					logging.Warn(subsystem, "health probe failed for upstream %s: %v", s.Spec.ID, err)
				}
			case upstream.StatusDisconnected, upstream.StatusError:
				m.connectWithRetry(gctx, s)
			}
			return nil
		})
	}
	_ = g.Wait()

	logging.Debug(subsystem, "health check pass complete over %d upstream(s)", len(sessions))

	if m.onRebuild != nil {
		m.onRebuild(m.GetConnected())
	}
}

// StartHealthLoop launches the periodic health-check task described in
// spec §5. Call StopHealthLoop (or cancel ctx) to stop it.
func (m *Manager) StartHealthLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.stopHealthLoop = cancel
	m.healthLoopDone = make(chan struct{})

	go func() {
		defer close(m.healthLoopDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.HealthCheck(loopCtx)
			}
		}
	}()
}

// StopHealthLoop stops the periodic health-check task and waits for the
// current pass, if any, to finish.
func (m *Manager) StopHealthLoop() {
	if m.stopHealthLoop == nil {
		return
	}
	m.stopHealthLoop()
	<-m.healthLoopDone
}

// CloseAll best-effort closes every session in parallel; errors are logged,
// never propagated, per spec §4.3.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*upstream.Session, 0, len(m.sessions))
	for _, id := range m.order {
		sessions = append(sessions, m.sessions[id])
	}
	m.sessions = make(map[string]*upstream.Session)
	m.order = nil
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *upstream.Session) {
			defer wg.Done()
			if err := s.Close(); err != nil {
				logging.Warn(subsystem, "error closing upstream %s: %v", s.Spec.ID, err)
			}
		}(s)
	}
	wg.Wait()
}

// GetConnected returns a snapshot of sessions currently in the Connected
// state, in config insertion order — Registry.Refresh relies on this order
// for its stable, first-wins conflict resolution (spec §4.4). Callers must
// not retain references across a subsequent CloseAll.
func (m *Manager) GetConnected() []*upstream.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connected := make([]*upstream.Session, 0, len(m.order))
	for _, id := range m.order {
		s := m.sessions[id]
		if s.Status() == upstream.StatusConnected {
			connected = append(connected, s)
		}
	}
	return connected
}

// Get returns the session for id, if any, regardless of status. The
// Front-End uses this to distinguish "unknown upstream" from "known but
// disconnected".
func (m *Manager) Get(id string) (*upstream.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}
