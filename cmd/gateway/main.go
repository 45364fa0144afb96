// Command gateway runs the MCP aggregation gateway: it loads a
// GatewayConfig, brings up the Connection Manager, Capability Registry,
// and Payment Mediator, then serves the Gateway Front-End over the
// stdio/streaming MCP binding unconditionally and, additionally, over an
// HTTP wrapper when configured to do so. Exit code policy per spec §6: 0 on
// normal shutdown, 1 on fatal configuration or startup error.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/elizaOS/mcp-gateway/internal/config"
	"github.com/elizaOS/mcp-gateway/internal/connmgr"
	"github.com/elizaOS/mcp-gateway/internal/gateway"
	"github.com/elizaOS/mcp-gateway/internal/payment"
	"github.com/elizaOS/mcp-gateway/internal/registry"
	"github.com/elizaOS/mcp-gateway/internal/upstream"
	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

func main() {
	configPath := flag.String("config", "gateway.yaml", "path to the gateway configuration file")
	flag.Parse()

	logging.Init(logging.LevelInfo, os.Stdout)

	if err := run(*configPath); err != nil {
		logging.Error("Main", err, "gateway exited with a fatal error")
		os.Exit(1)
	}
	os.Exit(0)
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Init(logging.ParseLevel(cfg.Settings.LogLevel), os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := registry.New(registry.ConflictResolution{
		Tools:     cfg.Settings.EnableToolConflictResolution,
		Resources: cfg.Settings.EnableResourceConflictResolution,
		Prompts:   cfg.Settings.EnablePromptConflictResolution,
	})

	maxConcurrent := cfg.Settings.MaxConcurrentConnections
	if maxConcurrent <= 0 {
		maxConcurrent = connmgr.DefaultMaxConcurrentConnections
	}
	onRebuild := func(connected []*upstream.Session) {
		reg.Refresh(context.Background(), connected)
	}
	connMgr := connmgr.New(maxConcurrent, onRebuild)

	policy := cfg.PaymentPolicy()
	var facilitator payment.FacilitatorClient
	if policy.Enabled {
		facilitator = payment.NewHTTPFacilitatorClient(policy.FacilitatorURL)
	}
	mediator := payment.New(policy, facilitator)

	frontEnd := gateway.New(reg, connMgr, mediator, cfg.PerUpstreamPolicies())

	logging.Info("Main", "connecting to %d configured upstream(s)", len(cfg.Servers))
	connMgr.Initialize(ctx, cfg.UpstreamSpecs())
	frontEnd.RefreshRegistry(ctx)

	interval := time.Duration(cfg.Settings.HealthCheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = connmgr.DefaultHealthCheckInterval
	}
	connMgr.StartHealthLoop(ctx, interval)
	defer connMgr.StopHealthLoop()

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		logging.Warn("Main", "config hot-reload disabled: %v", err)
	} else {
		go watcher.Run(ctx)
		go watchConfigChanges(ctx, watcher, connMgr)
		defer watcher.Close()
	}

	mcpServer := gateway.NewMCPServer(frontEnd, "mcp-gateway", "1.0.0")
	stdioServer := server.NewStdioServer(mcpServer)
	go func() {
		logging.Info("Main", "serving stdio MCP binding")
		if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			logging.Error("Main", err, "stdio MCP binding stopped unexpectedly")
		}
	}()

	var httpServer *http.Server
	if cfg.Settings.HTTPEnabled {
		addr := cfg.Settings.HTTPAddr
		if addr == "" {
			addr = ":8080"
		}
		httpServer = &http.Server{Addr: addr, Handler: gateway.NewHTTPHandler(frontEnd)}
		go func() {
			logging.Info("Main", "HTTP wrapper listening on %s", addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("Main", err, "HTTP wrapper stopped unexpectedly")
			}
		}()
	}

	logging.Info("Main", "gateway running, press Ctrl+C to stop")
	<-ctx.Done()

	logging.Info("Main", "shutting down")
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	connMgr.CloseAll()
	return nil
}

// watchConfigChanges connects newly-added, enabled upstreams whenever the
// Watcher publishes a new GatewayConfig, per SPEC_FULL.md's hot-reload
// supplemented feature. Upstreams the Connection Manager already knows
// about are left untouched; only ids it has never seen are connected.
func watchConfigChanges(ctx context.Context, watcher *config.Watcher, connMgr *connmgr.Manager) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-watcher.Changes():
			if !ok {
				return
			}
			var added []upstream.Spec
			for _, spec := range cfg.UpstreamSpecs() {
				if _, known := connMgr.Get(spec.ID); !known {
					added = append(added, spec)
				}
			}
			if len(added) == 0 {
				continue
			}
			ids := make([]string, 0, len(added))
			for _, spec := range added {
				ids = append(ids, spec.ID)
			}
			logging.Info("Main", "config reload added upstream(s): %v", ids)
			connMgr.Initialize(ctx, added)
		case err, ok := <-watcher.Errors():
			if !ok {
				return
			}
			logging.Warn("Main", "config reload failed, keeping previous configuration: %v", err)
		}
	}
}
