// Package main runs the Operator: the HTTP/WebSocket control plane
// that inventories agents, plans and schedules tasks, enforces safety
// and policy gating, reconciles worker pool capacity, and coordinates
// the CRDT-backed collaboration layer.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nexops/operator/pkg/api"
	"github.com/nexops/operator/pkg/collab"
	"github.com/nexops/operator/pkg/config"
	"github.com/nexops/operator/pkg/database"
	"github.com/nexops/operator/pkg/ledger"
	"github.com/nexops/operator/pkg/policy"
	"github.com/nexops/operator/pkg/reconciler"
	"github.com/nexops/operator/pkg/registry"
	"github.com/nexops/operator/pkg/safety"
	"github.com/nexops/operator/pkg/scheduler"
	"github.com/nexops/operator/pkg/shard"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no %s loaded: %v (continuing with existing environment)", envPath, err)
	}

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbClient, err := database.NewClient(ctx, *cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logger.Error("error closing database client", "error", err)
		}
	}()

	pol, err := policy.Load(cfg.PolicyDir)
	if err != nil {
		log.Fatalf("failed to load policy catalog from %s: %v", cfg.PolicyDir, err)
	}

	led, err := ledger.New(cfg.LedgerDir, logger)
	if err != nil {
		log.Fatalf("failed to open audit ledger at %s: %v", cfg.LedgerDir, err)
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Error("error closing ledger", "error", err)
		}
	}()

	validator, err := safety.New(cfg.Safety)
	if err != nil {
		// validate() already compiled every pattern during config
		// load; a failure here would mean cfg.Safety was mutated
		// after Initialize, which never happens on this path.
		log.Fatalf("failed to build safety validator: %v", err)
	}

	reg := registry.New(logger,
		registry.WithOfflineThreshold(cfg.Server.OfflineThreshold),
		registry.WithLedger(led))

	sched := scheduler.New(reg, validator, led, logger)

	shardManager := shard.NewManager(cfg.Shard.Count, shard.WithVirtualNodes(cfg.Shard.VirtualNodes))
	collabManager := collab.NewManager(shardManager)
	_ = collabManager // wired for the collaboration session layer; no HTTP surface is mandated for it

	infraProvider := newInfraProvider(logger)
	if closer, ok := infraProvider.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("error closing fleet service connection", "error", err)
			}
		}()
	}

	recon := reconciler.New(reconciler.NewEntStore(dbClient), infraProvider, cfg.Reconciler, led, logger)

	server := api.NewServer(dbClient, reg, sched, pol, led, logger)
	server.SetPlanner(noopPlanner{})

	stats := cfg.Stats()
	logger.Info("operator configured",
		"listen_addr", stats.ListenAddr,
		"shard_count", stats.ShardCount,
		"policy_dir", stats.PolicyDir,
		"ledger_dir", stats.LedgerDir)

	var wg sync.WaitGroup
	runLoop(ctx, &wg, "dispatcher", 1*time.Second, func(ctx context.Context) {
		sched.DispatchNext(ctx)
	})
	runLoop(ctx, &wg, "health-check", cfg.Server.OfflineThreshold/2, func(context.Context) {
		reg.CheckHealth()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		recon.Start(ctx)
	}()
	defer recon.Stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	stop()
	wg.Wait()
	logger.Info("operator stopped")
}

// runLoop starts f on a ticker of interval, stopping when ctx is
// cancelled. interval <= 0 falls back to 10s so a misconfigured
// threshold never busy-loops.
func runLoop(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, f func(context.Context)) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f(ctx)
			}
		}
	}()
	slog.Default().Info("loop started", "name", name, "interval", interval)
}

// newInfraProvider dials the fleet-control service named by
// FLEET_SERVICE_ADDR, falling back to a no-op provider for local
// development when it is unset, the same "no credentials configured"
// fallback the reference implementation's base provider offers.
func newInfraProvider(logger *slog.Logger) reconciler.InfraProvider {
	addr := os.Getenv("FLEET_SERVICE_ADDR")
	if addr == "" {
		logger.Warn("FLEET_SERVICE_ADDR not set, reconciler will not scale real infrastructure")
		return reconciler.NoopProvider{}
	}
	provider, err := reconciler.NewGRPCProvider(addr)
	if err != nil {
		logger.Error("failed to dial fleet service, falling back to no-op provider", "addr", addr, "error", err)
		return reconciler.NoopProvider{}
	}
	return provider
}

// noopPlanner is the Operator's built-in Planner: LLM-backed planning
// is an external, pluggable collaborator outside this repository's
// scope, selected at deployment time via api.Server.SetPlanner. This
// stub keeps task creation functional (planning fails cleanly) when no
// real planner has been wired in.
type noopPlanner struct{}

var errNoPlannerConfigured = errors.New("operator: no external planner configured")

func (noopPlanner) Plan(ctx context.Context, taskID, request string) (api.Plan, error) {
	return api.Plan{}, errNoPlannerConfigured
}
