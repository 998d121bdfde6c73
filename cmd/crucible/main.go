package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crucible-dev/crucible/internal/adapter/agents"
	crhttp "github.com/crucible-dev/crucible/internal/adapter/http"
	crnats "github.com/crucible-dev/crucible/internal/adapter/nats"
	crotel "github.com/crucible-dev/crucible/internal/adapter/otel"
	"github.com/crucible-dev/crucible/internal/adapter/postgres"
	"github.com/crucible-dev/crucible/internal/adapter/ristretto"
	"github.com/crucible-dev/crucible/internal/adapter/sandbox"
	"github.com/crucible-dev/crucible/internal/adapter/ws"
	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/logger"
	"github.com/crucible-dev/crucible/internal/port/broadcast"
	"github.com/crucible-dev/crucible/internal/resilience"
	"github.com/crucible-dev/crucible/internal/runner"
	"github.com/crucible-dev/crucible/internal/secrets"
	"github.com/crucible-dev/crucible/internal/security"
	"github.com/crucible-dev/crucible/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLog.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"workspace", cfg.Runner.WorkspacePath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := crnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	verdictCache, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer verdictCache.Close()

	vault, err := secrets.NewVault(secrets.EnvLoader(secrets.KeyAgentCredential))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	if !vault.Has(secrets.KeyAgentCredential) {
		slog.Warn("agent credential not set, delegations will run unauthenticated", "env", secrets.KeyAgentCredential)
	}

	shutdownTracer := crotel.InitTracer("crucible")
	defer func() { _ = shutdownTracer(context.Background()) }()

	metrics, err := crotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Agents ---

	dispatcher, err := agents.NewDispatcher(ctx, queue)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	defer dispatcher.Close()

	reg := agents.NewRegistry()
	for _, t := range agent.Types() {
		a := agents.NewRemoteAgent(t, agentDescription(t), dispatcher, cfg.Orchestrator.AgentTimeout)
		if err := reg.Register(a); err != nil {
			return fmt.Errorf("register agent %s: %w", t, err)
		}
	}

	// --- Services ---

	hub := ws.NewHub()
	events := broadcast.Fanout(hub, crnats.NewEventPublisher(queue))
	breaker := resilience.NewBreaker(resilience.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		FailureWindow:    cfg.Breaker.FailureWindow,
	})
	checkpoints := postgres.NewCheckpointStore(pool)
	orchestrator := service.NewOrchestrator(breaker, reg, checkpoints, events, metrics, vault, cfg.Orchestrator)

	sb, err := sandbox.NewLocal(cfg.Runner.WorkspacePath, cfg.Runner.MaxConcurrentIO)
	if err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	checker := security.NewChecker(verdictCache, cfg.Security.VerdictCacheTTL)
	actions := runner.New(sb, checker, events, metrics, cfg.Runner)
	actions.Start(ctx)
	defer actions.Close()

	// --- HTTP ---

	handlers := crhttp.NewHandlers(breaker, reg, orchestrator, actions, checkpoints, hub)
	router := crhttp.NewRouter(handlers, cfg.Server)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func agentDescription(t agent.Type) string {
	switch t {
	case agent.TypeExplore:
		return "explores the codebase and reports structure"
	case agent.TypeCoder:
		return "writes and edits source code"
	case agent.TypeBuilder:
		return "runs builds and resolves build failures"
	case agent.TypeTester:
		return "runs tests and reports failures"
	case agent.TypeDeployer:
		return "deploys builds to target environments"
	case agent.TypeReviewer:
		return "reviews changes for defects"
	case agent.TypeFixer:
		return "fixes reported defects"
	case agent.TypeArchitect:
		return "plans and decomposes large features"
	default:
		return string(t)
	}
}
