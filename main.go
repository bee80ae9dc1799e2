package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rancherdx/pawfect-livechat/internal/auth"
	"github.com/rancherdx/pawfect-livechat/internal/config"
	"github.com/rancherdx/pawfect-livechat/internal/hub"
	"github.com/rancherdx/pawfect-livechat/internal/logging"
	"github.com/rancherdx/pawfect-livechat/internal/metrics"
	"github.com/rancherdx/pawfect-livechat/internal/policy"
	"github.com/rancherdx/pawfect-livechat/internal/repository"
	"github.com/rancherdx/pawfect-livechat/internal/service"
	internalhttp "github.com/rancherdx/pawfect-livechat/internal/transport/http"
	"github.com/rancherdx/pawfect-livechat/internal/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "livechat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting chat server",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("admin_tokens", len(cfg.AdminTokens)),
	)
	if len(cfg.AdminTokens) == 0 {
		logger.Warn("ADMIN_TOKENS is empty, no admin can sign in")
	}

	// Initialize store
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Hub, service and transports
	connectionHub := hub.NewHub(logger, m)
	svc := service.New(db, policyEngine, connectionHub, m, logger)
	verifier := auth.NewStaticVerifier(cfg.AdminTokens)
	sockets := ws.NewServer(cfg, connectionHub, svc, verifier, logger)

	e := internalhttp.NewServer(internalhttp.Deps{
		Config:   cfg,
		Service:  svc,
		Hub:      connectionHub,
		Sockets:  sockets,
		Verifier: verifier,
		Gatherer: registry,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return connectionHub.Run(gctx)
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("chat server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down chat server")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown HTTP server gracefully", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("chat server stopped")
	return nil
}
