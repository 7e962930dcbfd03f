// ABOUTME: This file is the application entry point behind main
// ABOUTME: Config, telemetry, dependency wiring, server start, graceful shutdown
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"citation-processor/config"
	"citation-processor/logger"
	"citation-processor/telemetry"
)

// Run initializes all dependencies, starts the HTTP server and waits for a
// shutdown signal.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	otelShutdown, err := telemetry.InitProvider(ctx, cfg.Telemetry)
	if err != nil {
		fmt.Printf("failed to initialize telemetry: %v\n", err)
		cfg.Telemetry.Enabled = false
		otelShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			fmt.Printf("failed to shut down telemetry: %v\n", err)
		}
	}()

	log := logger.New(cfg.Telemetry.ServiceName, cfg.Server.LogLevel, cfg.Telemetry.Enabled)

	log.Info("starting citation processor",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"otel_enabled", cfg.Telemetry.Enabled,
		"service", cfg.Telemetry.ServiceName)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := BuildDependencies(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer cleanup()

	server := NewHTTPServer(deps, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down citation processor")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("citation processor stopped")
	return nil
}
