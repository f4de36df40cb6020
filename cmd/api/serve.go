package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/earthworm/internal/api"
	"github.com/dunamismax/earthworm/internal/config"
	"github.com/dunamismax/earthworm/internal/pipeline"
	"github.com/dunamismax/earthworm/internal/provider"
	"github.com/dunamismax/earthworm/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Host to bind to (overrides HOST)")
	cmd.Flags().Int("port", 0, "Port to listen on (overrides PORT)")
	cmd.Flags().Bool("debug", false, "Enable debug endpoints (overrides DEBUG)")
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.API.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.API.Port = port
	}
	if cmd.Flags().Changed("debug") {
		cfg.API.Debug, _ = cmd.Flags().GetBool("debug")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, &cfg)
	logger := newLogger("api")

	kind, err := provider.ParseKind(cfg.Provider.Kind)
	if err != nil {
		return fmt.Errorf("AI_PROVIDER: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := pipeline.Startup(); err != nil {
		return fmt.Errorf("start image pipeline: %w", err)
	}
	defer pipeline.Shutdown()

	registry := newRegistry(cfg)
	warmProvider(ctx, registry, kind, cfg.Webhook.HealthTimeout, logger)

	app := api.NewServer(logger, api.Options{
		Registry:       registry,
		ProviderKind:   kind,
		Debug:          cfg.API.Debug,
		Version:        Version,
		AllowedOrigins: cfg.API.AllowedOrigins,
		MaxBodyBytes:   cfg.API.MaxRequestBytes,
		Tracer:         otel.Tracer("earthworm/api"),
	})

	addr := cfg.API.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		// The webhook may legitimately take its whole timeout before replying.
		WriteTimeout: cfg.Webhook.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s provider=%s webhook=%s debug=%t", addr, kind, cfg.Webhook.URL, cfg.API.Debug)
		logger.Printf("cors allowed origins=%v", cfg.API.AllowedOrigins)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	return nil
}

// warmProvider builds the configured provider before the first request and
// logs whether it answers. A failed check never stops startup.
func warmProvider(ctx context.Context, registry *provider.Registry, kind provider.Kind, timeout time.Duration, logger *log.Logger) bool {
	p, err := registry.Get(kind)
	if err != nil {
		logger.Printf("could not verify provider=%s err=%v", kind, err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !p.HealthCheck(ctx) {
		logger.Printf("warning: webhook may not be accessible provider=%s", kind)
		return false
	}
	logger.Printf("webhook connection verified provider=%s", kind)
	return true
}
