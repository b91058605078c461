// Package main provides the entry point for the photoreel API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/photoreel-api/internal/bootstrap"
	"github.com/maauso/photoreel-api/internal/config"
	"github.com/maauso/photoreel-api/internal/preflight"
	"github.com/maauso/photoreel-api/internal/server"
)

// jobCleanupGrace bounds how long cancelled compositions get to clean up.
const jobCleanupGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting photoreel API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.String("music_dir", cfg.MusicDir),
		slog.String("ffmpeg", cfg.FFmpegPath),
		slog.String("publish_backend", cfg.PublishBackend),
	)

	ctx := context.Background()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("failed to close dependencies", slog.String("error", err.Error()))
		}
	}()

	// A failed preflight is reported but not fatal; /health keeps reporting it
	for _, check := range deps.HealthCheck(ctx) {
		if !check.Passed {
			logger.Warn("preflight check failed",
				slog.String("check", check.Name),
				slog.String("detail", check.Detail),
			)
		}
	}

	// Background compositions run under jobsCtx; cancelling it kills their encoders
	jobsCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Service, logger,
		server.WithBaseContext(jobsCtx),
		server.WithPublisher(deps.Publisher),
		server.WithDefaults(cfg.Defaults),
		server.WithAudioTracks(deps.Music.Keys()),
		server.WithHealthCheck(func(ctx context.Context) []preflight.Result {
			return deps.HealthCheck(ctx)
		}),
	)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Let running compositions finish up to the encode timeout, then cancel
	// them so their encoders are killed and their scratch files removed
	if !waitFor(handlers.Wait, cfg.EncodeTimeout) {
		logger.Warn("cancelling compositions still running at shutdown")
		cancelJobs()
		if !waitFor(handlers.Wait, jobCleanupGrace) {
			logger.Error("compositions did not stop after cancellation")
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}

// waitFor reports whether wait returned within timeout.
func waitFor(wait func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
