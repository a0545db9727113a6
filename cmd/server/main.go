// Package main provides the entry point for the vidforge API server.
//
// When Kafka is not configured the process also runs the worker side
// in-process, consuming from the shared queue.
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

	"github.com/vidforge/vidforge/internal/bootstrap"
	"github.com/vidforge/vidforge/internal/config"
	"github.com/vidforge/vidforge/internal/server"
)

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

	logger.Info("starting vidforge API",
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.Provider),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.Bool("kafka_enabled", cfg.KafkaEnabled()),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.TaskService, logger)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Without Kafka the worker loop shares this process.
	if !cfg.KafkaEnabled() {
		go deps.Reaper.Run(ctx)
		go func() {
			err := deps.Consumer.Consume(ctx, func(ctx context.Context, taskID string) error {
				return deps.Pool.Submit(ctx, taskID)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("consumer stopped: %w", err)
			}
		}()
		logger.Info("in-process worker started",
			slog.Int("pool_size", cfg.WorkerPoolSize),
		)
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Let in-flight tasks write their terminal state.
	deps.Pool.Wait()

	logger.Info("server stopped gracefully")
	return nil
}
