// Package main provides the entry point for the vidforge worker.
// It consumes task ids from the work queue and runs the generation
// pipeline for each one. Intended for deployments where the API and
// workers scale separately over Kafka.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vidforge/vidforge/internal/bootstrap"
	"github.com/vidforge/vidforge/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting vidforge worker",
		slog.String("provider", cfg.Provider),
		slog.Int("pool_size", cfg.WorkerPoolSize),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Duration("poll_timeout", cfg.PollTimeout),
		slog.Bool("kafka_enabled", cfg.KafkaEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	go deps.Reaper.Run(ctx)

	err = deps.Consumer.Consume(ctx, func(ctx context.Context, taskID string) error {
		return deps.Pool.Submit(ctx, taskID)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer stopped: %w", err)
	}

	logger.Info("draining in-flight tasks...")
	deps.Pool.Wait()

	logger.Info("worker stopped gracefully")
	return nil
}
