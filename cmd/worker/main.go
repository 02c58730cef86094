// Package main provides the entry point for the clip pipeline worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/viralclips/internal/bootstrap"
	"github.com/maauso/viralclips/internal/config"
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
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting viralclips worker",
		slog.String("config", cfg.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, "viralclips-worker", logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.Close(shutdownCtx); err != nil {
			logger.Error("failed to close dependencies", slog.String("error", err.Error()))
		}
	}()

	worker, err := deps.NewWorker()
	if err != nil {
		return fmt.Errorf("initialize worker: %w", err)
	}
	defer func() { _ = worker.Consumer.Close() }()

	if worker.Scheduler != nil {
		go worker.Scheduler.Run(ctx)
	} else {
		logger.Info("retention scheduler disabled on this replica")
	}

	// Start blocks until the signal context is cancelled and in-flight
	// tasks have finished.
	if err := worker.Consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer stopped: %w", err)
	}

	logger.Info("worker stopped gracefully")
	return nil
}
