package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/acmewire/internal/app"
	"github.com/samvad-hq/acmewire/internal/config"
	"github.com/samvad-hq/acmewire/internal/logger"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "acmecheck failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr; stdout carries the JSON summary only.
	log, err := logger.InitWithOutput(cfg.LogLevel, zapcore.Lock(os.Stderr))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker, err := app.NewChecker(cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize checker", "error", err)
		return err
	}

	summary, runErr := checker.Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("unhealthy directories: %w", runErr)
	}
	return nil
}
