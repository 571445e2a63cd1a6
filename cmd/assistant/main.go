package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grist-assistant/internal/adapter/api"
	"grist-assistant/internal/adapter/grist"
	"grist-assistant/internal/adapter/llm"
	"grist-assistant/internal/infra/config"
	"grist-assistant/internal/infra/logger"
	"grist-assistant/internal/infra/tracer"
	"grist-assistant/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Document backend
	backend := grist.NewBackend(cfg.Grist.BaseURL, cfg.Grist.Timeout, log)
	factory := grist.NewFactory(backend, cfg.Agent.QueryRowLimit, log)

	// 4. LLM provider
	provider, err := llm.NewProvider(cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 5. Confirmations
	confirmations := usecase.NewConfirmationRegistry(cfg.Confirmation.TTL, log)
	if cfg.Confirmation.SweepSchedule != "" {
		sweeper, err := usecase.NewSweeper(cfg.Confirmation.SweepSchedule, confirmations, log)
		if err != nil {
			return fmt.Errorf("sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	// 6. HTTP API
	server := api.NewServer(cfg, factory, provider, confirmations, log)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	log.Info("grist-assistant started",
		"addr", server.Addr(),
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"grist", cfg.Grist.BaseURL,
	)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("grist-assistant stopped")
	return nil
}
