package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/config"
	"bilancio/internal/netstate"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting bilancio-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	local, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize local cache", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer local.Close()

	probe := netstate.NewProbe(netstate.ProbeConfig{
		URL:      cfg.ProbeURL,
		Interval: cfg.ProbeInterval,
	})

	// Initialize AMQP client for consuming save events (optional)
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	svc := services.NewBudgetService(result.Backend, local, probe, nil, services.BudgetServiceOptions{
		Horizon:       cfg.HorizonMonths,
		FlushDebounce: cfg.FlushDebounce,
	})
	defer svc.Close()

	refresher := services.NewRefreshProcessor(svc, services.RefreshProcessorConfig{
		PollInterval: time.Hour,
		MaxAge:       cfg.CategoryMaxAge,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return probe.Run(gctx)
	})

	g.Go(func() error {
		if err := refresher.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		return refresher.Stop(stopCtx)
	})

	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeBudgetSaved(gctx, func(msg *amqp.BudgetSavedMessage) error {
				slog.InfoContext(gctx, "Budget saved elsewhere, refreshing category cache",
					"years", msg.Years,
					"records", msg.RecordCount)
				return svc.RefreshCategories(gctx, 0, true)
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
