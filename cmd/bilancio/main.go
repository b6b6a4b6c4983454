package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/grid"
	"bilancio/internal/netstate"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		startFlag    = flag.String("start", "", "first month of the horizon, YYYY-MM (default: current month)")
		monthsFlag   = flag.Int("months", 0, "number of months to derive (default: HORIZON_MONTHS)")
		categoryFlag = flag.String("category", "", "category ID to edit; requires -month and -amount")
		monthFlag    = flag.Int("month", -1, "month index (0-based) of the cell to edit")
		amountFlag   = flag.String("amount", "", "new amount for the edited cell, e.g. 125.50")
	)
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build budget service", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	start := time.Now()
	if *startFlag != "" {
		start, err = time.Parse("2006-01", *startFlag)
		if err != nil {
			logger.Error("Invalid -start value, want YYYY-MM", "start", *startFlag, "error", err)
			os.Exit(1)
		}
	}
	horizon := cfg.HorizonMonths
	if *monthsFlag > 0 {
		horizon = *monthsFlag
	}

	g, err := svc.LoadGrid(ctx, start, horizon)
	if err != nil {
		logger.Error("Failed to derive budget grid", "error", err)
		os.Exit(1)
	}

	if *categoryFlag != "" {
		if err := applyEdit(ctx, svc, g, *categoryFlag, *monthFlag, *amountFlag); err != nil {
			logger.Error("Edit failed", "category", *categoryFlag, "error", err)
			os.Exit(1)
		}
		// Re-derive so the printout reflects the saved state.
		g, err = svc.LoadGrid(ctx, start, horizon)
		if err != nil {
			logger.Error("Failed to re-derive budget grid", "error", err)
			os.Exit(1)
		}
	}

	printGrid(g)
}

func buildService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services.BudgetService, func(), error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := backendCfg.Validate(); err != nil {
		return nil, nil, err
	}

	factory := backend.NewFactory(logger)
	result, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, nil, err
	}

	local, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("local cache: %w", err)
	}

	probe := netstate.NewProbe(netstate.ProbeConfig{
		URL:      cfg.ProbeURL,
		Interval: cfg.ProbeInterval,
	})
	go probe.Run(ctx)

	var events services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			events = amqpClient
		}
	}

	svc := services.NewBudgetService(result.Backend, local, probe, events, services.BudgetServiceOptions{
		Horizon:       cfg.HorizonMonths,
		FlushDebounce: cfg.FlushDebounce,
	})

	cleanup := func() {
		svc.Close()
		if amqpClient != nil {
			amqpClient.Close()
		}
		local.Close()
		if result.Cleanup != nil {
			result.Cleanup()
		}
	}
	return svc, cleanup, nil
}

func applyEdit(ctx context.Context, svc *services.BudgetService, g grid.Grid, categoryID string, monthIndex int, amount string) error {
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", amount, err)
	}

	d := grid.NewDraft(g)
	d, err = d.ApplyAmountChange(categoryID, monthIndex, core.Money{Cents: cents})
	if err != nil {
		return err
	}
	if err := svc.SaveAndWait(ctx, d); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func printGrid(g grid.Grid) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprint(w, "Category")
	for _, m := range g.Months {
		fmt.Fprintf(w, "\t%s", m.ID)
	}
	fmt.Fprintln(w)

	for _, row := range g.Rows {
		fmt.Fprint(w, row.Category.Label)
		for _, c := range row.Cells {
			fmt.Fprintf(w, "\t%.2f", c.Amount.Units())
			if row.Category.Rollover {
				fmt.Fprintf(w, " (+%.2f)", c.RolloverBalance.Units())
			}
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}
