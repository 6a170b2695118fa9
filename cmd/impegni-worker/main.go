package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	appamqp "impegni/internal/amqp"
	"impegni/internal/config"
	"impegni/internal/ledger"
	lgoogle "impegni/internal/ledger/google"
	lmemory "impegni/internal/ledger/memory"
	applog "impegni/internal/log"
	"impegni/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: "impegni-worker",
	})
	applog.SetDefault(logger)

	logger.Info("Starting impegni-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ledger backend: Google Sheets when configured, in-memory otherwise.
	var writer ledger.AdjustmentWriter
	if cfg.LedgerSpreadsheetID != "" {
		client, err := lgoogle.NewClient(ctx, lgoogle.Options{
			SpreadsheetID:   cfg.LedgerSpreadsheetID,
			SheetName:       cfg.LedgerSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets ledger", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets ledger initialized",
			"spreadsheet_id", cfg.LedgerSpreadsheetID,
			"sheet", cfg.LedgerSheetName)
	} else {
		writer = lmemory.New()
		logger.Info("Ledger export disabled - no LEDGER_SPREADSHEET_ID provided, using in-memory sink")
	}

	amqpClient, err := appamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(writer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeAdjustments(gctx, func(msg *appamqp.AdjustmentMessage) error {
			return exportWorker.HandleAdjustmentMessage(gctx, msg)
		})
	})

	logger.Info("Worker started", "queue", cfg.AMQPQueue)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
