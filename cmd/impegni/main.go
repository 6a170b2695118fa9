package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appamqp "impegni/internal/amqp"
	"impegni/internal/config"
	"impegni/internal/fx"
	apphttp "impegni/internal/http"
	applog "impegni/internal/log"
	"impegni/internal/services"
	"impegni/internal/storage"
	"impegni/internal/storage/memory"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: "impegni",
	})
	applog.SetDefault(logger)

	logger.Info("Starting impegni server")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	var (
		commitments services.CommitmentStore
		terms       services.TermStore
		payments    services.PaymentStore
		adjustments services.AdjustmentStore
	)

	switch cfg.DataBackend {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		commitments, terms, payments, adjustments = repo, repo, repo, repo
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	default:
		store := memory.New()
		commitments, terms, payments, adjustments = store, store, store, store
		logger.Info("Initialized memory backend")
	}

	// FX rates: env-configured table behind an optional Redis cache.
	var rates fx.RateSource = fx.NewStaticRates(cfg.BaseCurrency, cfg.ParseFXRates())
	if cfg.RedisAddr != "" {
		cached := fx.NewCachedRates(cfg.RedisAddr, rates, cfg.FXCacheTTL)
		defer cached.Close()
		rates = cached
		logger.Info("FX rate cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.FXCacheTTL)
	}

	// AMQP publisher for the audit export pipeline (optional).
	var publisher services.AdjustmentPublisher
	if cfg.AMQPURL != "" {
		client, err := appamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, adjustment events will not be published", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	amounts := services.NewAmountResolver(rates)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Commitments: commitments,
		Terms:       terms,
		Payments:    payments,
		Adjustments: adjustments,
		Lifecycle:   services.NewLifecycleService(terms, payments),
		Reassign:    services.NewReassignmentService(terms, payments, adjustments, publisher),
		Recorder:    services.NewPaymentService(commitments, terms, payments, amounts, cfg.BaseCurrency),
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting impegni server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
