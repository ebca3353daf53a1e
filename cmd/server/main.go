// Package main provides the API server entry point for the crowdsale
// engine.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdsale-engine/internal/adapter"
	"github.com/crowdsale-engine/internal/api"
	"github.com/crowdsale-engine/internal/config"
	"github.com/crowdsale-engine/internal/logging"
	"github.com/crowdsale-engine/internal/sale"
	"github.com/crowdsale-engine/internal/storage"
	"github.com/crowdsale-engine/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Crowdsale engine starting")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	store := storage.NewSaleRepository(postgres)
	payouts := storage.NewPayoutRepository(postgres)
	payments := adapter.NewLedgerPaymentSink(payouts, logger)

	// ClickHouse is optional; without it events go to the log only
	notifiers := []sale.Notifier{sale.NewLogNotifier(logger)}
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, event analytics disabled")
	} else {
		defer clickhouse.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := clickhouse.EnsureSchema(ctx); err != nil {
			cancel()
			logger.WithError(err).Fatal("Failed to create ClickHouse schema")
		}
		cancel()
		notifiers = append(notifiers, storage.NewEventRepository(clickhouse, logger))
	}

	clock := sale.SystemClock{}
	engine := sale.NewEngine(store, payments, sale.NewMultiNotifier(notifiers...), logger)
	status := sale.NewStatusService(store)
	statusCache := storage.NewStatusCache(redis, cfg.Cache.TTL)

	server := api.NewServer(
		&api.ServerConfig{
			Host:              cfg.Server.Host,
			Port:              cfg.Server.Port,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		engine,
		status,
		statusCache,
		clock,
	)

	// Background finalizer
	workerCtx, stopWorker := context.WithCancel(context.Background())
	finalizer := worker.NewFinalizer(store, engine, clock, cfg.Finalizer.Interval, logger)
	go finalizer.Run(workerCtx)

	go func() {
		logger.WithFields(map[string]interface{}{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		}).Info("HTTP server listening")
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("HTTP server stopped")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	stopWorker()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
