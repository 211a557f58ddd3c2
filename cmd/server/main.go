package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/helius"
	"github.com/brojonat/soltrack/service/metrics"
	natspkg "github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/pricing"
	"github.com/brojonat/soltrack/service/server"
	txsync "github.com/brojonat/soltrack/service/sync"
	"github.com/brojonat/soltrack/service/valuation"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"wallet", cfg.WalletAddress,
	)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// Verify the store is reachable and the schema exists before serving
	opener := db.NewOpener(db.Options{Path: cfg.DBPath, DatabaseURL: cfg.DatabaseURL}, logger, m)
	if err := db.WithStore(context.Background(), opener, func(db.Store) error { return nil }); err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL != "" {
		logger.Info("using postgres store")
	} else {
		logger.Info("using sqlite store", "path", cfg.DBPath)
	}

	// Optional NATS publisher; sync works without it
	var publisher natspkg.Publisher
	var ssePublisher *server.SSEPublisher
	if cfg.NATSURL != "" {
		jsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, logger, m)
		if err != nil {
			logger.Warn("NATS unavailable, events will not be published", "error", err)
		} else {
			publisher = jsPublisher
			defer jsPublisher.Close()

			ssePublisher, err = server.NewSSEPublisher(cfg.NATSURL, logger)
			if err != nil {
				logger.Warn("failed to initialize SSE publisher", "error", err)
				ssePublisher = nil
			}
		}
	}

	source := helius.NewClient(cfg.HeliusBaseURL, cfg.HeliusAPIKey, httpClient, logger, m)
	engine, err := txsync.NewEngine(cfg, source, opener, publisher, logger, m)
	if err != nil {
		logger.Error("failed to create sync engine", "error", err)
		os.Exit(1)
	}

	// Quote source, optionally behind a Redis cache
	var quotes pricing.QuoteSource = pricing.NewDexScreener(cfg.DexScreenerBaseURL, cfg.PriceChunkSize, httpClient, logger, m)
	if cfg.RedisAddr != "" {
		cache, err := pricing.NewRedisCache(cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, prices will not be cached", "error", err)
		} else {
			defer cache.Close()
			quotes = pricing.NewCachedQuotes(quotes, cache, cfg.PriceCacheTTL, logger, m)
			logger.Info("price cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.PriceCacheTTL)
		}
	}
	rates := pricing.NewFrankfurter(cfg.FXBaseURL, cfg.FXFallbackRate, httpClient, logger, m)

	aggregator, err := valuation.NewAggregator(cfg, opener, quotes, rates, logger)
	if err != nil {
		logger.Error("failed to create valuation aggregator", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, opener, engine, aggregator, ssePublisher, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"nats_enabled", publisher != nil,
		"price_cache_enabled", cfg.RedisAddr != "",
		"reference_currency", cfg.ReferenceCurrency,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
