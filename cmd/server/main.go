package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/mintledger/service/app"
	"github.com/brojonat/mintledger/service/config"
	"github.com/brojonat/mintledger/service/metrics"
	natspkg "github.com/brojonat/mintledger/service/nats"
	"github.com/brojonat/mintledger/service/parser"
	"github.com/brojonat/mintledger/service/server"
)

func main() {
	// fails fast on missing or invalid config
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"token", cfg.Token,
		"backend", cfg.StoreBackend,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(nil) // default registry

	store, err := app.OpenStore(ctx, cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	rpcClient := app.NewRPC(cfg, metricsCollector, logger)
	logger.Info("initialized solana RPC client", "endpoint", app.EndpointLabel(cfg.RPCURL))

	var publisher parser.Publisher
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	pipeline, err := app.NewPipeline(cfg, store, rpcClient, publisher, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to build ingestion pipeline", "error", err)
		os.Exit(1)
	}

	httpServer := server.New(cfg.ServerAddr, cfg.RPCKey, store, pipeline.Monitor, metricsCollector, logger)

	// webhooks are served while history replays
	go func() {
		start := time.Now()
		stats, err := pipeline.Monitor.Bootstrap(ctx)
		if err != nil {
			logger.Error("bootstrap failed", "error", err)
			return
		}
		logger.Info("bootstrap complete",
			"seen", stats.Seen,
			"applied", stats.Applied,
			"duplicates", stats.Duplicates,
			"ignored", stats.Ignored,
			"failed", stats.Failed,
			"duration", time.Since(start),
		)
	}()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

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
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
