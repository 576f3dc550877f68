package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/indicator-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/indicator-etl/internal/adapter/kafka"
	"github.com/couchcryptid/indicator-etl/internal/adapter/source"
	"github.com/couchcryptid/indicator-etl/internal/config"
	"github.com/couchcryptid/indicator-etl/internal/observability"
	"github.com/couchcryptid/indicator-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	fetcher, err := source.NewCachedFetcher(
		source.NewRouter(source.NewHTTPFetcher(cfg.FetchTimeout, logger)),
		cfg.FetchCacheSize,
		metrics,
	)
	if err != nil {
		logger.Error("failed to create fetcher", "error", err)
		os.Exit(1)
	}

	opts := []pipeline.Option{}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		opts = append(opts, pipeline.WithPublisher(writer))
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	engine := pipeline.New(fetcher, pipeline.Settings{
		Sources:         pipeline.SourcesFromConfig(cfg),
		GeoJSON:         cfg.GeoJSONSource,
		Parse:           pipeline.ParseOptionsFromConfig(cfg),
		Concurrency:     cfg.LoadConcurrency,
		RefreshInterval: cfg.RefreshInterval,
	}, logger, metrics, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the load/refresh loop.
	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.Error("engine error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
