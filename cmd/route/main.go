package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	badgeradapter "github.com/couchcryptid/meter-route-service/internal/adapter/badger"
	httpadapter "github.com/couchcryptid/meter-route-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/meter-route-service/internal/adapter/kafka"
	"github.com/couchcryptid/meter-route-service/internal/adapter/persistence"
	"github.com/couchcryptid/meter-route-service/internal/adapter/routefile"
	"github.com/couchcryptid/meter-route-service/internal/config"
	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/observability"
	"github.com/couchcryptid/meter-route-service/internal/route"
	"github.com/couchcryptid/meter-route-service/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := badgeradapter.Open(cfg.StoreDir, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error("session store close error", "error", err)
		}
	}()
	store := session.NewStore(kv, logger)

	client := persistence.NewClient(cfg.PersistenceURL, cfg.PersistenceTimeout, logger, metrics)

	meters, history, err := loadRoute(ctx, cfg, client, logger, metrics)
	if err != nil {
		return err
	}

	// Initialize notifier (feature-flagged via NOTIFY_ENABLED / KAFKA_BROKERS).
	var notifier route.Notifier
	if cfg.NotifyEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		notifier = writer
		logger.Info("submission notifications enabled", "topic", cfg.KafkaSubmissionTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("submission notifications disabled")
	}

	sess, err := route.New(route.Options{
		RouteID:      cfg.RouteID,
		User:         cfg.SessionUser,
		TargetPeriod: cfg.TargetPeriod,
	}, meters, store, history, client, notifier, logger, metrics)
	if err != nil {
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, sess, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// meterSource is the remote side of route loading, the persistence client in
// production.
type meterSource interface {
	FetchRouteMeters(ctx context.Context, routeID string) ([]domain.MeterRecord, error)
	persistence.HistoryFetcher
}

// loadRoute returns the route's meters and the history source refreshes use.
// Both come from the route file when one is configured, otherwise from the
// persistence service through the history cache. Submissions always go to
// the persistence service.
func loadRoute(ctx context.Context, cfg *config.Config, remote meterSource, logger *slog.Logger,
	metrics *observability.Metrics,
) ([]domain.MeterRecord, route.HistorySource, error) {
	if cfg.RouteFile != "" {
		dataset, err := routefile.Load(cfg.RouteFile)
		if dataset == nil {
			return nil, nil, err
		}
		if err != nil {
			logger.Warn("route file has rejected rows", "error", err)
		}
		meters, err := dataset.FetchRouteMeters(ctx, cfg.RouteID)
		if err != nil {
			return nil, nil, fmt.Errorf("load route meters from file: %w", err)
		}
		logger.Info("route loaded from file", "path", cfg.RouteFile, "meters", len(meters))
		return meters, dataset, nil
	}

	meters, err := remote.FetchRouteMeters(ctx, cfg.RouteID)
	if err != nil {
		return nil, nil, fmt.Errorf("load route meters: %w", err)
	}
	history := persistence.NewCachedHistory(remote, cfg.HistoryCacheSize, cfg.HistoryCacheTTL, metrics)
	logger.Info("route loaded from persistence service", "route_id", cfg.RouteID, "meters", len(meters),
		"history_cache_size", cfg.HistoryCacheSize, "history_cache_ttl", cfg.HistoryCacheTTL)
	return meters, history, nil
}
