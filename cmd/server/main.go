package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transit-lookup/internal/api"
	"transit-lookup/internal/bookmarks"
	"transit-lookup/internal/catalog"
	"transit-lookup/internal/clock"
	"transit-lookup/internal/config"
	"transit-lookup/internal/db"
	"transit-lookup/internal/logging"
	"transit-lookup/internal/metrics"
	"transit-lookup/internal/store"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewStructuredLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logging.LogError(logger, "server stopped", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mcol := metrics.NewCollector(cfg.SearchLimit, cfg.RecentLimit)
	if cfg.MetricsAddr != "" {
		msrv := mcol.Serve(cfg.MetricsAddr, logger)
		defer shutdown(msrv, logger, "metrics")
	}

	// Resolve latest city database if CITY is set
	sqlDB, dbName, err := db.Connect(ctx, cfg.DatabaseURL, cfg.City)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return err
	}
	mcol.DBReachable(true)
	logging.LogOperation(logger, "database_connected", slog.String("database", dbName), slog.String("city", cfg.City))

	pool := db.NewPool(sqlDB, dbName)
	defer logging.SafeCloseWithLogging(pool, logger, "close_database")

	watcher := db.NewWatcher(pool, cfg.DatabaseURL, cfg.City, cfg.DBWatchInterval, logger, mcol)
	watcher.BeforeSwap(db.Migrate)
	watcher.Start(ctx)
	defer watcher.Stop()

	kv, closeKV, err := openStore(ctx, cfg, mcol, logger)
	if err != nil {
		return err
	}
	defer closeKV()

	source := db.NewCatalog(pool, mcol)
	svc := catalog.New(source, catalog.Options{
		DefaultArea:  cfg.DefaultArea,
		SearchLimit:  cfg.SearchLimit,
		JourneyLimit: cfg.JourneyLimit,
	}, mcol)
	bm := bookmarks.New(kv, cfg.RecentLimit)

	server := api.NewServer(svc, bm, source, mcol, logger, api.Options{
		RateLimitRPS: cfg.RateLimitRPS,
		Clock:        clock.RealClock{Location: cfg.Location},
	})
	defer server.Close()

	httpSrv := server.HTTPServer(cfg.HTTPAddr)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Block until context cancelled or the listener fails
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	shutdown(httpSrv, logger, "http")
	return nil
}

// openStore connects the bookmark store: a JetStream bucket when NATS_URL is
// set, process memory otherwise.
func openStore(ctx context.Context, cfg *config.Config, mcol *metrics.Collector, logger *slog.Logger) (store.KV, func(), error) {
	if cfg.NATSURL == "" {
		logger.Warn("NATS_URL not set, bookmarks are kept in memory")
		return store.NewMemoryKV(), func() {}, nil
	}
	kv, err := store.NewNATSKV(ctx, cfg.NATSURL, cfg.NATSKVBucket, mcol, logger)
	if err != nil {
		return nil, nil, err
	}
	return kv, func() { logging.SafeCloseWithLogging(kv, logger, "close_nats") }, nil
}

func shutdown(srv *http.Server, logger *slog.Logger, name string) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "server shutdown failed", err, slog.String("server", name))
	}
}
