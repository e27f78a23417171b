// Package app wires storage, cache and domain services for the server and
// the worker.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/purchasing"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/alert_repo"
	"stockledger/internal/infrastructure/storage/postgres/forecast_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/purchase_repo"
	"stockledger/pkg/logger"
	"stockledger/pkg/numerator"
)

// App holds long-lived dependencies. Close releases them.
type App struct {
	Config    *config.Config
	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Metrics   *metrics.Metrics

	Products  *ledger_repo.ProductRepo
	Forecasts *cache.ForecastCache
	Listener  *cache.ForecastListener

	Ledger    *ledger.Service
	Alerts    *alerts.Service
	Purchases *purchasing.Service

	redis *redis.Client
}

// New connects to PostgreSQL, applies migrations and builds every service.
// Redis is optional: without REDIS_ADDR forecasts are read straight from
// the database.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	txm := postgres.NewTxManager(pool, cfg.StatementTimeout)
	if err := postgres.Migrate(ctx, txm); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{
		Config:    cfg,
		Pool:      pool,
		TxManager: txm,
		Metrics:   metrics.New(),
	}
	a.Metrics.RegisterPool(pool)

	var redisClient cache.RedisClient
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx, "redis unavailable, forecast cache will fall back to postgres", "addr", cfg.RedisAddr, "error", err)
		}
		redisClient = a.redis
	}

	a.Products = ledger_repo.NewProductRepo(txm)
	a.Forecasts, err = cache.NewForecastCache(forecast_repo.NewForecastRepo(txm), redisClient, cfg.ForecastCacheTTL)
	if err != nil {
		a.Close()
		return nil, err
	}
	if redisClient != nil {
		a.Listener = cache.NewForecastListener(pool.Pool, a.Forecasts)
	}

	outbox := postgres.NewOutboxPublisher(txm)

	a.Alerts = alerts.NewService(alert_repo.NewAlertRepo(txm), a.Products, a.Forecasts, txm,
		alerts.WithPublisher(outbox),
		alerts.WithMetrics(a.Metrics),
		alerts.WithHighWaterMark(cfg.OverstockHighWaterMark),
	)
	a.Ledger = ledger.NewService(ledger_repo.NewLedgerRepo(txm, a.Products), txm,
		ledger.WithPublisher(outbox),
		ledger.WithMetrics(a.Metrics),
	)
	a.Ledger.AddObserver(a.Alerts)

	a.Purchases = purchasing.NewService(
		purchase_repo.NewOrderRepo(txm),
		a.Products,
		a.Ledger,
		a.Alerts,
		numerator.New(pool, nil),
		txm,
	)
	return a, nil
}

// Close stops the forecast listener and closes connections.
func (a *App) Close() {
	if a.Listener != nil {
		a.Listener.Stop()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.Pool.Close()
}
