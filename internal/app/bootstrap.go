package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicamia/findash/internal/analytics"
	analyticsdb "github.com/clinicamia/findash/internal/analytics/db"
	"github.com/clinicamia/findash/internal/platform/cache"
	"github.com/clinicamia/findash/internal/platform/db"
)

// Deps holds the long-lived connections shared by the server, worker and CLI.
type Deps struct {
	Config   *Config
	Logger   *slog.Logger
	Location *time.Location
	Pool     *pgxpool.Pool
	Redis    *redis.Client
}

// Connect opens the PostgreSQL pool and the Redis client. A Redis outage is
// logged and tolerated because reports are served uncached without it.
func Connect(ctx context.Context, cfg *Config, logger *slog.Logger) (*Deps, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, db.Options{
		DSN:              cfg.PGDSN,
		AppName:          "findash",
		MaxConns:         cfg.PGMaxConns,
		StatementTimeout: cfg.PGStatementTimeout,
	})
	if err != nil {
		return nil, err
	}
	deps := &Deps{Config: cfg, Logger: logger, Location: loc, Pool: pool}

	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
	} else {
		deps.Redis = client
	}
	return deps, nil
}

// AnalyticsService wires the ledger repository, engine and cache.
func (d *Deps) AnalyticsService(fallbacks analytics.FallbackRecorder) *analytics.Service {
	engine := analytics.NewEngine(analyticsdb.New(d.Pool), d.EngineConfig(fallbacks))
	var c *analytics.Cache
	if d.Redis != nil {
		c = analytics.NewCache(d.Redis, d.Config.CacheTTL, d.Logger)
	}
	return analytics.NewService(engine, c)
}

// EngineConfig maps the runtime configuration onto the engine settings.
func (d *Deps) EngineConfig(fallbacks analytics.FallbackRecorder) analytics.EngineConfig {
	return analytics.EngineConfig{
		TopDebtors:  d.Config.TopDebtors,
		TrendMonths: d.Config.TrendMonths,
		Location:    d.Location,
		Locale:      d.Config.DashboardLocale,
		Logger:      d.Logger,
		Fallbacks:   fallbacks,
	}
}

// Readiness lists the dependency checks exposed on /readyz.
func (d *Deps) Readiness() map[string]Pinger {
	checks := map[string]Pinger{}
	if d.Pool != nil {
		checks["postgres"] = PingFunc(d.Pool.Ping)
	}
	if d.Redis != nil {
		checks["redis"] = PingFunc(func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() })
	}
	return checks
}

// Close releases the connections.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// AsynqRedisOpt derives the job queue connection from the Redis settings.
func (c *Config) AsynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}
