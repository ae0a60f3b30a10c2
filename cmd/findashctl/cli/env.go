package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clinicamia/findash/internal/analytics"
	"github.com/clinicamia/findash/internal/app"
)

// ReportService computes reports on demand.
type ReportService interface {
	GetKPIs(ctx context.Context, period analytics.DateRange, asOf time.Time) (analytics.KPIReport, error)
	GetExecutiveDashboard(ctx context.Context, asOf time.Time) (analytics.ExecutiveDashboard, error)
	GetTrend(ctx context.Context, months int, asOf time.Time) ([]analytics.TrendPoint, error)
}

// JobQueue enqueues and inspects background jobs.
type JobQueue interface {
	Trigger(ctx context.Context, name string, asOf time.Time) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// CacheBumper invalidates every cached report.
type CacheBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// Env resolves the backends the commands talk to.
type Env interface {
	Reports(ctx context.Context) (ReportService, error)
	Cache(ctx context.Context) (CacheBumper, error)
	Queue(ctx context.Context) (JobQueue, error)
	Location() *time.Location
	Now() time.Time
	Close()
}

// runtimeEnv connects lazily using the process configuration.
type runtimeEnv struct {
	mu      sync.Mutex
	cfg     *app.Config
	deps    *app.Deps
	service *analytics.Service
	queue   *JobsCLI
	loc     *time.Location
}

// NewEnv returns the environment used by the findashctl binary.
func NewEnv() Env {
	return &runtimeEnv{}
}

func (e *runtimeEnv) config() (*app.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	e.cfg, e.loc = cfg, loc
	return cfg, nil
}

func (e *runtimeEnv) connect(ctx context.Context) (*analytics.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.service != nil {
		return e.service, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	deps, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	e.deps = deps
	e.service = deps.AnalyticsService(nil)
	return e.service, nil
}

func (e *runtimeEnv) Reports(ctx context.Context) (ReportService, error) {
	return e.connect(ctx)
}

func (e *runtimeEnv) Cache(ctx context.Context) (CacheBumper, error) {
	svc, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	if svc.Cache() == nil {
		return nil, errors.New("cache: redis is not reachable")
	}
	return svc.Cache(), nil
}

func (e *runtimeEnv) Queue(ctx context.Context) (JobQueue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue != nil {
		return e.queue, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	e.queue = NewJobsCLI(cfg.AsynqRedisOpt())
	return e.queue, nil
}

func (e *runtimeEnv) Location() *time.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.config(); err != nil || e.loc == nil {
		return time.UTC
	}
	return e.loc
}

func (e *runtimeEnv) Now() time.Time {
	return time.Now()
}

func (e *runtimeEnv) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue != nil {
		_ = e.queue.Close()
		e.queue = nil
	}
	if e.deps != nil {
		e.deps.Close()
		e.deps = nil
	}
}
