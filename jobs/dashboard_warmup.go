package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clinicamia/findash/internal/analytics"
	jobmetrics "github.com/clinicamia/findash/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const warmupTimeout = 45 * time.Second

// DashboardWarmer recomputes reports and overwrites their cached copies.
type DashboardWarmer interface {
	RefreshExecutiveDashboard(ctx context.Context, asOf time.Time) (analytics.ExecutiveDashboard, error)
	RefreshKPIs(ctx context.Context, period analytics.DateRange, asOf time.Time) (analytics.KPIReport, error)
}

// DashboardWarmupJob precomputes the executive dashboard and the month-to-date KPIs
// so the first request of the day is served from the cache.
type DashboardWarmupJob struct {
	Warmer   DashboardWarmer
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(warmer DashboardWarmer, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardWarmupJob{
		Warmer:   warmer,
		Location: loc,
		Logger:   logger,
		Metrics:  metrics,
		clock:    time.Now,
	}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Warmer == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	day, err := payload.day(j.location(), j.now())
	if err != nil {
		j.logger().Warn("discard warmup task", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	logger := j.logger().With(
		slog.String("run_id", uuid.NewString()),
		slog.String("as_of", day.Format(dayLayout)),
	)
	logger.Info("starting dashboard warmup")
	started := time.Now()

	err = j.warm(ctx, logger, day)
	if err != nil {
		logger.Error("dashboard warmup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed dashboard warmup", slog.Duration("duration", time.Since(started)))
	return tracker.End(nil)
}

func (j *DashboardWarmupJob) warm(ctx context.Context, logger *slog.Logger, day time.Time) error {
	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	dash, err := j.Warmer.RefreshExecutiveDashboard(warmCtx, day)
	if err != nil {
		return err
	}
	j.metrics().AddWarmed("executive", len(dash.Unavailable) > 0)

	// Same range the HTTP handler defaults to, so the cache key matches.
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	period, err := analytics.ParseDateRange(first.Format(dayLayout), day.Format(dayLayout), j.location())
	if err != nil {
		return err
	}
	report, err := j.Warmer.RefreshKPIs(warmCtx, period, day)
	if err != nil {
		return err
	}
	j.metrics().AddWarmed("kpis", len(report.Unavailable) > 0)

	if len(dash.Unavailable) > 0 {
		logger.Info("warmed with degraded ledgers", slog.Any("unavailable", dash.Unavailable))
	}
	return nil
}

func (j *DashboardWarmupJob) location() *time.Location {
	if j.Location != nil {
		return j.Location
	}
	return time.UTC
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DashboardWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
