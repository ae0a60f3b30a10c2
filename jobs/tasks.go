package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup recomputes the cached executive dashboard.
	TaskDashboardWarmup = "finance:dashboard_warmup"
	// DefaultWarmupCron runs the warmup every half hour.
	DefaultWarmupCron = "*/30 * * * *"
)

const dayLayout = "2006-01-02"

// DashboardWarmupPayload describes which day the warmup should precompute.
// An empty AsOf warms the current day in the dashboard time zone.
type DashboardWarmupPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewDashboardWarmupTask constructs the warmup task. A zero asOf targets the current day.
func NewDashboardWarmupTask(asOf time.Time) (*asynq.Task, error) {
	payload := DashboardWarmupPayload{}
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(dayLayout)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data), nil
}

func (p DashboardWarmupPayload) day(loc *time.Location, now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return now.In(loc), nil
	}
	day, err := time.ParseInLocation(dayLayout, p.AsOf, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("dashboard warmup: as_of %q: %w", p.AsOf, err)
	}
	return day, nil
}
