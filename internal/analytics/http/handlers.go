package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/clinicamia/findash/internal/analytics"
	"github.com/clinicamia/findash/internal/analytics/export"
	"github.com/clinicamia/findash/internal/platform/httpx"
)

const (
	dateLayout            = "2006-01-02"
	defaultRequestTimeout = 20 * time.Second
)

// DashboardService defines the report contract used by the handler.
type DashboardService interface {
	GetKPIs(ctx context.Context, period analytics.DateRange, asOf time.Time) (analytics.KPIReport, error)
	GetExecutiveDashboard(ctx context.Context, asOf time.Time) (analytics.ExecutiveDashboard, error)
	GetTrend(ctx context.Context, months int, asOf time.Time) ([]analytics.TrendPoint, error)
	GetDepartments(ctx context.Context, period analytics.DateRange) ([]analytics.DepartmentRevenue, error)
	GetLiquidity(ctx context.Context, asOf time.Time) (analytics.LiquidityIndicators, error)
}

// Handler serves the executive financial dashboard endpoints.
type Handler struct {
	logger   *slog.Logger
	service  DashboardService
	validate *validator.Validate
	loc      *time.Location
	timeout  time.Duration
	csvPool  sync.Pool
	inflight singleflight.Group
	now      func() time.Time
}

// NewHandler constructs the dashboard HTTP handler. Dates in query strings are read in loc.
func NewHandler(logger *slog.Logger, service DashboardService, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		loc:      loc,
		timeout:  defaultRequestTimeout,
		now:      time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// WithTimeout bounds every report computation.
func (h *Handler) WithTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

type rangeQuery struct {
	Start string `validate:"required,datetime=2006-01-02"`
	End   string `validate:"required,datetime=2006-01-02"`
}

type trendQuery struct {
	Months int `validate:"min=1,max=36"`
}

func (h *Handler) handleKPIs(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	period, err := h.parseRange(r, asOf)
	if err != nil {
		h.fail(w, "parse kpi range", err)
		return
	}
	report, err := h.kpis(r.Context(), period, asOf)
	if err != nil {
		h.fail(w, "load kpis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExecutive(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	key := "executive:" + h.day(asOf)
	value, err := h.load(r.Context(), key, func(ctx context.Context) (interface{}, error) {
		return h.service.GetExecutiveDashboard(ctx, asOf)
	})
	if err != nil {
		h.fail(w, "load executive dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, value.(analytics.ExecutiveDashboard))
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	months, err := h.parseMonths(r)
	if err != nil {
		h.fail(w, "parse trend months", err)
		return
	}
	points, err := h.trend(r.Context(), months, asOf)
	if err != nil {
		h.fail(w, "load trend", err)
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	period, err := h.parseRange(r, asOf)
	if err != nil {
		h.fail(w, "parse department range", err)
		return
	}
	key := "departments:" + rangeToken(period)
	value, err := h.load(r.Context(), key, func(ctx context.Context) (interface{}, error) {
		return h.service.GetDepartments(ctx, period)
	})
	if err != nil {
		h.fail(w, "load departments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, value.([]analytics.DepartmentRevenue))
}

func (h *Handler) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	key := "liquidity:" + h.day(asOf)
	value, err := h.load(r.Context(), key, func(ctx context.Context) (interface{}, error) {
		return h.service.GetLiquidity(ctx, asOf)
	})
	if err != nil {
		h.fail(w, "load liquidity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, value.(analytics.LiquidityIndicators))
}

func (h *Handler) handleKPICSV(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	period, err := h.parseRange(r, asOf)
	if err != nil {
		h.fail(w, "parse kpi range", err)
		return
	}
	report, err := h.kpis(r.Context(), period, asOf)
	if err != nil {
		h.fail(w, "load kpis", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteKPICSV(buf, report); err != nil {
		h.fail(w, "write kpi csv", err)
		return
	}
	filename := fmt.Sprintf("kpis-%s_%s.csv", period.Start.Format(dateLayout), period.End.Format(dateLayout))
	h.streamCSV(w, filename, buf.Bytes())
}

func (h *Handler) handleTrendCSV(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	months, err := h.parseMonths(r)
	if err != nil {
		h.fail(w, "parse trend months", err)
		return
	}
	points, err := h.trend(r.Context(), months, asOf)
	if err != nil {
		h.fail(w, "load trend", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteTrendCSV(buf, points); err != nil {
		h.fail(w, "write trend csv", err)
		return
	}
	h.streamCSV(w, "trend-"+h.day(asOf)+".csv", buf.Bytes())
}

func (h *Handler) kpis(ctx context.Context, period analytics.DateRange, asOf time.Time) (analytics.KPIReport, error) {
	key := "kpis:" + rangeToken(period) + ":" + h.day(asOf)
	value, err := h.load(ctx, key, func(ctx context.Context) (interface{}, error) {
		return h.service.GetKPIs(ctx, period, asOf)
	})
	if err != nil {
		return analytics.KPIReport{}, err
	}
	return value.(analytics.KPIReport), nil
}

func (h *Handler) trend(ctx context.Context, months int, asOf time.Time) ([]analytics.TrendPoint, error) {
	key := "trend:" + strconv.Itoa(months) + ":" + h.day(asOf)
	value, err := h.load(ctx, key, func(ctx context.Context) (interface{}, error) {
		return h.service.GetTrend(ctx, months, asOf)
	})
	if err != nil {
		return nil, err
	}
	return value.([]analytics.TrendPoint), nil
}

// load collapses concurrent identical requests into a single computation.
// The shared computation runs detached from any single caller's cancellation.
func (h *Handler) load(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	resultChan := h.inflight.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()
		return fn(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		return res.Val, res.Err
	}
}

// parseRange reads start and end. When both are omitted the month to date is used.
func (h *Handler) parseRange(r *http.Request, asOf time.Time) (analytics.DateRange, error) {
	q := rangeQuery{
		Start: strings.TrimSpace(r.URL.Query().Get("start")),
		End:   strings.TrimSpace(r.URL.Query().Get("end")),
	}
	if q.Start == "" && q.End == "" {
		today := asOf.In(h.loc)
		q.Start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, h.loc).Format(dateLayout)
		q.End = today.Format(dateLayout)
	}
	if err := h.validate.Struct(q); err != nil {
		return analytics.DateRange{}, httpx.Invalid(describeValidation(err))
	}
	period, err := analytics.ParseDateRange(q.Start, q.End, h.loc)
	if err != nil {
		return analytics.DateRange{}, httpx.Invalid(err)
	}
	return period, nil
}

// parseMonths returns zero when months is omitted so the service default applies.
func (h *Handler) parseMonths(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("months"))
	if raw == "" {
		return 0, nil
	}
	months, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httpx.Invalid(fmt.Errorf("months must be an integer, got %q", raw))
	}
	if err := h.validate.Struct(trendQuery{Months: months}); err != nil {
		return 0, httpx.Invalid(describeValidation(err))
	}
	return months, nil
}

func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "datetime":
			parts = append(parts, fmt.Sprintf("%s must be formatted as %s", field, fe.Param()))
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s must be between 1 and %d", field, analytics.MaxTrendMonths))
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, analytics.ErrInvalidRange) && !errors.Is(err, httpx.ErrValidation) {
		err = httpx.Invalid(err)
	}
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Debug(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) streamCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(data); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) day(t time.Time) string {
	return t.In(h.loc).Format(dateLayout)
}

func rangeToken(r analytics.DateRange) string {
	return r.Start.Format(time.RFC3339) + "_" + r.End.Format(time.RFC3339)
}
