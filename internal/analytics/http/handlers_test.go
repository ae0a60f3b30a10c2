package analytichttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/clinicamia/findash/internal/analytics"
	"github.com/clinicamia/findash/internal/platform/httpx"
)

type stubService struct {
	mu          sync.Mutex
	report      analytics.KPIReport
	dashboard   analytics.ExecutiveDashboard
	trend       []analytics.TrendPoint
	departments []analytics.DepartmentRevenue
	liquidity   analytics.LiquidityIndicators
	err         error

	lastPeriod analytics.DateRange
	lastMonths int
	lastAsOf   time.Time
	calls      int
}

func (s *stubService) record(period analytics.DateRange, months int, asOf time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPeriod = period
	s.lastMonths = months
	s.lastAsOf = asOf
	s.calls++
}

func (s *stubService) GetKPIs(ctx context.Context, period analytics.DateRange, asOf time.Time) (analytics.KPIReport, error) {
	s.record(period, 0, asOf)
	return s.report, s.err
}

func (s *stubService) GetExecutiveDashboard(ctx context.Context, asOf time.Time) (analytics.ExecutiveDashboard, error) {
	s.record(analytics.DateRange{}, 0, asOf)
	return s.dashboard, s.err
}

func (s *stubService) GetTrend(ctx context.Context, months int, asOf time.Time) ([]analytics.TrendPoint, error) {
	s.record(analytics.DateRange{}, months, asOf)
	return s.trend, s.err
}

func (s *stubService) GetDepartments(ctx context.Context, period analytics.DateRange) ([]analytics.DepartmentRevenue, error) {
	s.record(period, 0, time.Time{})
	return s.departments, s.err
}

func (s *stubService) GetLiquidity(ctx context.Context, asOf time.Time) (analytics.LiquidityIndicators, error) {
	s.record(analytics.DateRange{}, 0, asOf)
	return s.liquidity, s.err
}

var fixedNow = time.Date(2025, 3, 18, 14, 5, 0, 0, time.UTC)

func newTestRouter(t *testing.T, svc DashboardService) http.Handler {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, time.UTC)
	h.WithNow(func() time.Time { return fixedNow })
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestKPIsEndpoint(t *testing.T) {
	svc := &stubService{report: analytics.KPIReport{
		Revenue:     analytics.RevenueSummary{Total: 1500, Count: 3},
		GrossMargin: 42.5,
		Unavailable: []string{analytics.LedgerPayroll},
	}}
	rec := get(t, newTestRouter(t, svc), "/finance/dashboard/kpis?start=2025-01-01&end=2025-01-31")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body analytics.KPIReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.InDelta(t, 1500, body.Revenue.Total, 1e-9)
	require.Equal(t, []string{analytics.LedgerPayroll}, body.Unavailable)

	require.True(t, svc.lastPeriod.Start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "2025-01-31", svc.lastPeriod.End.Format(dateLayout))
	require.True(t, svc.lastAsOf.Equal(fixedNow))
}

func TestKPIsDefaultsToMonthToDate(t *testing.T) {
	svc := &stubService{}
	rec := get(t, newTestRouter(t, svc), "/finance/dashboard/kpis")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2025-03-01", svc.lastPeriod.Start.Format(dateLayout))
	require.Equal(t, "2025-03-18", svc.lastPeriod.End.Format(dateLayout))
}

func TestKPIsRejectsBadRanges(t *testing.T) {
	cases := map[string]string{
		"inverted":   "/finance/dashboard/kpis?start=2025-02-01&end=2025-01-01",
		"unparsable": "/finance/dashboard/kpis?start=2025-02-30&end=2025-03-01",
		"half open":  "/finance/dashboard/kpis?start=2025-02-01",
		"garbage":    "/finance/dashboard/kpis?start=yesterday&end=today",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubService{}
			rec := get(t, newTestRouter(t, svc), target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			var problem httpx.ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			require.Equal(t, http.StatusBadRequest, problem.Status)
			require.Zero(t, svc.calls)
		})
	}
}

func TestCoreLedgerFailureIsServerError(t *testing.T) {
	svc := &stubService{err: fmt.Errorf("analytics: kpis: %w", errors.New("relation \"facturas\" is locked"))}
	rec := get(t, newTestRouter(t, svc), "/finance/dashboard/executive")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "facturas")
}

func TestServiceInvalidRangeIsBadRequest(t *testing.T) {
	svc := &stubService{err: fmt.Errorf("analytics: trend: %w", analytics.ErrInvalidRange)}
	rec := get(t, newTestRouter(t, svc), "/finance/dashboard/trend")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrendEndpoint(t *testing.T) {
	svc := &stubService{trend: []analytics.TrendPoint{{Month: "2025-03", Label: "mar 2025", Revenue: 10}}}
	router := newTestRouter(t, svc)

	rec := get(t, router, "/finance/dashboard/trend?months=6")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 6, svc.lastMonths)
	var points []analytics.TrendPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 1)

	rec = get(t, router, "/finance/dashboard/trend")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, svc.lastMonths)

	for _, bad := range []string{"0", "37", "twelve"} {
		rec = get(t, router, "/finance/dashboard/trend?months="+bad)
		require.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestLiquidityEndpointRendersNotApplicable(t *testing.T) {
	svc := &stubService{liquidity: analytics.CalculateLiquidity(1000, 500, 0)}
	rec := get(t, newTestRouter(t, svc), "/finance/dashboard/liquidity")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"current_ratio":"N/A"`)
	require.Contains(t, rec.Body.String(), `"working_capital":1500`)
}

func TestDepartmentsEndpoint(t *testing.T) {
	svc := &stubService{departments: analytics.BreakdownDepartments([]analytics.CategorySubtotal{
		{CategoryKey: analytics.CategoryImaging, Subtotal: 800, Count: 4},
	})}
	rec := get(t, newTestRouter(t, svc), "/finance/dashboard/departments?start=2025-03-01&end=2025-03-18")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Imagenología")
}

func TestKPICSVExportIsRateLimited(t *testing.T) {
	svc := &stubService{report: analytics.KPIReport{Revenue: analytics.RevenueSummary{Total: 250}}}
	router := newTestRouter(t, svc)
	target := "/finance/dashboard/kpis/export.csv?start=2025-01-01&end=2025-01-31"

	rec := get(t, router, target)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "kpis-2025-01-01_2025-01-31.csv")
	require.True(t, strings.HasPrefix(rec.Body.String(), "Metric,Value\n"))
	require.Contains(t, rec.Body.String(), "Revenue,250.00")

	for i := 1; i < exportLimit; i++ {
		require.Equal(t, http.StatusOK, get(t, router, target).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(t, router, target).Code)
}

func TestTrendCSVExport(t *testing.T) {
	svc := &stubService{trend: []analytics.TrendPoint{{Month: "2025-03", Label: "mar 2025", Revenue: 10, Expense: 4, Profit: 6}}}
	rec := get(t, newTestRouter(t, svc), "/finance/dashboard/trend/export.csv?months=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "2025-03,mar 2025,10.00,4.00,6.00")
}
