package analytics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, repo Repository) (*Service, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := NewCache(client, time.Minute, logger)
	return NewService(NewEngine(repo, EngineConfig{Logger: logger}), cache), client
}

func TestGetKPIsCaches(t *testing.T) {
	repo := clinicLedger()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()
	period := mustRange(t, "2025-01-01", "2025-01-31")
	asOf := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)

	report, err := svc.GetKPIs(ctx, period, asOf)
	require.NoError(t, err)
	require.InDelta(t, 1600, report.Revenue.Total, 1e-9)
	calls := repo.callCount("Receivables")
	require.Positive(t, calls)

	// Later the same day the cached report is served.
	cached, err := svc.GetKPIs(ctx, period, asOf.Add(3*time.Hour))
	require.NoError(t, err)
	require.Equal(t, calls, repo.callCount("Receivables"))
	require.Equal(t, report.Receivables.TopDebtors, cached.Receivables.TopDebtors)
	require.InDelta(t, 75, cached.GrossMargin, 1e-9)

	_, err = svc.Cache().Bump(ctx)
	require.NoError(t, err)
	repo.receivables = append(repo.receivables, Receivable{ID: 9, IssueDate: date(2025, 1, 30), TotalAmount: 400, Status: ReceivablePaid})
	refreshed, err := svc.GetKPIs(ctx, period, asOf)
	require.NoError(t, err)
	require.InDelta(t, 2000, refreshed.Revenue.Total, 1e-9)
	require.Greater(t, repo.callCount("Receivables"), calls)
}

func TestGetLiquidityRoundTripsNotApplicable(t *testing.T) {
	repo := &stubRepo{banks: []BankAccount{{CurrentBalance: 1000, Active: true}}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.GetLiquidity(ctx, date(2025, 4, 1))
	require.NoError(t, err)
	second, err := svc.GetLiquidity(ctx, date(2025, 4, 1))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, NotApplicable, second.CurrentRatio.String())
	require.Equal(t, 1, repo.callCount("BankAccounts"))
}

func TestGetTrendAndDepartments(t *testing.T) {
	repo := &stubRepo{lines: []CategorySubtotal{{CategoryKey: CategorySurgery, Subtotal: 1200, Count: 2}}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	points, err := svc.GetTrend(ctx, 0, date(2025, 6, 10))
	require.NoError(t, err)
	require.Len(t, points, DefaultTrendMonths)
	_, err = svc.GetTrend(ctx, 0, date(2025, 6, 10))
	require.NoError(t, err)
	require.Equal(t, DefaultTrendMonths, repo.callCount("Receivables"))

	_, err = svc.GetTrend(ctx, 40, date(2025, 6, 10))
	require.ErrorIs(t, err, ErrInvalidRange)

	rows, err := svc.GetDepartments(ctx, mustRange(t, "2025-06-01", "2025-06-30"))
	require.NoError(t, err)
	require.Equal(t, []DepartmentRevenue{{Key: CategorySurgery, Category: "Cirugías", Revenue: 1200, Count: 2}}, rows)

	_, err = svc.GetDepartments(ctx, DateRange{Start: date(2025, 6, 2), End: date(2025, 6, 1)})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestServiceWithoutCache(t *testing.T) {
	repo := clinicLedger()
	svc := NewService(newTestEngine(t, repo, nil), nil)
	dash, err := svc.GetExecutiveDashboard(context.Background(), date(2025, 1, 31))
	require.NoError(t, err)
	require.Equal(t, "2025-01-31", dash.AsOf)
	before := repo.callCount("Receivables")
	_, err = svc.GetExecutiveDashboard(context.Background(), date(2025, 1, 31))
	require.NoError(t, err)
	require.Greater(t, repo.callCount("Receivables"), before)
}

func TestCacheVersionAndBump(t *testing.T) {
	svc, client := newTestService(t, &stubRepo{})
	ctx := context.Background()
	cache := svc.Cache()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "kpi", "x")
	require.NoError(t, err)
	require.Equal(t, "findash:kpi:x:v1", key)

	sub := client.Subscribe(ctx, BumpChannel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	ver, err = cache.Bump(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", msg.Payload)
}

func TestListenForInvalidationAdoptsNewerVersion(t *testing.T) {
	svc, client := newTestService(t, &stubRepo{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cache := svc.Cache()

	_, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.ListenForInvalidation(ctx, ""))

	require.NoError(t, client.Publish(ctx, BumpChannel, "7").Err())
	require.Eventually(t, func() bool {
		ver, err := cache.Version(ctx)
		return err == nil && ver == 7
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(ctx, BumpChannel, "3").Err())
	require.NoError(t, client.Publish(ctx, BumpChannel, "refresh").Err())
	require.Eventually(t, func() bool {
		ver, err := cache.Version(ctx)
		return err == nil && ver == 8
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNilCacheIsInert(t *testing.T) {
	var cache *Cache
	ctx := context.Background()
	ver, err := cache.Bump(ctx)
	require.NoError(t, err)
	require.Zero(t, ver)
	require.NoError(t, cache.ListenForInvalidation(ctx, ""))
	key, err := cache.BuildKey(ctx, "trend", "12")
	require.NoError(t, err)
	require.Equal(t, "findash:trend:12", key)
}
