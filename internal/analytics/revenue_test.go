package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeRevenueExcludesCancelled(t *testing.T) {
	repo := &stubRepo{receivables: []Receivable{
		{ID: 1, IssueDate: date(2025, 1, 1), TotalAmount: 100, Status: ReceivablePaid, DebtorID: 1},
		{ID: 2, IssueDate: date(2025, 1, 15), TotalAmount: 50, OutstandingBalance: 50, Status: ReceivableCancelled, DebtorID: 1},
	}}
	engine := newTestEngine(t, repo, nil)

	summary, err := engine.AnalyzeRevenue(context.Background(), mustRange(t, "2025-01-01", "2025-01-31"))
	require.NoError(t, err)
	require.InDelta(t, 100, summary.Total, 1e-9)
	require.Equal(t, 1, summary.Count)
	require.Zero(t, summary.PreviousTotal)
	require.Zero(t, summary.VariancePct)
}

func TestAnalyzeRevenueComparesPreviousWindow(t *testing.T) {
	repo := &stubRepo{receivables: []Receivable{
		{ID: 1, IssueDate: date(2024, 11, 30), TotalAmount: 999, Status: ReceivablePaid},
		{ID: 2, IssueDate: date(2024, 12, 1), TotalAmount: 80, Status: ReceivablePaid},
		{ID: 3, IssueDate: date(2024, 12, 31).Add(23 * time.Hour), TotalAmount: 20, Status: ReceivablePending, OutstandingBalance: 20},
		{ID: 4, IssueDate: date(2025, 1, 31), TotalAmount: 150, Status: ReceivablePartial, OutstandingBalance: 10},
	}}
	engine := newTestEngine(t, repo, nil)

	summary, err := engine.AnalyzeRevenue(context.Background(), mustRange(t, "2025-01-01", "2025-01-31"))
	require.NoError(t, err)
	require.InDelta(t, 150, summary.Total, 1e-9)
	require.InDelta(t, 100, summary.PreviousTotal, 1e-9)
	require.InDelta(t, 50, summary.VariancePct, 1e-9)
}

func TestVariancePercent(t *testing.T) {
	require.Zero(t, VariancePercent(12345, 0))
	require.Zero(t, VariancePercent(0, 0))
	require.InDelta(t, 33.33, VariancePercent(4, 3), 1e-9)
	require.InDelta(t, -100, VariancePercent(0, 250), 1e-9)
}

func TestAnalyzeRevenuePropagatesCoreFailure(t *testing.T) {
	repo := &stubRepo{}
	boom := errors.New("connection reset")
	repo.fail("Receivables", boom)
	_, err := newTestEngine(t, repo, nil).AnalyzeRevenue(context.Background(), mustRange(t, "2025-01-01", "2025-01-31"))
	require.ErrorIs(t, err, boom)
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2025-01-01", "2025-01-31", time.UTC)
	require.NoError(t, err)
	require.Equal(t, 31, r.Days())
	require.True(t, r.Contains(date(2025, 1, 31).Add(23*time.Hour)))

	prev := r.Previous()
	require.True(t, prev.Start.Equal(date(2024, 12, 1)))
	require.True(t, prev.End.Before(r.Start))

	_, err = ParseDateRange("2025-02-01", "2025-01-01", time.UTC)
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = ParseDateRange("2025-13-01", "2025-01-01", time.UTC)
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = NewDateRange(time.Time{}, date(2025, 1, 1))
	require.ErrorIs(t, err, ErrInvalidRange)
}
