package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTrendMonths is the lookback used when none is requested.
const DefaultTrendMonths = 12

// MaxTrendMonths bounds the lookback accepted from callers.
const MaxTrendMonths = 36

const trendConcurrency = 4

// TrendPoint conveys one month of revenue and expense movement.
type TrendPoint struct {
	Month    string  `json:"month"`
	Label    string  `json:"label"`
	FirstDay string  `json:"first_day"`
	LastDay  string  `json:"last_day"`
	Revenue  float64 `json:"revenue"`
	Expense  float64 `json:"expense"`
	Profit   float64 `json:"profit"`
}

// TrendMonthsEnding lists the first instant of each of the months months ending with
// the month containing asOf, oldest first.
func TrendMonthsEnding(asOf time.Time, months int) []time.Time {
	if months <= 0 {
		months = DefaultTrendMonths
	}
	current := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())
	out := make([]time.Time, months)
	for i := 0; i < months; i++ {
		out[i] = current.AddDate(0, i-months+1, 0)
	}
	return out
}

// BuildTrend computes a monthly revenue, expense and profit series.
// A failing payables read zeroes that month's expense instead of aborting the series.
func (e *Engine) BuildTrend(ctx context.Context, months int, asOf time.Time) ([]TrendPoint, error) {
	points, _, err := e.buildTrend(ctx, months, asOf)
	return points, err
}

func (e *Engine) buildTrend(ctx context.Context, months int, asOf time.Time) ([]TrendPoint, []string, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if months <= 0 {
		months = e.trendMonths
	}
	if months > MaxTrendMonths {
		return nil, nil, fmt.Errorf("%w: trend lookback %d exceeds %d months", ErrInvalidRange, months, MaxTrendMonths)
	}

	var deg degradations
	starts := TrendMonthsEnding(asOf, months)
	points := make([]TrendPoint, len(starts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(trendConcurrency)
	for i, start := range starts {
		g.Go(func() error {
			point, err := e.trendPoint(gctx, &deg, monthRange(start))
			if err != nil {
				return fmt.Errorf("analytics: trend %s: %w", start.Format("2006-01"), err)
			}
			points[i] = point
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return points, deg.list(), nil
}

func (e *Engine) trendPoint(ctx context.Context, deg *degradations, month DateRange) (TrendPoint, error) {
	receivables, err := e.issuedReceivables(ctx, month)
	if err != nil {
		return TrendPoint{}, err
	}
	revenue, _ := SumRevenue(receivables, month)

	payables := fetchOptional(ctx, func(ctx context.Context) ([]Payable, error) {
		return e.repo.Payables(ctx, PayableFilter{Issued: &month})
	})
	var expense float64
	for _, p := range resolve(e, deg, LedgerPayables, payables, []Payable(nil)) {
		if month.Contains(p.IssueDate) {
			expense += p.TotalAmount
		}
	}

	return TrendPoint{
		Month:    month.Start.Format("2006-01"),
		Label:    e.labels.Label(month.Start),
		FirstDay: month.Start.Format(dateLayout),
		LastDay:  month.End.Format(dateLayout),
		Revenue:  revenue,
		Expense:  expense,
		Profit:   revenue - expense,
	}, nil
}
