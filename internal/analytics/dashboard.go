package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// MonthSummary condenses the current month into headline figures.
type MonthSummary struct {
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
	Profit   float64 `json:"profit"`
	Margin   float64 `json:"margin"`
}

// YearSummary condenses the year to date.
type YearSummary struct {
	Revenue float64 `json:"revenue"`
	Profit  float64 `json:"profit"`
}

// ExecutiveDashboard composes every indicator shown to the finance directors.
type ExecutiveDashboard struct {
	AsOf         string              `json:"as_of"`
	MonthSummary MonthSummary        `json:"month_summary"`
	YearSummary  YearSummary         `json:"year_summary"`
	Month        KPIReport           `json:"month"`
	YearToDate   KPIReport           `json:"year_to_date"`
	Liquidity    LiquidityIndicators `json:"liquidity"`
	Trend        []TrendPoint        `json:"trend"`
	Departments  []DepartmentRevenue `json:"departments"`
	Unavailable  []string            `json:"unavailable"`
}

// DashboardDay truncates asOf to the start of its calendar day in the engine time zone.
func (e *Engine) DashboardDay(asOf time.Time) time.Time {
	loc := time.UTC
	if e != nil && e.loc != nil {
		loc = e.loc
	}
	return startOfDay(asOf.In(loc))
}

// ComputeExecutiveDashboard builds the month, year-to-date, trend, department and
// liquidity views for the calendar day containing asOf.
func (e *Engine) ComputeExecutiveDashboard(ctx context.Context, asOf time.Time) (ExecutiveDashboard, error) {
	if err := e.ready(); err != nil {
		return ExecutiveDashboard{}, err
	}
	day := e.DashboardDay(asOf)
	month := DateRange{Start: monthRange(day).Start, End: endOfDay(day)}
	ytd := DateRange{Start: time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, day.Location()), End: endOfDay(day)}

	var (
		deg         degradations
		monthly     KPIReport
		yearly      KPIReport
		liquidity   LiquidityIndicators
		trend       []TrendPoint
		departments []DepartmentRevenue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report, err := e.ComputeKPIs(gctx, month, day)
		monthly = report
		return err
	})
	g.Go(func() error {
		report, err := e.ComputeKPIs(gctx, ytd, day)
		yearly = report
		return err
	})
	g.Go(func() error {
		indicators, missing, err := e.computeLiquidity(gctx, day)
		liquidity = indicators
		deg.merge(missing)
		return err
	})
	g.Go(func() error {
		points, missing, err := e.buildTrend(gctx, e.trendMonths, day)
		trend = points
		deg.merge(missing)
		return err
	})
	g.Go(func() error {
		rows, err := e.DepartmentRevenue(gctx, month)
		departments = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return ExecutiveDashboard{}, fmt.Errorf("analytics: executive dashboard: %w", err)
	}
	deg.merge(monthly.Unavailable)
	deg.merge(yearly.Unavailable)

	expenses := monthly.Payables.TotalPaid + monthly.Payroll.Total
	return ExecutiveDashboard{
		AsOf: day.Format(dateLayout),
		MonthSummary: MonthSummary{
			Revenue:  monthly.Revenue.Total,
			Expenses: expenses,
			Profit:   monthly.GrossProfit,
			Margin:   monthly.GrossMargin,
		},
		YearSummary: YearSummary{
			Revenue: yearly.Revenue.Total,
			Profit:  yearly.GrossProfit,
		},
		Month:       monthly,
		YearToDate:  yearly,
		Liquidity:   liquidity,
		Trend:       trend,
		Departments: departments,
		Unavailable: deg.list(),
	}, nil
}
