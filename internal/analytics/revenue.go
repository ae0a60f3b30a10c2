package analytics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RevenueSummary compares invoiced revenue with the preceding period.
type RevenueSummary struct {
	Total         float64 `json:"total"`
	Count         int     `json:"count"`
	PreviousTotal float64 `json:"previous_total"`
	VariancePct   float64 `json:"variance_pct"`
}

// VariancePercent is the period-over-period change in percent, rounded to two decimals.
// A zero baseline yields zero.
func VariancePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return round2((current - previous) / previous * 100)
}

// SumRevenue totals the non-cancelled invoices issued inside the window.
func SumRevenue(records []Receivable, window DateRange) (float64, int) {
	var total float64
	var count int
	for _, rec := range records {
		if rec.Status == ReceivableCancelled || !window.Contains(rec.IssueDate) {
			continue
		}
		total += rec.TotalAmount
		count++
	}
	return total, count
}

// AnalyzeRevenue totals the period and compares it with the window of identical length
// immediately before it.
func (e *Engine) AnalyzeRevenue(ctx context.Context, period DateRange) (RevenueSummary, error) {
	if err := e.ready(); err != nil {
		return RevenueSummary{}, err
	}
	previous := period.Previous()

	var current, prior []Receivable
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.issuedReceivables(gctx, period)
		current = rows
		return err
	})
	g.Go(func() error {
		rows, err := e.issuedReceivables(gctx, previous)
		prior = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return RevenueSummary{}, fmt.Errorf("analytics: revenue: %w", err)
	}

	total, count := SumRevenue(current, period)
	previousTotal, _ := SumRevenue(prior, previous)
	return RevenueSummary{
		Total:         total,
		Count:         count,
		PreviousTotal: previousTotal,
		VariancePct:   VariancePercent(total, previousTotal),
	}, nil
}

func (e *Engine) issuedReceivables(ctx context.Context, window DateRange) ([]Receivable, error) {
	if window.End.Before(window.Start) {
		return nil, nil
	}
	return e.repo.Receivables(ctx, ReceivableFilter{Issued: &window, ExcludeCancelled: true})
}
