package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ReceivablesBlock is the receivables aging with the largest debtors.
type ReceivablesBlock struct {
	AgingReport
	TopDebtors []DebtorBalance `json:"top_debtors"`
}

// PayablesBlock is the payables aging with the amount paid to suppliers to date.
type PayablesBlock struct {
	AgingReport
	TotalPaid float64 `json:"total_paid"`
}

// PayrollBlock is the payroll cost realized inside the period.
type PayrollBlock struct {
	Total     float64 `json:"total"`
	Employees int     `json:"employees"`
	Periods   int     `json:"periods"`
}

// InventoryBlock values stock on hand at cost and at retail price.
type InventoryBlock struct {
	CostValue       float64 `json:"cost_value"`
	RetailValue     float64 `json:"retail_value"`
	PotentialMargin float64 `json:"potential_margin"`
	Items           int     `json:"items"`
}

// FixedAssetsBlock summarises active fixed assets.
type FixedAssetsBlock struct {
	AcquisitionValue        float64 `json:"acquisition_value"`
	AccumulatedDepreciation float64 `json:"accumulated_depreciation"`
	BookValue               float64 `json:"book_value"`
	Count                   int     `json:"count"`
}

// KPIReport is the full set of financial indicators for a period.
type KPIReport struct {
	Period      DateRange        `json:"period"`
	AsOf        time.Time        `json:"as_of"`
	Revenue     RevenueSummary   `json:"revenue"`
	Receivables ReceivablesBlock `json:"receivables"`
	Payables    PayablesBlock    `json:"payables"`
	Payroll     PayrollBlock     `json:"payroll"`
	Inventory   InventoryBlock   `json:"inventory"`
	FixedAssets FixedAssetsBlock `json:"fixed_assets"`
	GrossProfit float64          `json:"gross_profit"`
	GrossMargin float64          `json:"gross_margin"`
	Unavailable []string         `json:"unavailable"`
}

// emptyPayables is reported when the payables ledger cannot be read.
func emptyPayables() PayablesBlock {
	return PayablesBlock{AgingReport: AgingReport{Buckets: []AgingBucket{}}}
}

// GrossMargin is profit as a percentage of revenue, rounded to two decimals.
// Zero revenue yields zero.
func GrossMargin(profit, revenue float64) float64 {
	if revenue == 0 {
		return 0
	}
	return round2(profit / revenue * 100)
}

// ComputeKPIs aggregates every indicator for the period with open balances aged at asOf.
// Optional ledgers that fail are reported as zero blocks and listed in Unavailable.
func (e *Engine) ComputeKPIs(ctx context.Context, period DateRange, asOf time.Time) (KPIReport, error) {
	if err := e.ready(); err != nil {
		return KPIReport{}, err
	}
	period, err := NewDateRange(period.Start, period.End)
	if err != nil {
		return KPIReport{}, err
	}

	var (
		deg         degradations
		revenue     RevenueSummary
		receivables ReceivablesBlock
		payables    Outcome[PayablesBlock]
		payroll     Outcome[PayrollBlock]
		inventory   Outcome[InventoryBlock]
		assets      Outcome[FixedAssetsBlock]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := e.AnalyzeRevenue(gctx, period)
		revenue = summary
		return err
	})
	g.Go(func() error {
		block, err := e.receivablesBlock(gctx, asOf)
		receivables = block
		return err
	})
	g.Go(func() error {
		payables = fetchOptional(gctx, func(ctx context.Context) (PayablesBlock, error) {
			return e.payablesBlock(ctx, asOf)
		})
		return nil
	})
	g.Go(func() error {
		payroll = fetchOptional(gctx, func(ctx context.Context) (PayrollBlock, error) {
			return e.payrollBlock(ctx, period)
		})
		return nil
	})
	g.Go(func() error {
		inventory = fetchOptional(gctx, e.inventoryBlock)
		return nil
	})
	g.Go(func() error {
		assets = fetchOptional(gctx, e.fixedAssetsBlock)
		return nil
	})
	if err := g.Wait(); err != nil {
		return KPIReport{}, fmt.Errorf("analytics: kpis: %w", err)
	}

	report := KPIReport{
		Period:      period,
		AsOf:        asOf,
		Revenue:     revenue,
		Receivables: receivables,
		Payables:    resolve(e, &deg, LedgerPayables, payables, emptyPayables()),
		Payroll:     resolve(e, &deg, LedgerPayroll, payroll, PayrollBlock{}),
		Inventory:   resolve(e, &deg, LedgerInventory, inventory, InventoryBlock{}),
		FixedAssets: resolve(e, &deg, LedgerFixedAssets, assets, FixedAssetsBlock{}),
	}
	report.GrossProfit = report.Revenue.Total - (report.Payables.TotalPaid + report.Payroll.Total)
	report.GrossMargin = GrossMargin(report.GrossProfit, report.Revenue.Total)
	report.Unavailable = deg.list()
	return report, nil
}

func (e *Engine) receivablesBlock(ctx context.Context, asOf time.Time) (ReceivablesBlock, error) {
	rows, err := e.repo.Receivables(ctx, ReceivableFilter{OpenOnly: true})
	if err != nil {
		return ReceivablesBlock{}, fmt.Errorf("receivables: %w", err)
	}
	balances := receivableBalances(rows)
	top, err := ResolveTopDebtors(ctx, e.repo, rankAllDebtors(balances), e.topDebtors)
	if err != nil {
		return ReceivablesBlock{}, fmt.Errorf("debtors: %w", err)
	}
	return ReceivablesBlock{AgingReport: ClassifyAging(balances, asOf), TopDebtors: top}, nil
}

func (e *Engine) payablesBlock(ctx context.Context, asOf time.Time) (PayablesBlock, error) {
	var (
		rows []Payable
		paid float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = e.repo.Payables(gctx, PayableFilter{OpenOnly: true})
		return err
	})
	g.Go(func() error {
		var err error
		paid, err = e.repo.SupplierPaymentsTotal(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return PayablesBlock{}, err
	}
	return PayablesBlock{AgingReport: ClassifyAging(payableBalances(rows), asOf), TotalPaid: paid}, nil
}

var realizedPayroll = []PayrollStatus{PayrollClosed, PayrollPaid}

func (e *Engine) payrollBlock(ctx context.Context, period DateRange) (PayrollBlock, error) {
	rows, err := e.repo.PayrollPeriods(ctx, period, realizedPayroll)
	if err != nil {
		return PayrollBlock{}, err
	}
	var block PayrollBlock
	for _, p := range rows {
		if p.Status != PayrollClosed && p.Status != PayrollPaid {
			continue
		}
		if p.StartDate.Before(period.Start) || p.EndDate.After(period.End) {
			continue
		}
		block.Total += p.TotalPayrollCost
		block.Periods++
		if p.EmployeeCount > block.Employees {
			block.Employees = p.EmployeeCount
		}
	}
	return block, nil
}

func (e *Engine) inventoryBlock(ctx context.Context) (InventoryBlock, error) {
	rows, err := e.repo.Inventory(ctx, true)
	if err != nil {
		return InventoryBlock{}, err
	}
	var block InventoryBlock
	for _, item := range rows {
		if !item.Active || item.QuantityOnHand <= 0 {
			continue
		}
		qty := float64(item.QuantityOnHand)
		block.CostValue += qty * item.UnitCost
		block.RetailValue += qty * item.UnitPrice
		block.Items++
	}
	block.PotentialMargin = block.RetailValue - block.CostValue
	return block, nil
}

func (e *Engine) fixedAssetsBlock(ctx context.Context) (FixedAssetsBlock, error) {
	totals, err := e.repo.FixedAssets(ctx, []AssetStatus{AssetActive})
	if err != nil {
		return FixedAssetsBlock{}, err
	}
	return FixedAssetsBlock{
		AcquisitionValue:        totals.AcquisitionValue,
		AccumulatedDepreciation: totals.AccumulatedDepreciation,
		BookValue:               totals.BookValue,
		Count:                   totals.Count,
	}, nil
}
