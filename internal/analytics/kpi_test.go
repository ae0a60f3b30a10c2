package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func clinicLedger() *stubRepo {
	return &stubRepo{
		receivables: []Receivable{
			{ID: 1, IssueDate: date(2025, 1, 5), DueDate: datePtr(date(2025, 2, 4)), TotalAmount: 1000, OutstandingBalance: 400, Status: ReceivablePartial, DebtorID: 10},
			{ID: 2, IssueDate: date(2025, 1, 20), TotalAmount: 600, Status: ReceivablePaid, DebtorID: 11},
			{ID: 3, IssueDate: date(2024, 11, 2), DueDate: datePtr(date(2024, 12, 2)), TotalAmount: 300, OutstandingBalance: 300, Status: ReceivablePending, DebtorID: 11},
			{ID: 4, IssueDate: date(2025, 1, 9), TotalAmount: 200, OutstandingBalance: 200, Status: ReceivableCancelled, DebtorID: 12},
		},
		payables: []Payable{
			{ID: 1, IssueDate: date(2025, 1, 3), DueDate: date(2025, 1, 15), TotalAmount: 250, OutstandingBalance: 250, Status: PayablePending},
			{ID: 2, IssueDate: date(2025, 1, 10), DueDate: date(2025, 2, 10), TotalAmount: 100, Status: PayablePaid},
		},
		supplierPaid: 90,
		payroll: []PayrollPeriod{
			{ID: 1, StartDate: date(2025, 1, 1), EndDate: date(2025, 1, 15), TotalPayrollCost: 150, EmployeeCount: 12, Status: PayrollPaid},
			{ID: 2, StartDate: date(2025, 1, 16), EndDate: date(2025, 1, 31), TotalPayrollCost: 160, EmployeeCount: 14, Status: PayrollClosed},
			{ID: 3, StartDate: date(2025, 1, 16), EndDate: date(2025, 1, 31), TotalPayrollCost: 999, EmployeeCount: 40, Status: PayrollOpen},
			{ID: 4, StartDate: date(2024, 12, 16), EndDate: date(2025, 1, 2), TotalPayrollCost: 999, EmployeeCount: 40, Status: PayrollPaid},
		},
		inventory: []InventoryItem{
			{QuantityOnHand: 10, UnitCost: 2, UnitPrice: 3.5, Active: true},
			{QuantityOnHand: 4, UnitCost: 10, UnitPrice: 12, Active: true},
			{QuantityOnHand: 0, UnitCost: 99, UnitPrice: 99, Active: true},
			{QuantityOnHand: 7, UnitCost: 99, UnitPrice: 99},
		},
		assets:  FixedAssetTotals{AcquisitionValue: 5000, AccumulatedDepreciation: 1200, BookValue: 3800, Count: 3},
		debtors: map[int64]string{10: "Nueva EPS", 11: "Colsanitas"},
	}
}

func TestComputeKPIs(t *testing.T) {
	engine := newTestEngine(t, clinicLedger(), nil)
	report, err := engine.ComputeKPIs(context.Background(), mustRange(t, "2025-01-01", "2025-01-31"), date(2025, 1, 31))
	require.NoError(t, err)

	require.InDelta(t, 1600, report.Revenue.Total, 1e-9)
	require.Equal(t, 2, report.Revenue.Count)

	require.InDelta(t, 700, report.Receivables.Total, 1e-9)
	require.Equal(t, 2, report.Receivables.Count)
	require.InDelta(t, 400, report.Receivables.Bucket(BucketCurrent).Amount, 1e-9)
	require.InDelta(t, 300, report.Receivables.Bucket(Bucket31To60).Amount, 1e-9)
	require.Equal(t, []DebtorBalance{
		{DebtorID: 10, Debtor: "Nueva EPS", Balance: 400, Invoices: 1},
		{DebtorID: 11, Debtor: "Colsanitas", Balance: 300, Invoices: 1},
	}, report.Receivables.TopDebtors)

	require.InDelta(t, 250, report.Payables.Total, 1e-9)
	require.InDelta(t, 250, report.Payables.Bucket(Bucket1To30).Amount, 1e-9)
	require.InDelta(t, 90, report.Payables.TotalPaid, 1e-9)

	require.Equal(t, PayrollBlock{Total: 310, Employees: 14, Periods: 2}, report.Payroll)
	require.Equal(t, InventoryBlock{CostValue: 60, RetailValue: 83, PotentialMargin: 23, Items: 2}, report.Inventory)
	require.Equal(t, FixedAssetsBlock{AcquisitionValue: 5000, AccumulatedDepreciation: 1200, BookValue: 3800, Count: 3}, report.FixedAssets)

	require.InDelta(t, 1200, report.GrossProfit, 1e-9)
	require.InDelta(t, 75, report.GrossMargin, 1e-9)
	require.Empty(t, report.Unavailable)
}

func TestComputeKPIsDegradesMissingPayables(t *testing.T) {
	repo := clinicLedger()
	repo.fail("Payables", ErrDataUnavailable)
	counter := &fallbackCounter{}

	report, err := newTestEngine(t, repo, counter).ComputeKPIs(context.Background(), mustRange(t, "2025-01-01", "2025-01-31"), date(2025, 1, 31))
	require.NoError(t, err)
	require.Equal(t, []string{LedgerPayables}, report.Unavailable)
	require.Equal(t, 1, counter.count(LedgerPayables))

	raw, err := json.Marshal(report.Payables)
	require.NoError(t, err)
	require.JSONEq(t, `{"total":0,"count":0,"aging":[],"total_paid":0}`, string(raw))
	require.InDelta(t, 1600-310, report.GrossProfit, 1e-9)
}

func TestComputeKPIsDegradesEveryOptionalLedger(t *testing.T) {
	repo := clinicLedger()
	for _, name := range []string{"SupplierPaymentsTotal", "PayrollPeriods", "Inventory", "FixedAssets"} {
		repo.fail(name, errors.New(name+" unavailable"))
	}
	report, err := newTestEngine(t, repo, nil).ComputeKPIs(context.Background(), mustRange(t, "2025-01-01", "2025-01-31"), date(2025, 1, 31))
	require.NoError(t, err)
	require.Equal(t, []string{LedgerFixedAssets, LedgerInventory, LedgerPayables, LedgerPayroll}, report.Unavailable)
	require.Equal(t, PayrollBlock{}, report.Payroll)
	require.Equal(t, InventoryBlock{}, report.Inventory)
	require.Equal(t, FixedAssetsBlock{}, report.FixedAssets)
	require.InDelta(t, 1600, report.GrossProfit, 1e-9)
	require.InDelta(t, 100, report.GrossMargin, 1e-9)
}

func TestComputeKPIsRejectsInvertedRange(t *testing.T) {
	repo := clinicLedger()
	period := DateRange{Start: date(2025, 2, 1), End: date(2025, 1, 1)}
	_, err := newTestEngine(t, repo, nil).ComputeKPIs(context.Background(), period, date(2025, 2, 1))
	require.ErrorIs(t, err, ErrInvalidRange)
	require.Zero(t, repo.callCount("Receivables"))
}

func TestComputeKPIsPropagatesCoreFailure(t *testing.T) {
	repo := clinicLedger()
	repo.fail("LookupDebtor", errors.New("directory offline"))
	_, err := newTestEngine(t, repo, nil).ComputeKPIs(context.Background(), mustRange(t, "2025-01-01", "2025-01-31"), date(2025, 1, 31))
	require.Error(t, err)
}

func TestGrossMarginZeroRevenue(t *testing.T) {
	require.Zero(t, GrossMargin(-500, 0))
	require.InDelta(t, -25, GrossMargin(-50, 200), 1e-9)
}
