package analytics

import (
	"time"
)

// ReceivableStatus enumerates patient invoice statuses.
type ReceivableStatus string

const (
	ReceivablePending   ReceivableStatus = "PENDING"
	ReceivablePartial   ReceivableStatus = "PARTIAL"
	ReceivablePaid      ReceivableStatus = "PAID"
	ReceivableCancelled ReceivableStatus = "CANCELLED"
)

// PayableStatus enumerates supplier invoice statuses.
type PayableStatus string

const (
	PayablePending PayableStatus = "PENDING"
	PayablePartial PayableStatus = "PARTIAL"
	PayablePaid    PayableStatus = "PAID"
)

// PayrollStatus enumerates payroll period lifecycle values.
type PayrollStatus string

const (
	PayrollOpen   PayrollStatus = "OPEN"
	PayrollClosed PayrollStatus = "CLOSED"
	PayrollPaid   PayrollStatus = "PAID"
)

// AssetStatus enumerates fixed asset states.
type AssetStatus string

const (
	AssetActive   AssetStatus = "ACTIVE"
	AssetDisposed AssetStatus = "DISPOSED"
)

// Receivable is a patient or payer invoice as seen by the engine.
type Receivable struct {
	ID                 int64
	IssueDate          time.Time
	DueDate            *time.Time
	TotalAmount        float64
	OutstandingBalance float64
	Status             ReceivableStatus
	DebtorID           int64
}

// Open reports whether the receivable still carries a collectible balance.
func (r Receivable) Open() bool {
	return (r.Status == ReceivablePending || r.Status == ReceivablePartial) && r.OutstandingBalance > 0
}

// Payable is a supplier invoice owed by the clinic.
type Payable struct {
	ID                 int64
	IssueDate          time.Time
	DueDate            time.Time
	TotalAmount        float64
	OutstandingBalance float64
	Status             PayableStatus
}

// Open reports whether the payable still carries an unpaid balance.
func (p Payable) Open() bool {
	return (p.Status == PayablePending || p.Status == PayablePartial) && p.OutstandingBalance > 0
}

// PayrollPeriod holds the cost of a single payroll run.
type PayrollPeriod struct {
	ID               int64
	StartDate        time.Time
	EndDate          time.Time
	TotalPayrollCost float64
	EmployeeCount    int
	Status           PayrollStatus
}

// InventoryItem is a pharmacy product with its stock level.
type InventoryItem struct {
	QuantityOnHand int64
	UnitCost       float64
	UnitPrice      float64
	Active         bool
}

// FixedAssetTotals aggregates fixed asset values for a status set.
type FixedAssetTotals struct {
	AcquisitionValue        float64
	AccumulatedDepreciation float64
	BookValue               float64
	Count                   int
}

// BankAccount carries a treasury balance.
type BankAccount struct {
	CurrentBalance float64
	Active         bool
}

// Debtor identifies a counterparty owing money to the clinic.
type Debtor struct {
	ID          int64
	DisplayName string
}

// CategorySubtotal is the revenue of invoice line items sharing a service category.
type CategorySubtotal struct {
	CategoryKey string
	Subtotal    float64
	Count       int
}

// ReceivableFilter scopes receivable queries.
type ReceivableFilter struct {
	OpenOnly         bool
	ExcludeCancelled bool
	Issued           *DateRange
	DueOnOrAfter     *time.Time
}

// PayableFilter scopes payable queries.
type PayableFilter struct {
	OpenOnly     bool
	Issued       *DateRange
	DueOnOrAfter *time.Time
}

// NormalizeReceivable clamps balances so that 0 <= outstanding <= total.
func NormalizeReceivable(r Receivable) Receivable {
	if r.OutstandingBalance < 0 {
		r.OutstandingBalance = 0
	}
	if r.TotalAmount < 0 {
		r.TotalAmount = 0
	}
	if r.OutstandingBalance > r.TotalAmount {
		r.OutstandingBalance = r.TotalAmount
	}
	return r
}

// NormalizePayable clamps a supplier balance; a missing total leaves the balance as reported.
func NormalizePayable(p Payable) Payable {
	if p.OutstandingBalance < 0 {
		p.OutstandingBalance = 0
	}
	if p.TotalAmount > 0 && p.OutstandingBalance > p.TotalAmount {
		p.OutstandingBalance = p.TotalAmount
	}
	return p
}
