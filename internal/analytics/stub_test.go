package analytics

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type stubRepo struct {
	mu           sync.Mutex
	receivables  []Receivable
	payables     []Payable
	supplierPaid float64
	payroll      []PayrollPeriod
	inventory    []InventoryItem
	assets       FixedAssetTotals
	banks        []BankAccount
	debtors      map[int64]string
	lines        []CategorySubtotal
	errs         map[string]error
	calls        map[string]int
}

func (s *stubRepo) hit(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
	return s.errs[name]
}

func (s *stubRepo) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubRepo) fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[string]error)
	}
	s.errs[name] = err
}

func (s *stubRepo) Receivables(ctx context.Context, filter ReceivableFilter) ([]Receivable, error) {
	if err := s.hit("Receivables"); err != nil {
		return nil, err
	}
	var out []Receivable
	for _, rec := range s.receivables {
		if filter.OpenOnly && !rec.Open() {
			continue
		}
		if filter.ExcludeCancelled && rec.Status == ReceivableCancelled {
			continue
		}
		if filter.Issued != nil && !filter.Issued.Contains(rec.IssueDate) {
			continue
		}
		if filter.DueOnOrAfter != nil && (rec.DueDate == nil || rec.DueDate.Before(*filter.DueOnOrAfter)) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubRepo) Payables(ctx context.Context, filter PayableFilter) ([]Payable, error) {
	if err := s.hit("Payables"); err != nil {
		return nil, err
	}
	var out []Payable
	for _, p := range s.payables {
		if filter.OpenOnly && !p.Open() {
			continue
		}
		if filter.Issued != nil && !filter.Issued.Contains(p.IssueDate) {
			continue
		}
		if filter.DueOnOrAfter != nil && p.DueDate.Before(*filter.DueOnOrAfter) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) SupplierPaymentsTotal(ctx context.Context) (float64, error) {
	if err := s.hit("SupplierPaymentsTotal"); err != nil {
		return 0, err
	}
	return s.supplierPaid, nil
}

// PayrollPeriods ignores its arguments so the engine's own filtering is exercised.
func (s *stubRepo) PayrollPeriods(ctx context.Context, period DateRange, statuses []PayrollStatus) ([]PayrollPeriod, error) {
	if err := s.hit("PayrollPeriods"); err != nil {
		return nil, err
	}
	return s.payroll, nil
}

func (s *stubRepo) Inventory(ctx context.Context, activeOnly bool) ([]InventoryItem, error) {
	if err := s.hit("Inventory"); err != nil {
		return nil, err
	}
	return s.inventory, nil
}

func (s *stubRepo) FixedAssets(ctx context.Context, statuses []AssetStatus) (FixedAssetTotals, error) {
	if err := s.hit("FixedAssets"); err != nil {
		return FixedAssetTotals{}, err
	}
	return s.assets, nil
}

func (s *stubRepo) BankAccounts(ctx context.Context, activeOnly bool) ([]BankAccount, error) {
	if err := s.hit("BankAccounts"); err != nil {
		return nil, err
	}
	return s.banks, nil
}

func (s *stubRepo) LookupDebtor(ctx context.Context, id int64) (Debtor, error) {
	if err := s.hit("LookupDebtor"); err != nil {
		return Debtor{}, err
	}
	name, ok := s.debtors[id]
	if !ok {
		return Debtor{}, ErrDebtorNotFound
	}
	return Debtor{ID: id, DisplayName: name}, nil
}

func (s *stubRepo) InvoiceLineItemsByCategory(ctx context.Context, period DateRange) ([]CategorySubtotal, error) {
	if err := s.hit("InvoiceLineItemsByCategory"); err != nil {
		return nil, err
	}
	return s.lines, nil
}

type fallbackCounter struct {
	mu      sync.Mutex
	ledgers map[string]int
}

func (f *fallbackCounter) LedgerFallback(ledger string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ledgers == nil {
		f.ledgers = make(map[string]int)
	}
	f.ledgers[ledger]++
}

func (f *fallbackCounter) count(ledger string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ledgers[ledger]
}

func newTestEngine(t *testing.T, repo Repository, fallbacks FallbackRecorder) *Engine {
	t.Helper()
	return NewEngine(repo, EngineConfig{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Fallbacks: fallbacks,
	})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(t time.Time) *time.Time {
	return &t
}

func mustRange(t *testing.T, start, end string) DateRange {
	t.Helper()
	r, err := ParseDateRange(start, end, time.UTC)
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	return r
}
