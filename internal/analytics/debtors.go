package analytics

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultTopDebtors is the number of debtors reported when no limit is supplied.
const DefaultTopDebtors = 5

// DebtorBalance is a counterparty ranked by what it owes.
type DebtorBalance struct {
	DebtorID int64   `json:"debtor_id"`
	Debtor   string  `json:"debtor"`
	Balance  float64 `json:"balance"`
	Invoices int     `json:"invoices"`
}

// DebtorLookup resolves debtor identities to display names.
type DebtorLookup interface {
	LookupDebtor(ctx context.Context, id int64) (Debtor, error)
}

// RankDebtors groups balances by debtor and orders them by balance descending.
// Ties are broken by debtor id ascending. A limit of zero or less uses DefaultTopDebtors.
func RankDebtors(records []OpenBalance, limit int) []DebtorBalance {
	if limit <= 0 {
		limit = DefaultTopDebtors
	}
	ranked := rankAllDebtors(records)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// rankAllDebtors is RankDebtors without truncation.
func rankAllDebtors(records []OpenBalance) []DebtorBalance {
	lookup := make(map[int64]*DebtorBalance)
	for _, rec := range records {
		entry, ok := lookup[rec.DebtorID]
		if !ok {
			entry = &DebtorBalance{DebtorID: rec.DebtorID}
			lookup[rec.DebtorID] = entry
		}
		entry.Balance += rec.Amount
		entry.Invoices++
	}
	ranked := make([]DebtorBalance, 0, len(lookup))
	for _, entry := range lookup {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Balance != ranked[j].Balance {
			return ranked[i].Balance > ranked[j].Balance
		}
		return ranked[i].DebtorID < ranked[j].DebtorID
	})
	return ranked
}

// ResolveTopDebtors attaches display names to the ranked debtors and keeps the first
// limit that resolve. Orphaned references are skipped and the next debtor takes the slot.
// Lookups run concurrently, one window of limit debtors at a time.
func ResolveTopDebtors(ctx context.Context, lookup DebtorLookup, ranked []DebtorBalance, limit int) ([]DebtorBalance, error) {
	if limit <= 0 {
		limit = DefaultTopDebtors
	}
	resolved := make([]DebtorBalance, 0, limit)
	for start := 0; start < len(ranked) && len(resolved) < limit; start += limit {
		end := start + limit
		if end > len(ranked) {
			end = len(ranked)
		}
		window := ranked[start:end]
		names := make([]*Debtor, len(window))

		g, gctx := errgroup.WithContext(ctx)
		for i := range window {
			g.Go(func() error {
				debtor, err := lookup.LookupDebtor(gctx, window[i].DebtorID)
				if errors.Is(err, ErrDebtorNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				names[i] = &debtor
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, name := range names {
			if name == nil {
				continue
			}
			entry := window[i]
			entry.Debtor = name.DisplayName
			resolved = append(resolved, entry)
			if len(resolved) == limit {
				break
			}
		}
	}
	return resolved, nil
}
