package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// NotApplicable is the literal reported for ratios with a zero denominator.
const NotApplicable = "N/A"

// Ratio is a liquidity ratio that may be undefined.
type Ratio struct {
	value   float64
	defined bool
}

// RatioOf divides num by den, rounding to two decimals. A zero den yields an undefined ratio.
func RatioOf(num, den float64) Ratio {
	if den == 0 {
		return Ratio{}
	}
	return Ratio{value: round2(num / den), defined: true}
}

// Value returns the ratio and whether it is defined.
func (r Ratio) Value() (float64, bool) {
	return r.value, r.defined
}

// String renders the ratio the same way it is serialized.
func (r Ratio) String() string {
	if !r.defined {
		return NotApplicable
	}
	return strconv.FormatFloat(r.value, 'f', 2, 64)
}

// MarshalJSON emits a number, or "N/A" when undefined.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.defined {
		return json.Marshal(NotApplicable)
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON accepts a number or the "N/A" literal.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != NotApplicable {
			return fmt.Errorf("analytics: invalid ratio %q", s)
		}
		*r = Ratio{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Ratio{value: v, defined: true}
	return nil
}

// LiquidityIndicators measure short-term obligation coverage from current balances.
type LiquidityIndicators struct {
	Cash               float64 `json:"cash"`
	CurrentReceivables float64 `json:"current_receivables"`
	CurrentPayables    float64 `json:"current_payables"`
	WorkingCapital     float64 `json:"working_capital"`
	CurrentRatio       Ratio   `json:"current_ratio"`
	QuickRatio         Ratio   `json:"quick_ratio"`
}

// CalculateLiquidity derives working capital and ratios from the three balances.
func CalculateLiquidity(cash, currentReceivables, currentPayables float64) LiquidityIndicators {
	currentAssets := cash + currentReceivables
	return LiquidityIndicators{
		Cash:               cash,
		CurrentReceivables: currentReceivables,
		CurrentPayables:    currentPayables,
		WorkingCapital:     currentAssets - currentPayables,
		CurrentRatio:       RatioOf(currentAssets, currentPayables),
		QuickRatio:         RatioOf(cash, currentPayables),
	}
}

// ComputeLiquidity reads current balances and derives the liquidity indicators.
// Only documents not yet due at asOf count as current.
func (e *Engine) ComputeLiquidity(ctx context.Context, asOf time.Time) (LiquidityIndicators, error) {
	indicators, _, err := e.computeLiquidity(ctx, asOf)
	return indicators, err
}

func (e *Engine) computeLiquidity(ctx context.Context, asOf time.Time) (LiquidityIndicators, []string, error) {
	if err := e.ready(); err != nil {
		return LiquidityIndicators{}, nil, err
	}
	var (
		deg         degradations
		receivables []Receivable
		banks       Outcome[[]BankAccount]
		payables    Outcome[[]Payable]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.repo.Receivables(gctx, ReceivableFilter{OpenOnly: true, DueOnOrAfter: &asOf})
		receivables = rows
		return err
	})
	g.Go(func() error {
		banks = fetchOptional(gctx, func(ctx context.Context) ([]BankAccount, error) {
			return e.repo.BankAccounts(ctx, true)
		})
		return nil
	})
	g.Go(func() error {
		payables = fetchOptional(gctx, func(ctx context.Context) ([]Payable, error) {
			return e.repo.Payables(ctx, PayableFilter{OpenOnly: true, DueOnOrAfter: &asOf})
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return LiquidityIndicators{}, nil, fmt.Errorf("analytics: liquidity: %w", err)
	}

	var cash float64
	for _, acct := range resolve(e, &deg, LedgerBanks, banks, []BankAccount(nil)) {
		if acct.Active {
			cash += acct.CurrentBalance
		}
	}
	var currentReceivables float64
	for _, rec := range receivables {
		if rec.Open() && rec.DueDate != nil && !rec.DueDate.Before(asOf) {
			currentReceivables += rec.OutstandingBalance
		}
	}
	var currentPayables float64
	for _, p := range resolve(e, &deg, LedgerPayables, payables, []Payable(nil)) {
		if p.Open() && !p.DueDate.Before(asOf) {
			currentPayables += p.OutstandingBalance
		}
	}
	return CalculateLiquidity(cash, currentReceivables, currentPayables), deg.list(), nil
}
