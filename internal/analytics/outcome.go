package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Optional sub-ledgers that may be absent from a deployment.
const (
	LedgerPayables    = "payables"
	LedgerPayroll     = "payroll"
	LedgerInventory   = "inventory"
	LedgerFixedAssets = "fixed_assets"
	LedgerBanks       = "bank_accounts"
)

// Outcome is the result of reading an optional sub-ledger.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Available reports whether the read succeeded.
func (o Outcome[T]) Available() bool {
	return o.Err == nil
}

// Or returns the value when available and fallback otherwise.
func (o Outcome[T]) Or(fallback T) T {
	if o.Err != nil {
		return fallback
	}
	return o.Value
}

func fetchOptional[T any](ctx context.Context, fn func(context.Context) (T, error)) Outcome[T] {
	value, err := fn(ctx)
	return Outcome[T]{Value: value, Err: err}
}

// degradations collects the optional ledgers that fell back to their defaults
// during a single computation.
type degradations struct {
	mu      sync.Mutex
	ledgers map[string]struct{}
}

func (d *degradations) add(ledger string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ledgers == nil {
		d.ledgers = make(map[string]struct{})
	}
	d.ledgers[ledger] = struct{}{}
}

func (d *degradations) merge(ledgers []string) {
	for _, l := range ledgers {
		d.add(l)
	}
}

func (d *degradations) list() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.ledgers))
	for l := range d.ledgers {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// resolve maps a failed optional read to its zero default, recording the fallback.
func resolve[T any](e *Engine, deg *degradations, ledger string, o Outcome[T], fallback T) T {
	if o.Available() {
		return o.Value
	}
	if errors.Is(o.Err, context.Canceled) {
		return fallback
	}
	level := slog.LevelWarn
	if errors.Is(o.Err, ErrDataUnavailable) {
		level = slog.LevelInfo
	}
	e.log().Log(context.Background(), level, "ledger fallback", slog.String("ledger", ledger), slog.Any("error", o.Err))
	if e.fallbacks != nil {
		e.fallbacks.LedgerFallback(ledger)
	}
	if deg != nil {
		deg.add(ledger)
	}
	return fallback
}
