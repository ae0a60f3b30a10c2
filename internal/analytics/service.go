package analytics

import (
	"context"
	"log/slog"
	"time"
)

// Repository exposes the read-only ledger queries the engine relies on.
type Repository interface {
	Receivables(ctx context.Context, filter ReceivableFilter) ([]Receivable, error)
	Payables(ctx context.Context, filter PayableFilter) ([]Payable, error)
	SupplierPaymentsTotal(ctx context.Context) (float64, error)
	PayrollPeriods(ctx context.Context, period DateRange, statuses []PayrollStatus) ([]PayrollPeriod, error)
	Inventory(ctx context.Context, activeOnly bool) ([]InventoryItem, error)
	FixedAssets(ctx context.Context, statuses []AssetStatus) (FixedAssetTotals, error)
	BankAccounts(ctx context.Context, activeOnly bool) ([]BankAccount, error)
	LookupDebtor(ctx context.Context, id int64) (Debtor, error)
	InvoiceLineItemsByCategory(ctx context.Context, period DateRange) ([]CategorySubtotal, error)
}

// FallbackRecorder counts sub-ledgers replaced by their zero default.
type FallbackRecorder interface {
	LedgerFallback(ledger string)
}

// EngineConfig tunes the aggregation engine.
type EngineConfig struct {
	TopDebtors  int
	TrendMonths int
	Location    *time.Location
	Locale      string
	Logger      *slog.Logger
	Fallbacks   FallbackRecorder
}

// Engine computes financial KPIs from raw ledger records.
type Engine struct {
	repo        Repository
	logger      *slog.Logger
	fallbacks   FallbackRecorder
	labels      MonthLabeler
	loc         *time.Location
	topDebtors  int
	trendMonths int
}

// NewEngine wires a Repository with the engine defaults.
func NewEngine(repo Repository, cfg EngineConfig) *Engine {
	e := &Engine{
		repo:        repo,
		logger:      cfg.Logger,
		fallbacks:   cfg.Fallbacks,
		labels:      NewMonthLabeler(cfg.Locale),
		loc:         cfg.Location,
		topDebtors:  cfg.TopDebtors,
		trendMonths: cfg.TrendMonths,
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.topDebtors <= 0 {
		e.topDebtors = DefaultTopDebtors
	}
	if e.trendMonths <= 0 {
		e.trendMonths = DefaultTrendMonths
	}
	return e
}

// Location returns the time zone used to normalize calendar days.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// TrendMonths returns the default trend window.
func (e *Engine) TrendMonths() int {
	return e.trendMonths
}

func (e *Engine) ready() error {
	if e == nil || e.repo == nil {
		return ErrRepositoryMissing
	}
	return nil
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// Service coordinates engine computations with the cache layer.
type Service struct {
	engine *Engine
	cache  *Cache
}

// NewService wires an Engine with a Cache helper. A nil cache disables caching.
func NewService(engine *Engine, cache *Cache) *Service {
	return &Service{engine: engine, cache: cache}
}

// Engine exposes the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Cache exposes the cache helper, which may be nil.
func (s *Service) Cache() *Cache {
	return s.cache
}

// GetKPIs resolves the KPI report for the period with balances aged at the asOf day.
func (s *Service) GetKPIs(ctx context.Context, period DateRange, asOf time.Time) (KPIReport, error) {
	day := s.engine.DashboardDay(asOf)
	return fetchCached(ctx, s.cache, keyKPI(period, day), func(ctx context.Context) (KPIReport, error) {
		return s.engine.ComputeKPIs(ctx, period, day)
	})
}

// GetExecutiveDashboard resolves the executive dashboard for the asOf day.
func (s *Service) GetExecutiveDashboard(ctx context.Context, asOf time.Time) (ExecutiveDashboard, error) {
	day := s.engine.DashboardDay(asOf)
	return fetchCached(ctx, s.cache, keyDashboard(day), func(ctx context.Context) (ExecutiveDashboard, error) {
		return s.engine.ComputeExecutiveDashboard(ctx, day)
	})
}

// GetTrend resolves the monthly trend ending at the asOf month.
func (s *Service) GetTrend(ctx context.Context, months int, asOf time.Time) ([]TrendPoint, error) {
	if err := s.engine.ready(); err != nil {
		return nil, err
	}
	if months <= 0 {
		months = s.engine.TrendMonths()
	}
	day := s.engine.DashboardDay(asOf)
	return fetchCached(ctx, s.cache, keyTrend(months, day), func(ctx context.Context) ([]TrendPoint, error) {
		return s.engine.BuildTrend(ctx, months, day)
	})
}

// GetDepartments resolves the department revenue breakdown for the period.
func (s *Service) GetDepartments(ctx context.Context, period DateRange) ([]DepartmentRevenue, error) {
	if _, err := NewDateRange(period.Start, period.End); err != nil {
		return nil, err
	}
	return fetchCached(ctx, s.cache, keyDepartments(period), func(ctx context.Context) ([]DepartmentRevenue, error) {
		return s.engine.DepartmentRevenue(ctx, period)
	})
}

// GetLiquidity resolves the liquidity indicators for the asOf day.
func (s *Service) GetLiquidity(ctx context.Context, asOf time.Time) (LiquidityIndicators, error) {
	day := s.engine.DashboardDay(asOf)
	return fetchCached(ctx, s.cache, keyLiquidity(day), func(ctx context.Context) (LiquidityIndicators, error) {
		return s.engine.ComputeLiquidity(ctx, day)
	})
}

// RefreshKPIs recomputes the KPI report and replaces any cached copy.
func (s *Service) RefreshKPIs(ctx context.Context, period DateRange, asOf time.Time) (KPIReport, error) {
	day := s.engine.DashboardDay(asOf)
	return refreshCached(ctx, s.cache, keyKPI(period, day), func(ctx context.Context) (KPIReport, error) {
		return s.engine.ComputeKPIs(ctx, period, day)
	})
}

// RefreshExecutiveDashboard recomputes the executive dashboard and replaces any cached copy.
func (s *Service) RefreshExecutiveDashboard(ctx context.Context, asOf time.Time) (ExecutiveDashboard, error) {
	day := s.engine.DashboardDay(asOf)
	return refreshCached(ctx, s.cache, keyDashboard(day), func(ctx context.Context) (ExecutiveDashboard, error) {
		return s.engine.ComputeExecutiveDashboard(ctx, day)
	})
}
