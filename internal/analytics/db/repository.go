package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicamia/findash/internal/analytics"
)

// Querier is the subset of pgxpool.Pool used by the repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads the clinic ledgers from PostgreSQL. It never writes.
type Repository struct {
	q Querier
}

var _ analytics.Repository = (*Repository)(nil)

// New constructs the repository on top of a pgx pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewWithQuerier constructs the repository on top of any pgx querier, such as a transaction.
func NewWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// Receivables lists patient invoices matching the filter, ordered by id.
func (r *Repository) Receivables(ctx context.Context, filter analytics.ReceivableFilter) ([]analytics.Receivable, error) {
	sql, args := receivablesQuery(filter)
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError("receivables", err)
	}
	defer rows.Close()

	out := make([]analytics.Receivable, 0)
	for rows.Next() {
		var (
			id                 int64
			issued, due        pgtype.Timestamptz
			total, outstanding pgtype.Numeric
			status             string
			debtor             pgtype.Int8
		)
		if err := rows.Scan(&id, &issued, &due, &total, &outstanding, &status, &debtor); err != nil {
			return nil, mapError("receivables", err)
		}
		rec := analytics.Receivable{
			ID:                 id,
			IssueDate:          issued.Time,
			TotalAmount:        numericValue(total),
			OutstandingBalance: numericValue(outstanding),
			Status:             receivableStatus(status),
			DebtorID:           debtor.Int64,
		}
		if due.Valid {
			d := due.Time
			rec.DueDate = &d
		}
		out = append(out, analytics.NormalizeReceivable(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("receivables", err)
	}
	return out, nil
}

// Payables lists supplier invoices matching the filter, ordered by id.
func (r *Repository) Payables(ctx context.Context, filter analytics.PayableFilter) ([]analytics.Payable, error) {
	sql, args := payablesQuery(filter)
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError("payables", err)
	}
	defer rows.Close()

	out := make([]analytics.Payable, 0)
	for rows.Next() {
		var (
			id                 int64
			issued, due        pgtype.Timestamptz
			total, outstanding pgtype.Numeric
			status             string
		)
		if err := rows.Scan(&id, &issued, &due, &total, &outstanding, &status); err != nil {
			return nil, mapError("payables", err)
		}
		pay := analytics.Payable{
			ID:                 id,
			IssueDate:          issued.Time,
			DueDate:            issued.Time,
			TotalAmount:        numericValue(total),
			OutstandingBalance: numericValue(outstanding),
			Status:             payableStatus(status),
		}
		if due.Valid {
			pay.DueDate = due.Time
		}
		out = append(out, analytics.NormalizePayable(pay))
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("payables", err)
	}
	return out, nil
}

// SupplierPaymentsTotal sums every payment made to suppliers to date.
func (r *Repository) SupplierPaymentsTotal(ctx context.Context) (float64, error) {
	var total pgtype.Numeric
	if err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(p.monto), 0) FROM "PagoProveedor" p`).Scan(&total); err != nil {
		return 0, mapError("supplier payments", err)
	}
	return numericValue(total), nil
}

// PayrollPeriods lists payroll runs that start and end inside the period with one of the statuses.
func (r *Repository) PayrollPeriods(ctx context.Context, period analytics.DateRange, statuses []analytics.PayrollStatus) ([]analytics.PayrollPeriod, error) {
	const query = `SELECT p.id, p."fechaInicio"::timestamptz, p."fechaFin"::timestamptz, p."totalNomina",
	(SELECT COUNT(*) FROM "ItemNomina" i WHERE i."periodoNominaId" = p.id), p.estado::text
FROM "PeriodoNomina" p
WHERE p."fechaInicio" >= $1 AND p."fechaFin" <= $2 AND p.estado::text = ANY($3)
ORDER BY p.id`
	stored := make([]string, 0, len(statuses))
	for _, s := range statuses {
		stored = append(stored, payrollStorage[s])
	}
	rows, err := r.q.Query(ctx, query, period.Start.UTC(), period.End.UTC(), stored)
	if err != nil {
		return nil, mapError("payroll", err)
	}
	defer rows.Close()

	out := make([]analytics.PayrollPeriod, 0)
	for rows.Next() {
		var (
			id         int64
			start, end pgtype.Timestamptz
			total      pgtype.Numeric
			employees  int64
			status     string
		)
		if err := rows.Scan(&id, &start, &end, &total, &employees, &status); err != nil {
			return nil, mapError("payroll", err)
		}
		out = append(out, analytics.PayrollPeriod{
			ID:               id,
			StartDate:        start.Time,
			EndDate:          end.Time,
			TotalPayrollCost: numericValue(total),
			EmployeeCount:    int(employees),
			Status:           payrollStatus(status),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("payroll", err)
	}
	return out, nil
}

// Inventory lists pharmacy products, optionally only the active ones.
func (r *Repository) Inventory(ctx context.Context, activeOnly bool) ([]analytics.InventoryItem, error) {
	query := `SELECT p."cantidadTotal", p."precioCompra", p."precioVenta", p.activo FROM "Producto" p`
	if activeOnly {
		query += ` WHERE p.activo`
	}
	query += ` ORDER BY p.id`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, mapError("inventory", err)
	}
	defer rows.Close()

	out := make([]analytics.InventoryItem, 0)
	for rows.Next() {
		var (
			qty         pgtype.Int8
			cost, price pgtype.Numeric
			active      bool
		)
		if err := rows.Scan(&qty, &cost, &price, &active); err != nil {
			return nil, mapError("inventory", err)
		}
		out = append(out, analytics.InventoryItem{
			QuantityOnHand: qty.Int64,
			UnitCost:       numericValue(cost),
			UnitPrice:      numericValue(price),
			Active:         active,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("inventory", err)
	}
	return out, nil
}

// FixedAssets aggregates asset values for the given statuses.
func (r *Repository) FixedAssets(ctx context.Context, statuses []analytics.AssetStatus) (analytics.FixedAssetTotals, error) {
	const query = `SELECT COALESCE(SUM(a."valorAdquisicion"), 0), COALESCE(SUM(a."depreciacionAcumulada"), 0),
	COALESCE(SUM(a."valorEnLibros"), 0), COUNT(*)
FROM "ActivoFijo" a
WHERE a.estado::text = ANY($1)`
	stored := make([]string, 0, len(statuses))
	for _, s := range statuses {
		stored = append(stored, assetStorage[s])
	}
	var (
		acquisition, depreciation, book pgtype.Numeric
		count                           int64
	)
	if err := r.q.QueryRow(ctx, query, stored).Scan(&acquisition, &depreciation, &book, &count); err != nil {
		return analytics.FixedAssetTotals{}, mapError("fixed assets", err)
	}
	return analytics.FixedAssetTotals{
		AcquisitionValue:        numericValue(acquisition),
		AccumulatedDepreciation: numericValue(depreciation),
		BookValue:               numericValue(book),
		Count:                   int(count),
	}, nil
}

// BankAccounts lists treasury balances, optionally only the active accounts.
func (r *Repository) BankAccounts(ctx context.Context, activeOnly bool) ([]analytics.BankAccount, error) {
	query := `SELECT c."saldoActual", c.activa FROM "CuentaBancaria" c`
	if activeOnly {
		query += ` WHERE c.activa`
	}
	query += ` ORDER BY c.id`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, mapError("bank accounts", err)
	}
	defer rows.Close()

	out := make([]analytics.BankAccount, 0)
	for rows.Next() {
		var (
			balance pgtype.Numeric
			active  bool
		)
		if err := rows.Scan(&balance, &active); err != nil {
			return nil, mapError("bank accounts", err)
		}
		out = append(out, analytics.BankAccount{CurrentBalance: numericValue(balance), Active: active})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("bank accounts", err)
	}
	return out, nil
}

// LookupDebtor resolves the patient owing a receivable.
func (r *Repository) LookupDebtor(ctx context.Context, id int64) (analytics.Debtor, error) {
	var first, last pgtype.Text
	err := r.q.QueryRow(ctx, `SELECT p.nombre, p.apellido FROM "Paciente" p WHERE p.id = $1`, id).Scan(&first, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return analytics.Debtor{}, fmt.Errorf("analytics db: debtor %d: %w", id, analytics.ErrDebtorNotFound)
	}
	if err != nil {
		return analytics.Debtor{}, mapError("debtor", err)
	}
	return analytics.Debtor{ID: id, DisplayName: displayName(first.String, last.String)}, nil
}

// InvoiceLineItemsByCategory sums line item subtotals of non-cancelled invoices issued in the period.
func (r *Repository) InvoiceLineItemsByCategory(ctx context.Context, period analytics.DateRange) ([]analytics.CategorySubtotal, error) {
	const query = `SELECT i.tipo::text, COALESCE(SUM(i.subtotal), 0), COUNT(*)
FROM "FacturaItem" i
JOIN "Factura" f ON f.id = i."facturaId"
WHERE f."fechaEmision" BETWEEN $1 AND $2 AND f.estado::text <> 'Cancelada'
GROUP BY i.tipo::text
ORDER BY i.tipo::text`
	rows, err := r.q.Query(ctx, query, period.Start.UTC(), period.End.UTC())
	if err != nil {
		return nil, mapError("invoice line items", err)
	}
	defer rows.Close()

	out := make([]analytics.CategorySubtotal, 0)
	for rows.Next() {
		var (
			kind     string
			subtotal pgtype.Numeric
			count    int64
		)
		if err := rows.Scan(&kind, &subtotal, &count); err != nil {
			return nil, mapError("invoice line items", err)
		}
		out = append(out, analytics.CategorySubtotal{
			CategoryKey: CategoryKey(kind),
			Subtotal:    numericValue(subtotal),
			Count:       int(count),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("invoice line items", err)
	}
	return out, nil
}

// filter accumulates WHERE clauses with positional arguments.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) arg(v any) string {
	f.args = append(f.args, v)
	return "$" + strconv.Itoa(len(f.args))
}

func (f *filter) where(clause string) {
	f.clauses = append(f.clauses, clause)
}

func (f *filter) String() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

func receivablesQuery(rf analytics.ReceivableFilter) (string, []any) {
	var f filter
	if rf.OpenOnly {
		f.where(`f.estado::text IN ('Pendiente', 'Parcial') AND f."saldoPendiente" > 0`)
	}
	if rf.ExcludeCancelled {
		f.where(`f.estado::text <> 'Cancelada'`)
	}
	if rf.Issued != nil {
		f.where(`f."fechaEmision" BETWEEN ` + f.arg(rf.Issued.Start.UTC()) + ` AND ` + f.arg(rf.Issued.End.UTC()))
	}
	if rf.DueOnOrAfter != nil {
		f.where(`f."fechaVencimiento" >= ` + f.arg(rf.DueOnOrAfter.UTC()))
	}
	sql := `SELECT f.id, f."fechaEmision"::timestamptz, f."fechaVencimiento"::timestamptz, f.total, f."saldoPendiente", f.estado::text, f."pacienteId"
FROM "Factura" f` + f.String() + `
ORDER BY f.id`
	return sql, f.args
}

func payablesQuery(pf analytics.PayableFilter) (string, []any) {
	var f filter
	if pf.OpenOnly {
		f.where(`f.estado::text IN ('Pendiente', 'Parcial') AND f."saldoPendiente" > 0`)
	}
	if pf.Issued != nil {
		f.where(`f."fechaFactura" BETWEEN ` + f.arg(pf.Issued.Start.UTC()) + ` AND ` + f.arg(pf.Issued.End.UTC()))
	}
	if pf.DueOnOrAfter != nil {
		f.where(`f."fechaVencimiento" >= ` + f.arg(pf.DueOnOrAfter.UTC()))
	}
	sql := `SELECT f.id, f."fechaFactura"::timestamptz, f."fechaVencimiento"::timestamptz, f.total, f."saldoPendiente", f.estado::text
FROM "FacturaProveedor" f` + f.String() + `
ORDER BY f.id`
	return sql, f.args
}

// unavailableCodes are SQLSTATEs raised when a ledger is not provisioned.
var unavailableCodes = map[string]struct{}{
	"42P01": {}, // undefined_table
	"42703": {}, // undefined_column
	"3F000": {}, // invalid_schema_name
}

func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := unavailableCodes[pgErr.Code]; ok {
			return fmt.Errorf("analytics db: %s: %w: %s", op, analytics.ErrDataUnavailable, pgErr.Message)
		}
	}
	return fmt.Errorf("analytics db: %s: %w", op, err)
}

func numericValue(n pgtype.Numeric) float64 {
	if !n.Valid {
		return 0
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return 0
	}
	return f.Float64
}

func displayName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

var categoryKeys = map[string]string{
	"Consulta":        analytics.CategoryConsultation,
	"Procedimiento":   analytics.CategoryProcedure,
	"Laboratorio":     analytics.CategoryLaboratory,
	"Imagenologia":    analytics.CategoryImaging,
	"Medicamento":     analytics.CategoryPharmacy,
	"Hospitalizacion": analytics.CategoryHospitalization,
	"Cirugia":         analytics.CategorySurgery,
	"Otro":            analytics.CategoryOther,
}

// CategoryKey maps a stored line item type to its canonical category. Unknown types pass through.
func CategoryKey(stored string) string {
	if key, ok := categoryKeys[stored]; ok {
		return key
	}
	return stored
}

func receivableStatus(stored string) analytics.ReceivableStatus {
	switch stored {
	case "Pendiente":
		return analytics.ReceivablePending
	case "Parcial":
		return analytics.ReceivablePartial
	case "Pagada":
		return analytics.ReceivablePaid
	case "Cancelada":
		return analytics.ReceivableCancelled
	}
	return analytics.ReceivableStatus(strings.ToUpper(stored))
}

func payableStatus(stored string) analytics.PayableStatus {
	switch stored {
	case "Pendiente":
		return analytics.PayablePending
	case "Parcial":
		return analytics.PayablePartial
	case "Pagada":
		return analytics.PayablePaid
	}
	return analytics.PayableStatus(strings.ToUpper(stored))
}

var payrollStorage = map[analytics.PayrollStatus]string{
	analytics.PayrollOpen:   "ABIERTO",
	analytics.PayrollClosed: "CERRADO",
	analytics.PayrollPaid:   "PAGADO",
}

func payrollStatus(stored string) analytics.PayrollStatus {
	for status, s := range payrollStorage {
		if s == stored {
			return status
		}
	}
	return analytics.PayrollStatus(stored)
}

var assetStorage = map[analytics.AssetStatus]string{
	analytics.AssetActive:   "Activo",
	analytics.AssetDisposed: "DadoDeBaja",
}
