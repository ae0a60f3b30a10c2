package analytics

import (
	"context"
	"fmt"
	"sort"
)

// Service categories of invoice line items.
const (
	CategoryConsultation    = "Consultation"
	CategoryProcedure       = "Procedure"
	CategoryLaboratory      = "Laboratory"
	CategoryImaging         = "Imaging"
	CategoryPharmacy        = "Pharmacy"
	CategoryHospitalization = "Hospitalization"
	CategorySurgery         = "Surgery"
	CategoryOther           = "Other"
)

var categoryLabels = map[string]string{
	CategoryConsultation:    "Consultas Médicas",
	CategoryProcedure:       "Procedimientos",
	CategoryLaboratory:      "Laboratorio",
	CategoryImaging:         "Imagenología",
	CategoryPharmacy:        "Farmacia",
	CategoryHospitalization: "Hospitalización",
	CategorySurgery:         "Cirugías",
	CategoryOther:           "Otros Servicios",
}

// CategoryLabel maps a category key to its display label. Unknown keys pass through.
func CategoryLabel(key string) string {
	if label, ok := categoryLabels[key]; ok {
		return label
	}
	return key
}

// DepartmentRevenue is the revenue earned by one service category.
type DepartmentRevenue struct {
	Key      string  `json:"key"`
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
	Count    int     `json:"count"`
}

// BreakdownDepartments groups subtotals by category and sorts them by revenue descending.
func BreakdownDepartments(rows []CategorySubtotal) []DepartmentRevenue {
	lookup := make(map[string]*DepartmentRevenue, len(rows))
	for _, row := range rows {
		entry, ok := lookup[row.CategoryKey]
		if !ok {
			entry = &DepartmentRevenue{Key: row.CategoryKey, Category: CategoryLabel(row.CategoryKey)}
			lookup[row.CategoryKey] = entry
		}
		entry.Revenue += row.Subtotal
		entry.Count += row.Count
	}
	out := make([]DepartmentRevenue, 0, len(lookup))
	for _, entry := range lookup {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// DepartmentRevenue returns the revenue breakdown by service category for the period.
func (e *Engine) DepartmentRevenue(ctx context.Context, period DateRange) ([]DepartmentRevenue, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rows, err := e.repo.InvoiceLineItemsByCategory(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("analytics: department revenue: %w", err)
	}
	return BreakdownDepartments(rows), nil
}
