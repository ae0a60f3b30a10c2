package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/clinicamia/findash/internal/analytics"
)

const dateLayout = "2006-01-02"

// WriteKPICSV serialises a KPI report as metric/value rows.
func WriteKPICSV(w io.Writer, report analytics.KPIReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	records := [][]string{
		{"Period Start", report.Period.Start.Format(dateLayout)},
		{"Period End", report.Period.End.Format(dateLayout)},
		{"Revenue", formatFloat(report.Revenue.Total)},
		{"Invoices", strconv.Itoa(report.Revenue.Count)},
		{"Previous Revenue", formatFloat(report.Revenue.PreviousTotal)},
		{"Revenue Variance %", formatFloat(report.Revenue.VariancePct)},
		{"Receivables Outstanding", formatFloat(report.Receivables.Total)},
		{"Payables Outstanding", formatFloat(report.Payables.Total)},
		{"Paid to Suppliers", formatFloat(report.Payables.TotalPaid)},
		{"Payroll Cost", formatFloat(report.Payroll.Total)},
		{"Inventory at Cost", formatFloat(report.Inventory.CostValue)},
		{"Inventory at Retail", formatFloat(report.Inventory.RetailValue)},
		{"Fixed Assets Book Value", formatFloat(report.FixedAssets.BookValue)},
		{"Gross Profit", formatFloat(report.GrossProfit)},
		{"Gross Margin %", formatFloat(report.GrossMargin)},
	}
	for _, bucket := range report.Receivables.Buckets {
		records = append(records, []string{"Receivables " + bucket.Label, formatFloat(bucket.Amount)})
	}
	for _, bucket := range report.Payables.Buckets {
		records = append(records, []string{"Payables " + bucket.Label, formatFloat(bucket.Amount)})
	}
	for _, debtor := range report.Receivables.TopDebtors {
		records = append(records, []string{"Debtor " + debtor.Debtor, formatFloat(debtor.Balance)})
	}
	if len(report.Unavailable) > 0 {
		records = append(records, []string{"Unavailable Ledgers", strings.Join(report.Unavailable, " ")})
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTrendCSV emits the monthly revenue and expense movement as CSV.
func WriteTrendCSV(w io.Writer, points []analytics.TrendPoint) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Month", "Label", "Revenue", "Expense", "Profit"}); err != nil {
		return err
	}
	for _, point := range points {
		if err := writer.Write([]string{
			point.Month,
			point.Label,
			formatFloat(point.Revenue),
			formatFloat(point.Expense),
			formatFloat(point.Profit),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
