package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clinicamia/findash/internal/analytics"
)

func TestWriteKPICSV(t *testing.T) {
	report := analytics.KPIReport{
		Period: analytics.DateRange{
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC),
		},
		Revenue:     analytics.RevenueSummary{Total: 1000, Count: 4},
		GrossProfit: 400,
		GrossMargin: 40,
		Receivables: analytics.ReceivablesBlock{
			AgingReport: analytics.ClassifyAging(nil, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)),
			TopDebtors:  []analytics.DebtorBalance{{DebtorID: 9, Debtor: "EPS Sura", Balance: 250, Invoices: 2}},
		},
		Unavailable: []string{"inventory", "payroll"},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteKPICSV(buf, report))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	values := make(map[string]string, len(records))
	for _, rec := range records {
		require.Len(t, rec, 2)
		values[rec[0]] = rec[1]
	}
	require.Equal(t, "2025-01-01", values["Period Start"])
	require.Equal(t, "1000.00", values["Revenue"])
	require.Equal(t, "40.00", values["Gross Margin %"])
	require.Equal(t, "0.00", values["Receivables 90+"])
	require.Equal(t, "250.00", values["Debtor EPS Sura"])
	require.Equal(t, "inventory payroll", values["Unavailable Ledgers"])
}

func TestWriteTrendCSV(t *testing.T) {
	points := []analytics.TrendPoint{
		{Month: "2025-01", Label: "ene 2025", Revenue: 100, Expense: 40, Profit: 60},
		{Month: "2025-02", Label: "feb 2025", Revenue: 80, Expense: 90, Profit: -10},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteTrendCSV(buf, points))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, []string{"2025-02", "feb 2025", "80.00", "90.00", "-10.00"}, records[2])
}
