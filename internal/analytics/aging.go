package analytics

import (
	"time"
)

// Aging bucket labels, in presentation order.
const (
	BucketCurrent = "Current"
	Bucket1To30   = "1-30"
	Bucket31To60  = "31-60"
	Bucket61To90  = "61-90"
	BucketOver90  = "90+"
)

var bucketOrder = [...]string{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, BucketOver90}

// OpenBalance is the minimal view of an unpaid document needed for aging.
type OpenBalance struct {
	DebtorID  int64
	Reference time.Time
	Amount    float64
}

// AgingBucket summarises the open balances that fall inside a time bucket.
type AgingBucket struct {
	Label  string  `json:"label"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// AgingReport is the exhaustive partition of a set of open balances.
type AgingReport struct {
	Total   float64       `json:"total"`
	Count   int           `json:"count"`
	Buckets []AgingBucket `json:"aging"`
}

// BucketFor maps days past the reference date onto an aging label.
func BucketFor(daysOverdue int) string {
	switch {
	case daysOverdue <= 0:
		return BucketCurrent
	case daysOverdue <= 30:
		return Bucket1To30
	case daysOverdue <= 60:
		return Bucket31To60
	case daysOverdue <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// ClassifyAging buckets balances by whole days elapsed between their reference date and asOf.
func ClassifyAging(records []OpenBalance, asOf time.Time) AgingReport {
	buckets := make([]AgingBucket, len(bucketOrder))
	index := make(map[string]int, len(bucketOrder))
	for i, label := range bucketOrder {
		buckets[i] = AgingBucket{Label: label}
		index[label] = i
	}
	report := AgingReport{Buckets: buckets}
	for _, rec := range records {
		i := index[BucketFor(wholeDays(asOf, rec.Reference))]
		buckets[i].Count++
		buckets[i].Amount += rec.Amount
		report.Total += rec.Amount
		report.Count++
	}
	return report
}

// Bucket returns the bucket with the given label, or a zero bucket when absent.
func (r AgingReport) Bucket(label string) AgingBucket {
	for _, b := range r.Buckets {
		if b.Label == label {
			return b
		}
	}
	return AgingBucket{Label: label}
}

func receivableBalances(records []Receivable) []OpenBalance {
	out := make([]OpenBalance, 0, len(records))
	for _, rec := range records {
		if !rec.Open() {
			continue
		}
		ref := rec.IssueDate
		if rec.DueDate != nil {
			ref = *rec.DueDate
		}
		out = append(out, OpenBalance{DebtorID: rec.DebtorID, Reference: ref, Amount: rec.OutstandingBalance})
	}
	return out
}

func payableBalances(records []Payable) []OpenBalance {
	out := make([]OpenBalance, 0, len(records))
	for _, rec := range records {
		if !rec.Open() {
			continue
		}
		out = append(out, OpenBalance{Reference: rec.DueDate, Amount: rec.OutstandingBalance})
	}
	return out
}
