package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"childminder/internal/core"
)

// SessionHours is the elapsed time of a closed record in hours. Open records
// and negative ranges count as zero.
func SessionHours(r core.AttendanceRecord) float64 {
	if r.EndTime == nil {
		return 0
	}
	h := r.EndTime.Sub(r.StartTime).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// TotalHoursForChild sums SessionHours over the child's closed records.
func TotalHoursForChild(records []core.AttendanceRecord, childID string) float64 {
	total := 0.0
	for _, r := range records {
		if r.ChildID == childID && !r.IsOpen() {
			total += SessionHours(r)
		}
	}
	return total
}

// MonthlyHoursForChild buckets the child's closed sessions of now's month by
// day of month. Index 0 is the 1st; the slice has one entry per day.
func MonthlyHoursForChild(records []core.AttendanceRecord, childID string, now time.Time) []float64 {
	loc := now.Location()
	year, month, _ := now.Date()
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()

	buckets := make([]float64, days)
	for _, r := range records {
		if r.ChildID != childID || r.IsOpen() {
			continue
		}
		start := r.StartTime.In(loc)
		if start.Year() != year || start.Month() != month {
			continue
		}
		buckets[start.Day()-1] += SessionHours(r)
	}
	return buckets
}

// History returns the child's closed records, newest first.
func History(records []core.AttendanceRecord, childID string) []core.AttendanceRecord {
	out := make([]core.AttendanceRecord, 0)
	for _, r := range records {
		if r.ChildID == childID && !r.IsOpen() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// InvoiceLine is one billed session.
type InvoiceLine struct {
	Number    int        `json:"number"`
	RecordID  string     `json:"recordId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Hours     float64    `json:"hours"`
	Cost      core.Money `json:"cost"`
}

// InvoiceSummary holds invoice-ready totals for one child.
type InvoiceSummary struct {
	Lines      []InvoiceLine `json:"lines"`
	TotalHours float64       `json:"totalHours"`
	Rate       core.Money    `json:"rate"`
	TotalCost  core.Money    `json:"totalCost"`
}

// InvoiceTotals bills every closed session of the child, in chronological
// order. Total hours are rounded to two decimals before being multiplied by
// the rate; each line cost is rounded on its own, so the line costs need not
// add up exactly to the total.
func InvoiceTotals(child core.Child, records []core.AttendanceRecord) InvoiceSummary {
	sessions := make([]core.AttendanceRecord, 0)
	for _, r := range records {
		if r.ChildID == child.ID && !r.IsOpen() {
			sessions = append(sessions, r)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})

	rate := child.Rate.Decimal
	summary := InvoiceSummary{
		Lines: make([]InvoiceLine, 0, len(sessions)),
		Rate:  child.Rate,
	}

	total := 0.0
	for i, r := range sessions {
		h := SessionHours(r)
		total += h
		lineHours := decimal.NewFromFloat(h).Round(2)
		summary.Lines = append(summary.Lines, InvoiceLine{
			Number:    i + 1,
			RecordID:  r.ID,
			StartTime: r.StartTime,
			EndTime:   *r.EndTime,
			Hours:     lineHours.InexactFloat64(),
			Cost:      core.NewMoney(lineHours.Mul(rate)).Round2(),
		})
	}

	totalHours := decimal.NewFromFloat(total).Round(2)
	summary.TotalHours = totalHours.InexactFloat64()
	summary.TotalCost = core.NewMoney(totalHours.Mul(rate)).Round2()
	return summary
}
