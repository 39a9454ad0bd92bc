package core

import (
	"fmt"
	"time"
)

// Period identifies one calendar month, the atomic billing unit.
// Its canonical date form is the first day of the month at midnight UTC.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod creates a Period for the given year and month.
func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Start returns the first day of the period's month at midnight UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the period n months after p (n may be negative).
func (p Period) AddMonths(n int) Period {
	return PeriodOf(p.Start().AddDate(0, n, 0))
}

// Next returns the following period.
func (p Period) Next() Period {
	return p.AddMonths(1)
}

// MonthsSince returns the number of whole months from o to p.
// Negative when p precedes o.
func (p Period) MonthsSince(o Period) int {
	return (p.Year-o.Year)*12 + int(p.Month-o.Month)
}

// Before reports whether p precedes o.
func (p Period) Before(o Period) bool {
	return p.MonthsSince(o) < 0
}

// After reports whether p follows o.
func (p Period) After(o Period) bool {
	return p.MonthsSince(o) > 0
}

// DaysInMonth returns the number of days in the period's month.
func (p Period) DaysInMonth() int {
	return time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether the period is the zero value.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}
