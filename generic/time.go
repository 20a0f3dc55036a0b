package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Accounting day (UTC, no time of day)
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar day. Ledger movements, template effective dates and rate
// effective dates are all Dates; only sales carry a full timestamp.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for fixtures and tests. It panics on bad input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }

// Arithmetic
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }
func (d Date) YearMonth() YearMonth  { return YearMonth{Year: d.Year(), Month: d.Month()} }
func (d Date) String() string        { return d.Time.Format(dateLayout) }
func (d Date) StartOfDay() time.Time { return d.Time }

// EndOfDay is the last representable instant of the day.
func (d Date) EndOfDay() time.Time { return d.Time.AddDate(0, 0, 1).Add(-time.Nanosecond) }

// =============================================================================
// YEAR MONTH - The unit of closure
// =============================================================================

// YearMonth identifies a calendar month. Closures, hours worked and payroll
// labels are all keyed by YearMonth.
type YearMonth struct {
	Year  int
	Month time.Month
}

func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth{Year: year, Month: month}
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q (use YYYY-MM): %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func MustParseYearMonth(s string) YearMonth {
	ym, err := ParseYearMonth(s)
	if err != nil {
		panic(err)
	}
	return ym
}

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month)) }
func (ym YearMonth) IsZero() bool   { return ym.Year == 0 && ym.Month == 0 }

// FirstDay returns the first calendar day of the month.
func (ym YearMonth) FirstDay() Date { return NewDate(ym.Year, ym.Month, 1) }

// LastDay returns the last calendar day of the month (the accrual date of
// every movement generated by closure).
func (ym YearMonth) LastDay() Date {
	return Date{Time: time.Date(ym.Year, ym.Month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}

// Day returns the given day of the month, clamped to the last day.
func (ym YearMonth) Day(day int) Date {
	last := ym.LastDay()
	if day <= 0 || day > last.Day() {
		return last
	}
	return NewDate(ym.Year, ym.Month, day)
}

func (ym YearMonth) Next() YearMonth     { return ym.FirstDay().AddMonths(1).YearMonth() }
func (ym YearMonth) Previous() YearMonth { return ym.FirstDay().AddMonths(-1).YearMonth() }

func (ym YearMonth) index() int              { return ym.Year*12 + int(ym.Month) - 1 }
func (ym YearMonth) Before(o YearMonth) bool { return ym.index() < o.index() }
func (ym YearMonth) After(o YearMonth) bool  { return ym.index() > o.index() }
func (ym YearMonth) Equal(o YearMonth) bool  { return ym.index() == o.index() }
