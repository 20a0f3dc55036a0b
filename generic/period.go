package generic

import "time"

// =============================================================================
// PERIOD - Inclusive date range used by every report
// =============================================================================

// Period is an inclusive [Start, End] range of days.
//
// Reports are always parameterized by a Period. Dated facts (movements) are
// compared by day; timestamped facts (sales) are compared against
// [StartOfDay(Start), EndOfDay(End)].
type Period struct {
	Start Date
	End   Date
}

// NewPeriod validates that start is not after end.
func NewPeriod(start, end Date) (Period, error) {
	if start.After(end) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// MonthPeriod returns the period covering a whole month.
func MonthPeriod(ym YearMonth) Period {
	return Period{Start: ym.FirstDay(), End: ym.LastDay()}
}

// From is the first instant of the period.
func (p Period) From() time.Time { return p.Start.StartOfDay() }

// To is the last instant of the period.
func (p Period) To() time.Time { return p.End.EndOfDay() }

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
