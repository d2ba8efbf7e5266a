package metering

import "time"

// Period is a reporting granularity.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	default:
		return false
	}
}

// Bounds returns the [start, end) window of the period that contains at, in UTC.
// Weeks start on Monday.
func (p Period) Bounds(at time.Time) (start, end time.Time, err error) {
	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case PeriodDaily:
		return day, day.AddDate(0, 0, 1), nil
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start = day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonthly:
		start = time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, ErrUnknownPeriod
	}
}

// Previous returns the window immediately before the one containing at.
func (p Period) Previous(at time.Time) (start, end time.Time, err error) {
	start, _, err = p.Bounds(at)
	if err != nil {
		return start, start, err
	}
	return p.Bounds(start.Add(-time.Nanosecond))
}
