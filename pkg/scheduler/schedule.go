package scheduler

import (
	"fmt"
	"time"
)

// Schedule determines when a job runs next. Times are evaluated in UTC.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	from = from.UTC()
	next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), s.minute, 0, 0, time.UTC)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string {
	return fmt.Sprintf("hourly at :%02d", s.minute)
}

type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	from = from.UTC()
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d UTC", s.hour, s.minute)
}

type monthlySchedule struct {
	day    int
	hour   int
	minute int
}

func (s monthlySchedule) Next(from time.Time) time.Time {
	from = from.UTC()
	year, month := from.Year(), from.Month()

	// Days past the end of a month clamp to its last day.
	next := time.Date(year, month, min(s.day, daysInMonth(year, month)), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(from) {
		first := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
		year, month = first.Year(), first.Month()
		next = time.Date(year, month, min(s.day, daysInMonth(year, month)), s.hour, s.minute, 0, 0, time.UTC)
	}
	return next
}

func (s monthlySchedule) String() string {
	return fmt.Sprintf("monthly on day %d at %02d:%02d UTC", s.day, s.hour, s.minute)
}

// Every runs a job at a fixed interval.
func Every(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// HourlyAt runs a job every hour at minute.
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: minute}
}

// DailyAt runs a job once a day.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// MonthlyOn runs a job once a month on day.
func MonthlyOn(day, hour, minute int) Schedule {
	return monthlySchedule{day: day, hour: hour, minute: minute}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
