// Package dates implements UTC-safe calendar arithmetic for invoice
// reporting. Every function operates at day granularity anchored to UTC
// midnight so that bucketing never drifts with the host timezone.
package dates

import (
	"strings"
	"time"
)

// Range is an inclusive pair of UTC calendar days.
type Range struct {
	From time.Time
	To   time.Time
}

// DayUTC truncates a time to its UTC calendar day.
func DayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TodayUTC returns the current UTC calendar day.
func TodayUTC() time.Time {
	return DayUTC(time.Now())
}

// ParseISODate accepts a date-only string (YYYY-MM-DD) or a full ISO
// datetime and returns the UTC calendar day it falls on. The second
// return value is false when the input is empty or unparseable.
func ParseISODate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", trimmed); err == nil {
		return DayUTC(t), true
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return DayUTC(t), true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", trimmed); err == nil {
		return DayUTC(t), true
	}
	return time.Time{}, false
}

// ISODateString formats a date as YYYY-MM-DD using UTC fields.
func ISODateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// StartOfMonthUTC returns the first day of the date's UTC month.
func StartOfMonthUTC(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonthUTC returns the last day of the date's UTC month.
func EndOfMonthUTC(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	// Day zero of the next month normalises to the last day of this one.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsUTC shifts the date by n calendar months, clamping the day of
// month to the last valid day of the target month. Jan 31 plus one month
// lands on Feb 28 (or 29), never on an overflowed March date.
func AddMonthsUTC(t time.Time, n int) time.Time {
	anchor := StartOfMonthUTC(t).AddDate(0, n, 0)
	day := t.UTC().Day()
	if last := daysInMonth(anchor.Year(), anchor.Month()); day > last {
		day = last
	}
	return time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, time.UTC)
}

// AddYearsUTC shifts the date by n years, clamping Feb 29 to Feb 28 in
// non-leap target years.
func AddYearsUTC(t time.Time, n int) time.Time {
	y, m, d := t.UTC().Date()
	year := y + n
	if last := daysInMonth(year, m); d > last {
		d = last
	}
	return time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
}

// ShiftRangeByMonths applies AddMonthsUTC to both endpoints
// independently. Each endpoint clamps on its own, so the range's length
// in days may change across month-length differences.
func ShiftRangeByMonths(r Range, n int) Range {
	return Range{From: AddMonthsUTC(r.From, n), To: AddMonthsUTC(r.To, n)}
}

// ShiftRangeByYears applies AddYearsUTC to both endpoints independently.
func ShiftRangeByYears(r Range, n int) Range {
	return Range{From: AddYearsUTC(r.From, n), To: AddYearsUTC(r.To, n)}
}

// SliceRangeByMonths partitions the range into calendar-month-aligned
// slices covering exactly [From, To] inclusive, in ascending order, with
// no gaps or overlaps. Interior slices span whole months; the first and
// last are trimmed to the range endpoints.
func SliceRangeByMonths(r Range) []Range {
	cursor := DayUTC(r.From)
	last := DayUTC(r.To)
	var slices []Range
	for !cursor.After(last) {
		end := EndOfMonthUTC(cursor)
		if end.After(last) {
			end = last
		}
		slices = append(slices, Range{From: cursor, To: end})
		cursor = StartOfMonthUTC(cursor).AddDate(0, 1, 0)
	}
	return slices
}
