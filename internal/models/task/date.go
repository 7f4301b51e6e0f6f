package task

import (
	"fmt"
	"time"
)

const (
	isoDateTime = "2006-01-02T15:04:05Z07:00"
	isoDate     = "2006-01-02"
	isoMonth    = "2006-01"
)

// DateOf truncates t to its calendar day (as seen in t's own location) at 00:00 UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders the calendar day of t as an ISO timestamp at start of day UTC.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(isoDateTime)
}

// ParseDate accepts RFC 3339 or a bare YYYY-MM-DD and keeps the calendar day as written.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(isoDate, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return DateOf(t), nil
}

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse(isoMonth, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return t.Year(), t.Month(), nil
}

// DaysBetween counts whole calendar days from a to b; both should be DateOf values.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

func AddDays(t time.Time, days int) time.Time {
	return DateOf(t).AddDate(0, 0, days)
}
