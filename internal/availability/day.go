package availability

import (
	"fmt"
	"time"
)

// DayFormat is the canonical calendar-day layout used on the wire and in
// storage. Lexicographic order on the formatted string matches chronological
// order, which the range normalization below relies on.
const DayFormat = "2006-01-02"

// Day is a single calendar day in canonical YYYY-MM-DD form.
type Day string

// ParseDay validates s and returns it as a Day. Only the canonical
// zero-padded form is accepted; time.Parse alone would admit variants like
// 2026-6-5 that break string ordering.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	if t.Format(DayFormat) != s {
		return "", fmt.Errorf("invalid day %q: not in %s form", s, "YYYY-MM-DD")
	}
	return Day(s), nil
}

// Time returns the day at midnight UTC. The zero time is returned for a Day
// that was not produced by ParseDay.
func (d Day) Time() time.Time {
	t, err := time.Parse(DayFormat, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return Day(d.Time().AddDate(0, 0, 1).Format(DayFormat))
}

// Before reports whether d precedes other chronologically.
func (d Day) Before(other Day) bool {
	return d < other
}

// Span enumerates every day in the inclusive interval between the two
// anchors. The anchors may arrive in either order; they are normalized to
// (low, high) first, so a backwards drag covers the same days as a forwards
// one.
func Span(a, b Day) []Day {
	low, high := a, b
	if high < low {
		low, high = high, low
	}

	var days []Day
	for d := low; d <= high; d = d.Next() {
		days = append(days, d)
	}
	return days
}
