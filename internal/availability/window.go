package availability

import (
	"fmt"
	"time"
)

// Window is the configured range of months, within a single year, that
// participants may mark. Days outside the window are rejected at the API
// boundary and skipped by range selection.
type Window struct {
	Year       int
	StartMonth time.Month
	EndMonth   time.Month
}

// Validate checks the window for internal consistency.
func (w Window) Validate() error {
	if w.Year < 1 {
		return fmt.Errorf("window year %d is invalid", w.Year)
	}
	if w.StartMonth < time.January || w.StartMonth > time.December {
		return fmt.Errorf("window start month %d is invalid", w.StartMonth)
	}
	if w.EndMonth < time.January || w.EndMonth > time.December {
		return fmt.Errorf("window end month %d is invalid", w.EndMonth)
	}
	if w.EndMonth < w.StartMonth {
		return fmt.Errorf("window end month %s precedes start month %s", w.EndMonth, w.StartMonth)
	}
	return nil
}

// Start returns the first day of the window.
func (w Window) Start() Day {
	return Day(time.Date(w.Year, w.StartMonth, 1, 0, 0, 0, 0, time.UTC).Format(DayFormat))
}

// End returns the last day of the window. Day zero of the following month is
// the last day of the end month, which keeps leap years correct for free.
func (w Window) End() Day {
	return Day(time.Date(w.Year, w.EndMonth+1, 0, 0, 0, 0, 0, time.UTC).Format(DayFormat))
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d Day) bool {
	return d >= w.Start() && d <= w.End()
}

// Days enumerates every day in the window in order.
func (w Window) Days() []Day {
	return Span(w.Start(), w.End())
}
