package availability

import "sort"

// DaySet is an unordered set of days. The zero value is not usable; use
// NewDaySet.
type DaySet map[Day]struct{}

// NewDaySet builds a set from the given days.
func NewDaySet(days ...Day) DaySet {
	s := make(DaySet, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

// Add inserts d into the set.
func (s DaySet) Add(d Day) {
	s[d] = struct{}{}
}

// Remove deletes d from the set.
func (s DaySet) Remove(d Day) {
	delete(s, d)
}

// Contains reports membership of d.
func (s DaySet) Contains(d Day) bool {
	_, ok := s[d]
	return ok
}

// Days returns the members in chronological order.
func (s DaySet) Days() []Day {
	days := make([]Day, 0, len(s))
	for d := range s {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// Clone returns an independent copy of the set.
func (s DaySet) Clone() DaySet {
	c := make(DaySet, len(s))
	for d := range s {
		c[d] = struct{}{}
	}
	return c
}
