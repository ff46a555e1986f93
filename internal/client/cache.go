package client

import "github.com/jw6ventures/openday/internal/availability"

// dayCache is a versioned view of one participant's unavailable days.
// Every mutation bumps the version, including the wholesale replacement
// that follows a failed persist, so readers can tell when their copy is
// out of date.
type dayCache struct {
	days    availability.DaySet
	version uint64
}

func newDayCache(days []availability.Day) *dayCache {
	return &dayCache{days: availability.NewDaySet(days...)}
}

func (c *dayCache) contains(d availability.Day) bool {
	return c.days.Contains(d)
}

func (c *dayCache) add(d availability.Day) {
	c.days.Add(d)
	c.version++
}

func (c *dayCache) remove(d availability.Day) {
	c.days.Remove(d)
	c.version++
}

func (c *dayCache) replace(days []availability.Day) {
	c.days = availability.NewDaySet(days...)
	c.version++
}

func (c *dayCache) snapshot() []availability.Day {
	return c.days.Days()
}
