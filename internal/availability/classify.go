package availability

import "fmt"

// Mode selects the rule used to flag days in the aggregate view.
type Mode string

const (
	// ModeNone never flags a day.
	ModeNone Mode = "none"
	// ModeAny flags a day when at least one participant is unavailable.
	ModeAny Mode = "any"
	// ModeAll flags a day only when every participant is unavailable. An
	// empty participant set never counts as "all unavailable".
	ModeAll Mode = "all"
)

// ParseMode validates a mode string from the wire.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNone, ModeAny, ModeAll:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown classification mode %q", s)
}

// Snapshot maps each participant id to the days that participant is
// unavailable. Participants with no marks must still appear, with an empty
// slice, for ModeAll to count them.
type Snapshot map[string][]Day

// Classify derives the flagged-day set for a snapshot under the given mode.
// It is a pure function: no state is held between calls, and callers
// recompute whenever the snapshot or mode changes.
func Classify(snap Snapshot, mode Mode) DaySet {
	flagged := NewDaySet()
	if mode == ModeNone || len(snap) == 0 {
		return flagged
	}

	counts := make(map[Day]int)
	for _, days := range snap {
		seen := NewDaySet(days...)
		for d := range seen {
			counts[d]++
		}
	}

	for d, n := range counts {
		switch mode {
		case ModeAny:
			if n > 0 {
				flagged.Add(d)
			}
		case ModeAll:
			if n == len(snap) {
				flagged.Add(d)
			}
		}
	}
	return flagged
}
