// Package holiday resolves public holiday names for days inside the
// coordination window. Names are display-only, so the lookup lives behind
// a small interface and the server runs fine with none configured.
package holiday

import (
	"context"

	"github.com/jw6ventures/openday/internal/availability"
)

// Holiday is one public holiday.
type Holiday struct {
	Date      availability.Day
	LocalName string
	Name      string
}

// Provider returns the public holidays of one calendar year.
type Provider interface {
	Holidays(ctx context.Context, year int) ([]Holiday, error)
}

// InWindow filters to holidays inside the window, preserving provider
// order (providers return date order).
func InWindow(holidays []Holiday, w availability.Window) []Holiday {
	out := make([]Holiday, 0, len(holidays))
	for _, h := range holidays {
		if w.Contains(h.Date) {
			out = append(out, h)
		}
	}
	return out
}
