package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/jw6ventures/openday/internal/api"
	"github.com/jw6ventures/openday/internal/availability"
)

// AggregateSource fetches the privileged aggregate view. *Client
// satisfies it.
type AggregateSource interface {
	Availability(ctx context.Context, mode string) (api.Availability, error)
}

// Overview is the viewer's cache of everyone's marks. It refreshes
// wholesale and classifies locally, so switching modes never costs a
// round trip.
type Overview struct {
	source AggregateSource

	mu           sync.Mutex
	version      uint64
	mode         availability.Mode
	participants []api.Participant
	snapshot     availability.Snapshot
}

// NewOverview builds an empty overview; call Refresh before reading.
func NewOverview(source AggregateSource) *Overview {
	return &Overview{source: source, snapshot: availability.Snapshot{}}
}

// Refresh replaces the cached snapshot with the server's current view.
func (o *Overview) Refresh(ctx context.Context) error {
	resp, err := o.source.Availability(ctx, "")
	if err != nil {
		return err
	}

	mode, err := availability.ParseMode(resp.Mode)
	if err != nil {
		return fmt.Errorf("malformed mode in availability response: %w", err)
	}

	snap := make(availability.Snapshot, len(resp.Marks))
	for id, raw := range resp.Marks {
		days := make([]availability.Day, 0, len(raw))
		for _, s := range raw {
			day, err := availability.ParseDay(s)
			if err != nil {
				return fmt.Errorf("malformed day %q for participant %s", s, id)
			}
			days = append(days, day)
		}
		snap[id] = days
	}

	o.mu.Lock()
	o.mode = mode
	o.participants = resp.Participants
	o.snapshot = snap
	o.version++
	o.mu.Unlock()
	return nil
}

// DefaultMode returns the server's configured classification mode, as
// reported by the last refresh.
func (o *Overview) DefaultMode() availability.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Participants returns the cached participant list in server order.
func (o *Overview) Participants() []api.Participant {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]api.Participant, len(o.participants))
	copy(out, o.participants)
	return out
}

// Marks returns one participant's cached unavailable days in order.
func (o *Overview) Marks(participantID string) []availability.Day {
	o.mu.Lock()
	defer o.mu.Unlock()
	return availability.NewDaySet(o.snapshot[participantID]...).Days()
}

// Flagged classifies the cached snapshot under the given mode.
func (o *Overview) Flagged(mode availability.Mode) []availability.Day {
	o.mu.Lock()
	defer o.mu.Unlock()
	return availability.Classify(o.snapshot, mode).Days()
}

// Open returns the window days no classification rule flagged under the
// given mode: the candidates worth proposing.
func (o *Overview) Open(window availability.Window, mode availability.Mode) []availability.Day {
	o.mu.Lock()
	flagged := availability.Classify(o.snapshot, mode)
	o.mu.Unlock()

	var open []availability.Day
	for _, day := range window.Days() {
		if !flagged.Contains(day) {
			open = append(open, day)
		}
	}
	return open
}

// Version returns the cache version; it bumps on every refresh.
func (o *Overview) Version() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.version
}
