// Package client implements the participant-side editing engine and the
// viewer-side aggregate cache used by the terminal client. State changes
// land locally first and are persisted in the background; a failed persist
// is repaired by refetching the authoritative set from the server rather
// than by rolling back individual days.
package client

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jw6ventures/openday/internal/availability"
)

// debounceWindow is how long a repeated toggle of the same day is dropped
// after an accepted one. Pointer-event duplication fires the same cell
// twice in quick succession; without the guard the second event would
// cancel the first flip.
const debounceWindow = 300 * time.Millisecond

// Persister applies mark changes durably. Both operations are idempotent:
// setting a day that is already unavailable, or clearing one that is not,
// succeeds without effect.
type Persister interface {
	SetUnavailable(ctx context.Context, participantID string, day availability.Day) error
	ClearUnavailable(ctx context.Context, participantID string, day availability.Day) error
	FetchMarks(ctx context.Context, participantID string) ([]availability.Day, error)
}

// Engine edits one participant's unavailable days. Flips apply to the
// local cache immediately and each one issues a single background request
// expressing the new desired state. Engines are safe for concurrent use,
// though the expected caller is a single UI goroutine.
type Engine struct {
	persister     Persister
	window        availability.Window
	participantID string

	now func() time.Time

	mu         sync.Mutex
	cache      *dayCache
	lastToggle map[availability.Day]time.Time

	wg sync.WaitGroup
}

// NewEngine builds an engine for the given participant, seeded with their
// current marks. An empty participant id yields an inert engine whose
// operations all no-op; callers authenticate before editing.
func NewEngine(persister Persister, window availability.Window, participantID string, marks []availability.Day) *Engine {
	return &Engine{
		persister:     persister,
		window:        window,
		participantID: participantID,
		now:           time.Now,
		cache:         newDayCache(marks),
		lastToggle:    make(map[availability.Day]time.Time),
	}
}

// Window returns the coordination window the engine edits within.
func (e *Engine) Window() availability.Window {
	return e.window
}

// Days returns the current local view in chronological order.
func (e *Engine) Days() []availability.Day {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.snapshot()
}

// Unavailable reports whether day is marked in the local view.
func (e *Engine) Unavailable(day availability.Day) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.contains(day)
}

// Version returns the cache version. It changes on every local mutation
// and on every wholesale replacement, so a renderer can skip redraws when
// nothing moved.
func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.version
}

// Toggle flips one day between available and unavailable. The flip is
// visible locally at once; persistence runs in the background. A second
// toggle of the same day inside the debounce window is dropped outright,
// not queued, so a duplicated event produces one net flip.
func (e *Engine) Toggle(ctx context.Context, day availability.Day) {
	if e.participantID == "" || !e.window.Contains(day) {
		return
	}

	e.mu.Lock()
	if last, ok := e.lastToggle[day]; ok && e.now().Sub(last) < debounceWindow {
		e.mu.Unlock()
		return
	}
	e.lastToggle[day] = e.now()

	wasUnavailable := e.cache.contains(day)
	if wasUnavailable {
		e.cache.remove(day)
	} else {
		e.cache.add(day)
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		var err error
		if wasUnavailable {
			err = e.persister.ClearUnavailable(ctx, e.participantID, day)
		} else {
			err = e.persister.SetUnavailable(ctx, e.participantID, day)
		}
		if err != nil {
			e.repair(ctx, day, err)
		}
	}()
}

// DragRange marks every unmarked day between the anchors unavailable. The
// anchors may arrive in either order, and days outside the window or
// already marked are skipped, so a drag never clears anything. A drag that
// ends on its starting day without ever moving is the click it looks like
// and toggles instead.
func (e *Engine) DragRange(ctx context.Context, from, to availability.Day, moved bool) {
	if e.participantID == "" {
		return
	}
	if !moved && from == to {
		e.Toggle(ctx, from)
		return
	}

	// Clamp the anchors to the window before enumerating, so a stray
	// anchor far outside it cannot produce a huge span.
	low, high := from, to
	if high < low {
		low, high = high, low
	}
	if start := e.window.Start(); low < start {
		low = start
	}
	if end := e.window.End(); high > end {
		high = end
	}
	if high < low {
		return
	}

	var added []availability.Day
	e.mu.Lock()
	for _, day := range availability.Span(low, high) {
		if e.cache.contains(day) {
			continue
		}
		e.cache.add(day)
		added = append(added, day)
	}
	e.mu.Unlock()

	// Each day persists independently. One failing day does not hold up
	// or roll back the rest of the range.
	for _, day := range added {
		day := day
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.persister.SetUnavailable(ctx, e.participantID, day); err != nil {
				e.repair(ctx, day, err)
			}
		}()
	}
}

// Refresh replaces the local view with the store's.
func (e *Engine) Refresh(ctx context.Context) error {
	marks, err := e.persister.FetchMarks(ctx, e.participantID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cache.replace(marks)
	e.mu.Unlock()
	return nil
}

// Wait blocks until every in-flight persistence request has settled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// repair reconciles after a failed persist. There is no per-day rollback;
// the whole set is refetched and replaces local state. If the refetch
// fails too, the optimistic state stands until the next refresh.
func (e *Engine) repair(ctx context.Context, day availability.Day, cause error) {
	log.Printf("[WARN] persisting %s for participant %s failed, refetching: %v", day, e.participantID, cause)

	marks, err := e.persister.FetchMarks(ctx, e.participantID)
	if err != nil {
		log.Printf("[ERROR] refetch after failed persist: %v", err)
		return
	}

	e.mu.Lock()
	e.cache.replace(marks)
	e.mu.Unlock()
}
