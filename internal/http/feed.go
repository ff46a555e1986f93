package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"

	"github.com/jw6ventures/openday/internal/api"
	"github.com/jw6ventures/openday/internal/auth"
	"github.com/jw6ventures/openday/internal/availability"
	httperrors "github.com/jw6ventures/openday/internal/http/errors"
)

const icsDateFormat = "20060102"

// feed renders the window as an iCalendar feed of all-day events. The bare
// feed lists open days (nobody unavailable) and is viewer-only; with
// ?participant= it lists that participant's unavailable days instead.
func (h *handler) feed(w http.ResponseWriter, r *http.Request) {
	if participantID := r.URL.Query().Get("participant"); participantID != "" {
		h.participantFeed(w, r, participantID)
		return
	}
	h.openDaysFeed(w, r)
}

func (h *handler) openDaysFeed(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok || !p.Viewer {
		httperrors.Write(w, http.StatusForbidden, api.CodeForbidden, "the aggregate feed is viewer-only")
		return
	}

	snap, err := h.store.Marks.Snapshot(r.Context())
	if err != nil {
		storeError(w, r, err, "snapshot marks")
		return
	}

	blocked := availability.Classify(snap, availability.ModeAny)
	open := make([]availability.Day, 0)
	for _, day := range h.cfg.Window.Days() {
		if !blocked.Contains(day) {
			open = append(open, day)
		}
	}

	writeCalendar(w, r, "OpenDay open days", "open", "Open day", open)
}

func (h *handler) participantFeed(w http.ResponseWriter, r *http.Request, participantID string) {
	if !selfOrViewer(r, participantID) {
		httperrors.Write(w, http.StatusForbidden, api.CodeForbidden, "marks are visible to their owner and the viewer")
		return
	}

	identity, err := h.store.Identities.GetByID(r.Context(), participantID)
	if err != nil {
		storeError(w, r, err, "load participant")
		return
	}
	days, err := h.store.Marks.ListByIdentity(r.Context(), participantID)
	if err != nil {
		storeError(w, r, err, "list marks")
		return
	}

	writeCalendar(w, r, "OpenDay "+identity.Label, "mark-"+identity.ID, identity.Label+" unavailable", days)
}

func writeCalendar(w http.ResponseWriter, r *http.Request, name, uidPrefix, summary string, days []availability.Day) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, "-//openday//calendar feed//EN")
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText("X-WR-CALNAME", name)

	stamp := time.Now().UTC()
	for _, day := range days {
		event := ical.NewComponent(ical.CompEvent)
		// Deterministic UIDs so resubscribing clients see the same events.
		event.Props.SetText(ical.PropUID, fmt.Sprintf("%s-%s@openday", uidPrefix, day))
		event.Props.SetText(ical.PropSummary, summary)
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp)

		start := ical.Prop{
			Name:   ical.PropDateTimeStart,
			Value:  day.Time().Format(icsDateFormat),
			Params: ical.Params{"VALUE": []string{"DATE"}},
		}
		event.Props[ical.PropDateTimeStart] = []ical.Prop{start}

		// DTEND is exclusive for all-day events.
		end := ical.Prop{
			Name:   ical.PropDateTimeEnd,
			Value:  day.Next().Time().Format(icsDateFormat),
			Params: ical.Params{"VALUE": []string{"DATE"}},
		}
		event.Props[ical.PropDateTimeEnd] = []ical.Prop{end}

		cal.Children = append(cal.Children, event)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		httperrors.InternalError(w, r, err, "encode calendar feed")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
