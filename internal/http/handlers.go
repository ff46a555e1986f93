package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/openday/internal/api"
	"github.com/jw6ventures/openday/internal/auth"
	"github.com/jw6ventures/openday/internal/availability"
	"github.com/jw6ventures/openday/internal/config"
	"github.com/jw6ventures/openday/internal/holiday"
	httperrors "github.com/jw6ventures/openday/internal/http/errors"
	"github.com/jw6ventures/openday/internal/metrics"
	"github.com/jw6ventures/openday/internal/store"
)

type handler struct {
	cfg      *config.Config
	store    *store.Store
	resolver *auth.Resolver
	sessions *auth.SessionManager
	holidays holiday.Provider // nil when no provider is configured
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// storeError maps store failures onto the envelope. Anything that is not a
// missing row is treated as transient: the database came up once and the
// client may retry.
func storeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		httperrors.Write(w, http.StatusNotFound, api.CodeNotFound, "no such participant")
		return
	}
	httperrors.LogError(r, message, err)
	httperrors.Write(w, http.StatusServiceUnavailable, api.CodeStoreUnavailable, "try again shortly")
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		httperrors.BadRequestError(w, r, err, "malformed login body")
		return
	}

	principal, err := h.resolver.Authenticate(r.Context(), creds.Name, creds.Secret)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingField):
			httperrors.Write(w, http.StatusBadRequest, api.CodeMissingField, err.Error())
		case errors.Is(err, auth.ErrInvalidCredential):
			httperrors.Write(w, http.StatusUnauthorized, api.CodeInvalidCredential, "invalid credentials")
		case errors.Is(err, store.ErrUnavailable):
			httperrors.LogError(r, "login store failure", err)
			httperrors.Write(w, http.StatusServiceUnavailable, api.CodeStoreUnavailable, "try again shortly")
		default:
			httperrors.InternalError(w, r, err, "login failed")
		}
		return
	}

	if err := h.sessions.Issue(w, principal); err != nil {
		httperrors.InternalError(w, r, err, "failed to issue session")
		return
	}

	respondJSON(w, http.StatusOK, api.LoginResponse{
		Viewer:      principal.Viewer,
		Participant: participantOf(principal),
		Window:      windowPayload(h.cfg.Window),
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) window(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, windowPayload(h.cfg.Window))
}

func (h *handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	identities, err := h.store.Identities.List(r.Context())
	if err != nil {
		storeError(w, r, err, "list participants")
		return
	}

	out := make([]api.Participant, 0, len(identities))
	for _, identity := range identities {
		out = append(out, api.Participant{ID: identity.ID, Label: identity.Label, Color: identity.Color})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handler) listMarks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !selfOrViewer(r, id) {
		httperrors.Write(w, http.StatusForbidden, api.CodeForbidden, "marks are visible to their owner and the viewer")
		return
	}

	days, err := h.store.Marks.ListByIdentity(r.Context(), id)
	if err != nil {
		storeError(w, r, err, "list marks")
		return
	}
	respondJSON(w, http.StatusOK, dayStrings(days))
}

func (h *handler) setMark(w http.ResponseWriter, r *http.Request) {
	h.mutateMark(w, r, "set", h.store.Marks.SetUnavailable)
}

func (h *handler) clearMark(w http.ResponseWriter, r *http.Request) {
	h.mutateMark(w, r, "clear", h.store.Marks.ClearUnavailable)
}

func (h *handler) mutateMark(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, string, availability.Day) error) {
	id := chi.URLParam(r, "id")
	if !selfOnly(r, id) {
		httperrors.Write(w, http.StatusForbidden, api.CodeForbidden, "participants change only their own marks")
		return
	}

	day, err := availability.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid date")
		return
	}
	if !h.cfg.Window.Contains(day) {
		httperrors.Write(w, http.StatusBadRequest, api.CodeBadRequest, "date outside the coordination window")
		return
	}

	if err := apply(r.Context(), id, day); err != nil {
		storeError(w, r, err, action+" mark")
		return
	}
	metrics.CountMarkMutation(action)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) availability(w http.ResponseWriter, r *http.Request) {
	mode := h.cfg.ConflictMode
	if s := r.URL.Query().Get("mode"); s != "" {
		parsed, err := availability.ParseMode(s)
		if err != nil {
			httperrors.BadRequestError(w, r, err, "invalid mode")
			return
		}
		mode = parsed
	}

	identities, err := h.store.Identities.List(r.Context())
	if err != nil {
		storeError(w, r, err, "list participants")
		return
	}
	snap, err := h.store.Marks.Snapshot(r.Context())
	if err != nil {
		storeError(w, r, err, "snapshot marks")
		return
	}

	participants := make([]api.Participant, 0, len(identities))
	for _, identity := range identities {
		participants = append(participants, api.Participant{ID: identity.ID, Label: identity.Label, Color: identity.Color})
	}
	marks := make(map[string][]string, len(snap))
	for id, days := range snap {
		marks[id] = dayStrings(days)
	}

	respondJSON(w, http.StatusOK, api.Availability{
		Mode:         string(mode),
		Participants: participants,
		Marks:        marks,
		Flagged:      dayStrings(availability.Classify(snap, mode).Days()),
	})
}

func (h *handler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.URL.Query().Get("confirm") != id {
		httperrors.Write(w, http.StatusBadRequest, api.CodeBadRequest, "removal requires confirm=<participant id>")
		return
	}

	if err := h.store.Admin.RemoveIdentity(r.Context(), id); err != nil {
		storeError(w, r, err, "remove participant")
		return
	}
	httperrors.LogInfo(r, "participant removed: "+id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listHolidays(w http.ResponseWriter, r *http.Request) {
	out := []api.Holiday{}
	if h.holidays == nil {
		respondJSON(w, http.StatusOK, out)
		return
	}

	all, err := h.holidays.Holidays(r.Context(), h.cfg.Window.Year)
	if err != nil {
		httperrors.LogError(r, "holiday lookup failed", err)
		httperrors.Write(w, http.StatusServiceUnavailable, api.CodeStoreUnavailable, "holiday lookup failed")
		return
	}

	for _, hd := range holiday.InWindow(all, h.cfg.Window) {
		out = append(out, api.Holiday{Date: string(hd.Date), LocalName: hd.LocalName, Name: hd.Name})
	}
	respondJSON(w, http.StatusOK, out)
}

func participantOf(p *auth.Principal) *api.Participant {
	if p == nil || p.Identity == nil {
		return nil
	}
	return &api.Participant{ID: p.Identity.ID, Label: p.Identity.Label, Color: p.Identity.Color}
}

func windowPayload(w availability.Window) api.Window {
	return api.Window{
		Year:       w.Year,
		StartMonth: int(w.StartMonth),
		EndMonth:   int(w.EndMonth),
		Start:      string(w.Start()),
		End:        string(w.End()),
	}
}

func dayStrings(days []availability.Day) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, string(d))
	}
	return out
}

func selfOnly(r *http.Request, id string) bool {
	p, ok := auth.PrincipalFromContext(r.Context())
	return ok && p.Identity != nil && p.Identity.ID == id
}

func selfOrViewer(r *http.Request, id string) bool {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return false
	}
	return p.Viewer || (p.Identity != nil && p.Identity.ID == id)
}
