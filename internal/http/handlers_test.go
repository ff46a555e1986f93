package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/openday/internal/api"
	"github.com/jw6ventures/openday/internal/auth"
	"github.com/jw6ventures/openday/internal/availability"
	"github.com/jw6ventures/openday/internal/config"
	"github.com/jw6ventures/openday/internal/holiday"
	"github.com/jw6ventures/openday/internal/store"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ListenAddr = ":0"
	cfg.BaseURL = "http://localhost:8080"
	cfg.Window = availability.Window{Year: 2026, StartMonth: time.May, EndMonth: time.September}
	cfg.ConflictMode = availability.ModeAny
	cfg.Viewer.Name = "planner"
	cfg.Viewer.Secret = "viewer-secret"
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func newTestHandler(m *memStore) *handler {
	cfg := testConfig()
	st := &store.Store{Identities: m, Marks: m, Admin: m}
	return &handler{
		cfg:      cfg,
		store:    st,
		resolver: auth.NewResolver(cfg, st),
		sessions: auth.NewSessionManager(cfg),
	}
}

func withRouteParams(r *http.Request, pairs ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(pairs); i += 2 {
		rctx.URLParams.Add(pairs[i], pairs[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asPrincipal(r *http.Request, p *auth.Principal) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), p))
}

func participantPrincipal(id string) *auth.Principal {
	return &auth.Principal{Identity: &store.Identity{ID: id, Label: "member-" + id}}
}

func TestLoginHandler(t *testing.T) {
	testCases := []struct {
		name        string
		body        string
		wantStatus  int
		wantViewer  bool
		wantCode    string
		storeBroken bool
	}{
		{
			name:       "viewer login",
			body:       `{"name":"planner","secret":"viewer-secret"}`,
			wantStatus: http.StatusOK,
			wantViewer: true,
		},
		{
			name:       "first participant login",
			body:       `{"name":"alice","secret":"s3cret"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing secret",
			body:       `{"name":"alice"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeMissingField,
		},
		{
			name:       "wrong viewer secret",
			body:       `{"name":"planner","secret":"guess"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   api.CodeInvalidCredential,
		},
		{
			name:       "malformed body",
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeBadRequest,
		},
		{
			name:        "store down",
			body:        `{"name":"alice","secret":"s3cret"}`,
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    api.CodeStoreUnavailable,
			storeBroken: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMemStore()
			if tc.storeBroken {
				m.err = errors.New("connection refused")
			}
			h := newTestHandler(m)

			req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			h.login(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("login() status = %d, want %d (body %q)", w.Code, tc.wantStatus, w.Body.String())
			}

			if tc.wantStatus != http.StatusOK {
				var e api.Error
				if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if e.Code != tc.wantCode {
					t.Fatalf("error code = %q, want %q", e.Code, tc.wantCode)
				}
				return
			}

			var resp api.LoginResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Viewer != tc.wantViewer {
				t.Fatalf("viewer = %v, want %v", resp.Viewer, tc.wantViewer)
			}
			if !tc.wantViewer {
				if resp.Participant == nil || resp.Participant.ID == "" || resp.Participant.Color == "" {
					t.Fatalf("participant = %+v, want created identity", resp.Participant)
				}
			}
			if resp.Window.Start != "2026-05-01" || resp.Window.End != "2026-09-30" {
				t.Fatalf("window = %+v", resp.Window)
			}

			cookies := w.Result().Cookies()
			if len(cookies) != 1 || cookies[0].Name != "openday_session" {
				t.Fatalf("login set cookies %+v, want one session cookie", cookies)
			}
		})
	}
}

func TestWindowHandler(t *testing.T) {
	h := newTestHandler(newMemStore())

	w := httptest.NewRecorder()
	h.window(w, httptest.NewRequest(http.MethodGet, "/api/window", nil))

	var resp api.Window
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := api.Window{Year: 2026, StartMonth: 5, EndMonth: 9, Start: "2026-05-01", End: "2026-09-30"}
	if resp != want {
		t.Fatalf("window = %+v, want %+v", resp, want)
	}
}

func TestListParticipantsHandler(t *testing.T) {
	m := newMemStore(
		store.Identity{ID: "id-1", Label: "alice", Color: "#e6194b", SecretHash: "x"},
		store.Identity{ID: "id-2", Label: "bob", Color: "#3cb44b", SecretHash: "y"},
	)
	h := newTestHandler(m)

	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/api/participants", nil), participantPrincipal("id-1"))
	w := httptest.NewRecorder()
	h.listParticipants(w, req)

	var resp []api.Participant
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 || resp[0].ID != "id-1" || resp[1].ID != "id-2" {
		t.Fatalf("participants = %+v", resp)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Fatal("participants payload leaks secret material")
	}
}

func TestListMarksAuthorization(t *testing.T) {
	testCases := []struct {
		name       string
		principal  *auth.Principal
		wantStatus int
	}{
		{"owner", participantPrincipal("id-1"), http.StatusOK},
		{"viewer", &auth.Principal{Viewer: true}, http.StatusOK},
		{"other participant", participantPrincipal("id-2"), http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMemStore(store.Identity{ID: "id-1", Label: "alice"})
			if err := m.SetUnavailable(context.Background(), "id-1", "2026-06-05"); err != nil {
				t.Fatalf("seed mark: %v", err)
			}
			h := newTestHandler(m)

			req := httptest.NewRequest(http.MethodGet, "/api/participants/id-1/marks", nil)
			req = withRouteParams(req, "id", "id-1")
			req = asPrincipal(req, tc.principal)
			w := httptest.NewRecorder()
			h.listMarks(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("listMarks() status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK {
				var days []string
				if err := json.NewDecoder(w.Body).Decode(&days); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if len(days) != 1 || days[0] != "2026-06-05" {
					t.Fatalf("days = %v", days)
				}
			}
		})
	}
}

func TestSetMarkHandler(t *testing.T) {
	testCases := []struct {
		name       string
		principal  *auth.Principal
		date       string
		wantStatus int
		storeErr   error
	}{
		{"own mark inside window", participantPrincipal("id-1"), "2026-06-05", http.StatusNoContent, nil},
		{"viewer cannot mark", &auth.Principal{Viewer: true}, "2026-06-05", http.StatusForbidden, nil},
		{"other participant", participantPrincipal("id-2"), "2026-06-05", http.StatusForbidden, nil},
		{"invalid date", participantPrincipal("id-1"), "june-5", http.StatusBadRequest, nil},
		{"non-canonical date", participantPrincipal("id-1"), "2026-6-5", http.StatusBadRequest, nil},
		{"outside window", participantPrincipal("id-1"), "2026-12-25", http.StatusBadRequest, nil},
		{"store failure", participantPrincipal("id-1"), "2026-06-05", http.StatusServiceUnavailable, errors.New("connection reset")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMemStore(store.Identity{ID: "id-1", Label: "alice"})
			m.err = tc.storeErr
			h := newTestHandler(m)

			req := httptest.NewRequest(http.MethodPut, "/api/participants/id-1/marks/"+tc.date, nil)
			req = withRouteParams(req, "id", "id-1", "date", tc.date)
			req = asPrincipal(req, tc.principal)
			w := httptest.NewRecorder()
			h.setMark(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("setMark() status = %d, want %d (body %q)", w.Code, tc.wantStatus, w.Body.String())
			}

			marked := m.hasMark("id-1", availability.Day(tc.date))
			if tc.wantStatus == http.StatusNoContent && !marked {
				t.Fatal("mark not stored")
			}
			if tc.wantStatus != http.StatusNoContent && marked {
				t.Fatal("rejected request still stored a mark")
			}
		})
	}
}

func TestSetMarkIdempotent(t *testing.T) {
	m := newMemStore(store.Identity{ID: "id-1", Label: "alice"})
	h := newTestHandler(m)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPut, "/api/participants/id-1/marks/2026-06-05", nil)
		req = withRouteParams(req, "id", "id-1", "date", "2026-06-05")
		req = asPrincipal(req, participantPrincipal("id-1"))
		w := httptest.NewRecorder()
		h.setMark(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("attempt %d: status = %d", i+1, w.Code)
		}
	}

	days, err := m.ListByIdentity(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("ListByIdentity: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("stored %d marks, want 1", len(days))
	}
}

func TestClearMarkHandler(t *testing.T) {
	m := newMemStore(store.Identity{ID: "id-1", Label: "alice"})
	if err := m.SetUnavailable(context.Background(), "id-1", "2026-06-05"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := newTestHandler(m)

	// Clearing twice is as fine as clearing once.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/api/participants/id-1/marks/2026-06-05", nil)
		req = withRouteParams(req, "id", "id-1", "date", "2026-06-05")
		req = asPrincipal(req, participantPrincipal("id-1"))
		w := httptest.NewRecorder()
		h.clearMark(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("attempt %d: status = %d", i+1, w.Code)
		}
	}

	if m.hasMark("id-1", "2026-06-05") {
		t.Fatal("mark survived clear")
	}
}

func TestAvailabilityHandler(t *testing.T) {
	m := newMemStore(
		store.Identity{ID: "id-1", Label: "alice", Color: "#e6194b"},
		store.Identity{ID: "id-2", Label: "bob", Color: "#3cb44b"},
	)
	ctx := context.Background()
	for _, day := range []availability.Day{"2026-06-05", "2026-06-06"} {
		if err := m.SetUnavailable(ctx, "id-1", day); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := m.SetUnavailable(ctx, "id-2", "2026-06-05"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := newTestHandler(m)

	get := func(query string) (*httptest.ResponseRecorder, api.Availability) {
		req := httptest.NewRequest(http.MethodGet, "/api/availability"+query, nil)
		req = asPrincipal(req, &auth.Principal{Viewer: true})
		w := httptest.NewRecorder()
		h.availability(w, req)
		var resp api.Availability
		if w.Code == http.StatusOK {
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
		return w, resp
	}

	// Default mode (any): both marked days flagged.
	w, resp := get("")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp.Mode != "any" {
		t.Fatalf("mode = %q, want any", resp.Mode)
	}
	if len(resp.Participants) != 2 {
		t.Fatalf("participants = %+v", resp.Participants)
	}
	if got := resp.Flagged; len(got) != 2 || got[0] != "2026-06-05" || got[1] != "2026-06-06" {
		t.Fatalf("flagged = %v", got)
	}
	if days := resp.Marks["id-2"]; len(days) != 1 || days[0] != "2026-06-05" {
		t.Fatalf("marks[id-2] = %v", days)
	}

	// all: only the shared day.
	if _, resp = get("?mode=all"); len(resp.Flagged) != 1 || resp.Flagged[0] != "2026-06-05" {
		t.Fatalf("all flagged = %v", resp.Flagged)
	}

	// Unknown mode is rejected.
	if w, _ = get("?mode=most"); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode status = %d", w.Code)
	}
}

func TestAvailabilityIncludesMarklessParticipants(t *testing.T) {
	m := newMemStore(
		store.Identity{ID: "id-1", Label: "alice"},
		store.Identity{ID: "id-2", Label: "bob"},
	)
	if err := m.SetUnavailable(context.Background(), "id-1", "2026-06-05"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := newTestHandler(m)

	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/api/availability?mode=all", nil), &auth.Principal{Viewer: true})
	w := httptest.NewRecorder()
	h.availability(w, req)

	var resp api.Availability
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if days, ok := resp.Marks["id-2"]; !ok || len(days) != 0 {
		t.Fatalf("markless participant missing from marks: %+v", resp.Marks)
	}
	// bob has no marks, so no day can be flagged under all.
	if len(resp.Flagged) != 0 {
		t.Fatalf("flagged = %v, want none", resp.Flagged)
	}
}

func TestRemoveParticipantHandler(t *testing.T) {
	testCases := []struct {
		name       string
		id         string
		confirm    string
		wantStatus int
	}{
		{"missing confirm", "id-1", "", http.StatusBadRequest},
		{"mismatched confirm", "id-1", "id-2", http.StatusBadRequest},
		{"confirmed", "id-1", "id-1", http.StatusNoContent},
		{"unknown identity", "ghost", "ghost", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMemStore(store.Identity{ID: "id-1", Label: "alice"})
			if err := m.SetUnavailable(context.Background(), "id-1", "2026-06-05"); err != nil {
				t.Fatalf("seed: %v", err)
			}
			h := newTestHandler(m)

			target := "/api/participants/" + tc.id
			if tc.confirm != "" {
				target += "?confirm=" + tc.confirm
			}
			req := httptest.NewRequest(http.MethodDelete, target, nil)
			req = withRouteParams(req, "id", tc.id)
			req = asPrincipal(req, &auth.Principal{Viewer: true})
			w := httptest.NewRecorder()
			h.removeParticipant(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("removeParticipant() status = %d, want %d", w.Code, tc.wantStatus)
			}

			_, err := m.GetByID(context.Background(), "id-1")
			if tc.wantStatus == http.StatusNoContent {
				if !errors.Is(err, store.ErrNotFound) {
					t.Fatal("identity survived confirmed removal")
				}
				if m.hasMark("id-1", "2026-06-05") {
					t.Fatal("marks survived removal")
				}
			} else if err != nil {
				t.Fatal("identity removed without proper confirmation")
			}
		})
	}
}

func TestListHolidaysHandler(t *testing.T) {
	m := newMemStore()

	t.Run("no provider configured", func(t *testing.T) {
		h := newTestHandler(m)
		req := asPrincipal(httptest.NewRequest(http.MethodGet, "/api/holidays", nil), participantPrincipal("id-1"))
		w := httptest.NewRecorder()
		h.listHolidays(w, req)

		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
			t.Fatalf("status = %d body = %q, want empty list", w.Code, w.Body.String())
		}
	})

	t.Run("provider rows filtered to window", func(t *testing.T) {
		h := newTestHandler(m)
		h.holidays = holidayProviderFunc(func(ctx context.Context, year int) ([]holiday.Holiday, error) {
			return []holiday.Holiday{
				{Date: "2026-01-01", Name: "New Year's Day"},
				{Date: "2026-07-03", LocalName: "Independence Day (observed)", Name: "Independence Day"},
			}, nil
		})

		req := asPrincipal(httptest.NewRequest(http.MethodGet, "/api/holidays", nil), participantPrincipal("id-1"))
		w := httptest.NewRecorder()
		h.listHolidays(w, req)

		var resp []api.Holiday
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp) != 1 || resp[0].Date != "2026-07-03" {
			t.Fatalf("holidays = %+v", resp)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		h := newTestHandler(m)
		h.holidays = holidayProviderFunc(func(ctx context.Context, year int) ([]holiday.Holiday, error) {
			return nil, errors.New("upstream down")
		})

		req := asPrincipal(httptest.NewRequest(http.MethodGet, "/api/holidays", nil), participantPrincipal("id-1"))
		w := httptest.NewRecorder()
		h.listHolidays(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
	})
}

type holidayProviderFunc func(ctx context.Context, year int) ([]holiday.Holiday, error)

func (f holidayProviderFunc) Holidays(ctx context.Context, year int) ([]holiday.Holiday, error) {
	return f(ctx, year)
}

// memStore is an in-memory Store backend; one value serves all three
// repository interfaces so Snapshot and RemoveIdentity can stay
// consistent with the identity list.
type memStore struct {
	mu         sync.Mutex
	identities []store.Identity
	marks      map[string]availability.DaySet
	err        error // when set, every operation fails with it
}

func newMemStore(identities ...store.Identity) *memStore {
	return &memStore{
		identities: identities,
		marks:      make(map[string]availability.DaySet),
	}
}

func (m *memStore) Create(ctx context.Context, identity store.Identity) (*store.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.identities {
		if strings.EqualFold(existing.Label, identity.Label) {
			return nil, store.ErrDuplicateLabel
		}
	}
	m.identities = append(m.identities, identity)
	return &identity, nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*store.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.identities {
		if identity.ID == id {
			copied := identity
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetByLabel(ctx context.Context, label string) (*store.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.identities {
		if strings.EqualFold(identity.Label, label) {
			copied := identity
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) List(ctx context.Context) ([]store.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Identity(nil), m.identities...), nil
}

func (m *memStore) Count(ctx context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities), nil
}

func (m *memStore) SetSecretHash(ctx context.Context, id, hash string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.identities {
		if m.identities[i].ID == id {
			if m.identities[i].SecretHash == "" {
				m.identities[i].SecretHash = hash
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) SetUnavailable(ctx context.Context, identityID string, day availability.Day) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasIdentityLocked(identityID) {
		return store.ErrNotFound
	}
	set, ok := m.marks[identityID]
	if !ok {
		set = availability.NewDaySet()
		m.marks[identityID] = set
	}
	set.Add(day)
	return nil
}

func (m *memStore) ClearUnavailable(ctx context.Context, identityID string, day availability.Day) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.marks[identityID]; ok {
		set.Remove(day)
	}
	return nil
}

func (m *memStore) ListByIdentity(ctx context.Context, identityID string) ([]availability.Day, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.marks[identityID]; ok {
		return set.Days(), nil
	}
	return []availability.Day{}, nil
}

func (m *memStore) Snapshot(ctx context.Context) (availability.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(availability.Snapshot, len(m.identities))
	for _, identity := range m.identities {
		if set, ok := m.marks[identity.ID]; ok {
			snap[identity.ID] = set.Days()
		} else {
			snap[identity.ID] = []availability.Day{}
		}
	}
	return snap, nil
}

func (m *memStore) RemoveIdentity(ctx context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.identities {
		if m.identities[i].ID == id {
			delete(m.marks, id)
			m.identities = append(m.identities[:i], m.identities[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) hasMark(identityID string, day availability.Day) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.marks[identityID]
	return ok && set.Contains(day)
}

func (m *memStore) hasIdentityLocked(id string) bool {
	for _, identity := range m.identities {
		if identity.ID == id {
			return true
		}
	}
	return false
}

var (
	_ store.IdentityRepository = (*memStore)(nil)
	_ store.MarkRepository     = (*memStore)(nil)
	_ store.AdminRepository    = (*memStore)(nil)
)
