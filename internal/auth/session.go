package auth

import (
	"crypto/sha256"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/jw6ventures/openday/internal/config"
)

const sessionTTL = 7 * 24 * time.Hour

// SessionManager manages browser sessions.
type SessionManager struct {
	cookieName string
	codec      *securecookie.SecureCookie
	secure     bool
}

type sessionPayload struct {
	ParticipantID string `json:"participant_id,omitempty"`
	Viewer        bool   `json:"viewer,omitempty"`
	Exp           int64  `json:"exp"`
}

func NewSessionManager(cfg *config.Config) *SessionManager {
	hash := sha256.Sum256([]byte(cfg.Session.Secret))
	hashKey := hash[:]

	// Derive an AES-256 sized block key to avoid invalid key length errors.
	blockKey := hash[:]
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL / time.Second))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{
		cookieName: "openday_session",
		codec:      sc,
		secure:     secure,
	}
}

// Issue sets a session cookie for the principal.
func (m *SessionManager) Issue(w http.ResponseWriter, p *Principal) error {
	value := sessionPayload{
		ParticipantID: p.ID(),
		Viewer:        p.Viewer,
		Exp:           time.Now().Add(sessionTTL).Unix(),
	}

	encoded, err := m.codec.Encode(m.cookieName, value)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  time.Now().Add(sessionTTL),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    m.cookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		Secure:  m.secure,
	})
}

// Current extracts the session claims from the request, if a valid
// unexpired session cookie is present.
func (m *SessionManager) Current(r *http.Request) (participantID string, viewer bool, ok bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return "", false, false
	}

	var value sessionPayload
	if err := m.codec.Decode(m.cookieName, c.Value, &value); err != nil {
		return "", false, false
	}

	if time.Unix(value.Exp, 0).Before(time.Now()) {
		return "", false, false
	}
	if !value.Viewer && value.ParticipantID == "" {
		return "", false, false
	}

	return value.ParticipantID, value.Viewer, true
}
