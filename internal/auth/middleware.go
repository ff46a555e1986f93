package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jw6ventures/openday/internal/api"
	httperrors "github.com/jw6ventures/openday/internal/http/errors"
	"github.com/jw6ventures/openday/internal/store"
)

// Middleware guards routes with session-or-Basic authentication.
type Middleware struct {
	resolver *Resolver
	sessions *SessionManager
	store    *store.Store
}

func NewMiddleware(resolver *Resolver, sessions *SessionManager, st *store.Store) *Middleware {
	return &Middleware{resolver: resolver, sessions: sessions, store: st}
}

// RequireAuth admits requests carrying valid HTTP Basic credentials or a
// valid session cookie, and stores the principal on the context. Explicit
// credentials win when both are present.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name, secret, ok := r.BasicAuth(); ok {
			principal, err := m.resolver.Authenticate(r.Context(), name, secret)
			if err != nil {
				m.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
			return
		}

		if id, viewer, ok := m.sessions.Current(r); ok {
			principal, err := m.sessionPrincipal(r.Context(), id, viewer)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
				return
			case errors.Is(err, store.ErrUnavailable):
				httperrors.LogError(r, "session lookup failed", err)
				httperrors.Write(w, http.StatusServiceUnavailable, api.CodeStoreUnavailable, "try again shortly")
				return
			}
			// Stale session (identity removed): fall through to 401.
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="OpenDay"`)
		httperrors.Write(w, http.StatusUnauthorized, api.CodeInvalidCredential, "authentication required")
	})
}

// RequireViewer admits only the privileged viewer. It must run inside
// RequireAuth.
func (m *Middleware) RequireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || !p.Viewer {
			httperrors.Write(w, http.StatusForbidden, api.CodeForbidden, "viewer access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) sessionPrincipal(ctx context.Context, id string, viewer bool) (*Principal, error) {
	if viewer {
		return &Principal{Viewer: true, FromSession: true}, nil
	}
	identity, err := m.store.Identities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return &Principal{Identity: identity, FromSession: true}, nil
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrMissingField):
		httperrors.Write(w, http.StatusBadRequest, api.CodeMissingField, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		httperrors.LogError(r, "authentication store unreachable", err)
		httperrors.Write(w, http.StatusServiceUnavailable, api.CodeStoreUnavailable, "try again shortly")
	default:
		w.Header().Set("WWW-Authenticate", `Basic realm="OpenDay"`)
		httperrors.Write(w, http.StatusUnauthorized, api.CodeInvalidCredential, "invalid credentials")
	}
}
