// Package httpserver wires the JSON API, the calendar feed, and the
// operational endpoints onto a chi router.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/openday/internal/auth"
	"github.com/jw6ventures/openday/internal/config"
	"github.com/jw6ventures/openday/internal/holiday"
	"github.com/jw6ventures/openday/internal/http/csrf"
	"github.com/jw6ventures/openday/internal/http/ratelimit"
	"github.com/jw6ventures/openday/internal/metrics"
	"github.com/jw6ventures/openday/internal/store"
)

// NewRouter builds the full route tree. holidays may be nil when no
// provider is configured; /api/holidays then serves an empty list.
func NewRouter(cfg *config.Config, st *store.Store, resolver *auth.Resolver, sessions *auth.SessionManager, holidays holiday.Provider) http.Handler {
	r := chi.NewRouter()

	// Login: 5 requests per second, burst of 10
	loginLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	h := &handler{cfg: cfg, store: st, resolver: resolver, sessions: sessions, holidays: holidays}
	guard := auth.NewMiddleware(resolver, sessions, st)

	r.Route("/api", func(r chi.Router) {
		r.With(loginLimiter.Middleware()).Post("/login", h.login)
		r.Get("/window", h.window)

		r.Group(func(r chi.Router) {
			r.Use(guard.RequireAuth)
			// CSRF runs after RequireAuth: it only checks tokens on
			// session-authenticated mutations.
			r.Use(csrf.Middleware(cfg))

			r.Post("/logout", h.logout)
			r.Get("/participants", h.listParticipants)
			r.Get("/participants/{id}/marks", h.listMarks)
			r.Put("/participants/{id}/marks/{date}", h.setMark)
			r.Delete("/participants/{id}/marks/{date}", h.clearMark)
			r.Get("/holidays", h.listHolidays)

			r.Group(func(r chi.Router) {
				r.Use(guard.RequireViewer)
				r.Get("/availability", h.availability)
				r.Delete("/participants/{id}", h.removeParticipant)
			})
		})
	})

	r.With(guard.RequireAuth).Get("/feed.ics", h.feed)

	return r
}
