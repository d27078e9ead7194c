// Package server assembles the HTTP router from the auth and tracker handlers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/offsetx/carbon-tracker/internal/auth"
	"github.com/offsetx/carbon-tracker/internal/logging"
	"github.com/offsetx/carbon-tracker/internal/metrics"
	"github.com/offsetx/carbon-tracker/internal/middleware"
	"github.com/offsetx/carbon-tracker/internal/tracker"
)

// Store is everything the handlers need from the credential store.
type Store interface {
	auth.UserStore
	tracker.ActivityStore
}

// Deps wires the router. Reports may be nil to disable share reports.
type Deps struct {
	Store       Store
	Sessions    auth.Sessions
	Reports     tracker.ReportStore
	Cookie      auth.CookieConfig
	CORSOrigins []string
	Log         *logging.Logger
	Metrics     *metrics.Metrics
}

// NewRouter builds the full route table.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.Cookie.Name == "" {
		d.Cookie.Name = auth.DefaultSessionCookie
	}

	authHandler := auth.NewHandler(d.Store, d.Sessions, d.Cookie, d.Log.Named("auth"), d.Metrics)
	trackerHandler := tracker.NewHandler(
		tracker.NewService(d.Store, d.Reports), d.Log.Named("tracker"), d.Metrics)
	requireAuth := middleware.RequireAuth(d.Sessions, d.Cookie.Name, d.Log.Named("auth"))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Instrument(d.Log.Named("http"), d.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((5 * time.Minute).Seconds()),
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/leaderboard", trackerHandler.Leaderboard)

		// Session required
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/user", authHandler.Me)
			trackerHandler.Routes(r)
		})
	})

	return r
}
