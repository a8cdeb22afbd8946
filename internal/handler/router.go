/*
Package handler provides the HTTP handlers and routing setup for the eduportal shell gateway.

This file defines the main Router, applying middleware like logging, CORS and IP-based rate
limiting before delegating requests to the session, navigation and presence handlers.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"eduportal/internal/pkg/limiter"
	"eduportal/internal/pkg/logx"
	"eduportal/internal/pkg/resp"
)

// AppMount is the path prefix under which the UI shell's pages are gated.
const AppMount = "/app"

// Router sets up the main HTTP routing table (chi.Router) for the gateway.
// ctx bounds background work such as the rate limiter sweep.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	loginLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(deps.Config.LoginRate), deps.Config.LoginBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "eduportal gateway",
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/session", func(s chi.Router) {
			s.Get("/", HandleGetSession(deps))
			s.With(loginLimiter.Middleware).Post("/login", HandleLogin(deps))
			s.Post("/logout", HandleLogout(deps))
		})

		api.Get("/routes", HandleListRoutes(deps))
		api.Get("/navigate", HandleNavigate(deps))
	})

	r.Route(AppMount, func(app chi.Router) {
		app.Use(NavigationGuard(deps.Resolver, AppMount))
		app.Get("/*", HandleShell(deps))
	})

	r.Get("/ws/presence", HandlePresence(deps, wsUpgrader))

	return r
}
