// Package api wires all API routes onto a chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saulto/saulto/internal/api/handler"
	"github.com/saulto/saulto/internal/api/middleware"
	"github.com/saulto/saulto/internal/health"
)

// Handlers bundles the route handlers mounted by NewRouter.
type Handlers struct {
	Health      *health.Handler
	Auth        *handler.AuthHandler
	OAuth       *handler.OAuthHandler
	Connections *handler.ConnectionHandler
	Warehouse   *handler.WarehouseHandler
	Chat        *handler.ChatHandler
	Models      *handler.SQLModelHandler
}

// NewRouter builds the HTTP router. The OAuth callback and the health and
// auth routes are public; everything else requires a Bearer token.
func NewRouter(h Handlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes.
		r.Get("/health", h.Health.ServeHealth)
		r.Get("/ready", h.Health.ServeReady)
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/refresh", h.Auth.Refresh)
		// The provider redirects the browser here; the signed state token
		// authenticates the request.
		r.Get("/oauth/{source}/callback", h.OAuth.Callback)

		// Authenticated routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(jwtSecret))

			r.Post("/auth/logout", h.Auth.Logout)

			r.With(middleware.RequirePermission("connection:create")).
				Get("/connect/{source}", h.OAuth.Connect)

			r.Route("/connections", func(r chi.Router) {
				r.With(middleware.RequirePermission("connection:read")).Get("/", h.Connections.List)
				r.With(middleware.RequirePermission("connection:read")).Get("/{id}", h.Connections.Get)
				r.With(middleware.RequirePermission("connection:delete")).Delete("/{id}", h.Connections.Delete)
				r.With(middleware.RequirePermission("sync:trigger")).Post("/{id}/sync", h.Connections.TriggerSync)
				r.With(middleware.RequirePermission("run:read")).Get("/{id}/runs", h.Connections.ListRuns)
			})

			r.Route("/warehouse", func(r chi.Router) {
				r.Use(middleware.RequirePermission("warehouse:read"))
				r.Get("/tables", h.Warehouse.ListTables)
				r.Get("/tables/{table}/columns", h.Warehouse.ListColumns)
			})

			r.Route("/chat/messages", func(r chi.Router) {
				r.With(middleware.RequirePermission("chat:read")).Get("/", h.Chat.List)
				r.With(middleware.RequirePermission("chat:write")).Post("/", h.Chat.Post)
			})

			r.Route("/models", func(r chi.Router) {
				r.With(middleware.RequirePermission("model:read")).Get("/", h.Models.List)
				r.With(middleware.RequirePermission("model:write")).Post("/", h.Models.Create)
				r.With(middleware.RequirePermission("model:deploy")).Post("/{id}/deploy", h.Models.Deploy)
			})
		})
	})

	return r
}
