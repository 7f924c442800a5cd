/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for the dealer portal
  5. Authenticate: Bearer token -> claims (everything under /api)

ROUTE GROUPS AND ROLES:
  /api/products/*       read: any role, mutate: admin
  /api/requests/*       submit: client/admin, approve/reject: admin
  /api/clients/*        owning client or admin
  /api/users/{userID}/points   owning user or admin
  /api/admin/points/*   admin
  /api/sales/*          dealer or admin
  /api/rewards/*        read+redeem: any role, manage: admin
  /api/scenarios/*      read: any role, load/reset: admin

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authenticate and RequireRole middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, tokens *TokenService) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(tokens))

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.GetProduct)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(RoleAdmin))
				r.Post("/", h.CreateProduct)
				r.Post("/{id}/restock", h.RestockProduct)
			})
		})

		// Purchase request routes
		r.Route("/requests", func(r chi.Router) {
			r.With(RequireRole(RoleClient, RoleAdmin)).Post("/", h.SubmitRequest)
			r.Get("/{id}", h.GetRequest)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(RoleAdmin))
				r.Get("/pending", h.ListPendingRequests)
				r.Post("/{id}/approve", h.ApproveRequest)
				r.Post("/{id}/reject", h.RejectRequest)
			})
		})

		// Client view routes (ownership checked in the handlers)
		r.Route("/clients/{clientID}", func(r chi.Router) {
			r.Get("/inventory", h.GetClientInventory)
			r.Get("/requests", h.GetClientRequests)
			r.Get("/orders", h.GetClientOrders)
		})

		// Points routes
		r.Get("/users/{userID}/points", h.GetPoints)
		r.Route("/admin/points", func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Post("/earn", h.EarnPoints)
			r.Post("/adjust", h.AdjustPoints)
			r.Post("/expire", h.ExpirePoints)
		})

		// Sale routes
		r.Route("/sales", func(r chi.Router) {
			r.Use(RequireRole(RoleDealer, RoleAdmin))
			r.Post("/", h.RecordSale)
			r.Post("/cancel", h.CancelSale)
		})

		// Reward routes
		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", h.ListRewards)
			r.Get("/{id}", h.GetReward)
			r.Post("/{id}/redeem", h.RedeemReward)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(RoleAdmin))
				r.Post("/", h.CreateReward)
				r.Post("/{id}/activate", h.SetRewardActive)
				r.Post("/{id}/redemptions/{redemptionID}", h.UpdateRedemptionStatus)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(RoleAdmin))
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetData)
			})
		})
	})

	return r
}
