/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request, echoed in logs
  2. RequestLogger: One zerolog line per request
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the frontend
  5. Auth:          Bearer JWT on everything under /api

ROUTE GROUPS:
  /health               Liveness, no auth
  /api/accounts/*       Accounts, balances and the last drift report
  /api/members/*        Members
  /api/suppliers        Suppliers
  /api/revenue-types    Revenue types
  /api/payments/in/*    Inbound payments
  /api/payments/out/*   Outbound payments
  /api/cashbook[/export]
  /api/audit-logs
  /api/admin/seed

  Each route is wrapped with Require(op); the role matrix lives in access.

SEE ALSO:
  - handlers.go: Handler implementations
  - scheduler.go: Drift monitor
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/club-ledger/access"
)

// NewRouter creates a new router with all routes configured.
// A nil drift monitor leaves /api/accounts/drift unmounted.
func NewRouter(h *Handler, auth *Authenticator, drift *DriftMonitor, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		view := Require(access.ViewReports)

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.With(view).Get("/", h.ListAccounts)
			if drift != nil {
				r.With(view).Get("/drift", drift.ServeHTTP)
			}
			r.With(Require(access.ManageAccounts)).Post("/", h.CreateAccount)
			r.With(view).Get("/{id}", h.GetAccount)
			r.With(Require(access.ManageAccounts)).Put("/{id}/active", h.SetAccountActive)
		})

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.With(view).Get("/", h.ListMembers)
			r.With(Require(access.ManageMembers)).Post("/", h.RegisterMember)
			r.With(view).Get("/{id}", h.GetMember)
			r.With(Require(access.DeleteMembers)).Delete("/{id}", h.DeleteMember)
		})

		r.With(view).Get("/suppliers", h.ListSuppliers)
		r.With(Require(access.ManageSuppliers)).Post("/suppliers", h.CreateSupplier)

		r.With(view).Get("/revenue-types", h.ListRevenueTypes)
		r.With(Require(access.ManageAccounts)).Post("/revenue-types", h.CreateRevenueType)

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			record := Require(access.RecordPayments)
			remove := Require(access.DeletePayments)

			r.Route("/in", func(r chi.Router) {
				r.With(view).Get("/", h.ListInboundPayments)
				r.With(record).Post("/", h.RecordInboundPayment)
				r.With(view).Get("/{id}", h.GetInboundPayment)
				r.With(record).Put("/{id}", h.UpdateInboundPayment)
				r.With(remove).Delete("/{id}", h.DeleteInboundPayment)
			})
			r.Route("/out", func(r chi.Router) {
				r.With(view).Get("/", h.ListOutboundPayments)
				r.With(record).Post("/", h.RecordOutboundPayment)
				r.With(view).Get("/{id}", h.GetOutboundPayment)
				r.With(record).Put("/{id}", h.UpdateOutboundPayment)
				r.With(remove).Delete("/{id}", h.DeleteOutboundPayment)
			})
		})

		// Report routes
		r.With(view).Get("/cashbook", h.GetCashbook)
		r.With(view).Get("/cashbook/export", h.ExportCashbook)
		r.With(Require(access.ViewAudit)).Get("/audit-logs", h.ListAuditLogs)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.With(Require(access.ManageAccounts)).Post("/seed", h.Seed)
		})
	})

	return r
}
