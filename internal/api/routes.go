package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes wires the /api/v1 surface. Everything except /auth and
// /health requires a bearer token; tenant-scoped groups additionally
// resolve membership per request.
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Tenant directory
		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", s.handleListTenants)
			r.Post("/", s.handleCreateTenant)
			r.Get("/{id}", s.handleGetTenant)
			r.Put("/{id}", s.handleUpdateTenant)

			r.Get("/{id}/members", s.handleListMembers)
			r.Post("/{id}/members", s.handleInviteMember)
			r.Put("/{id}/members/{memberId}/revoke", s.handleRevokeMember)
		})
		r.Post("/memberships/accept", s.handleAcceptInvitations)

		// Customers
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", s.handleListCustomers)
			r.Post("/", s.handleCreateCustomer)
			r.Get("/{id}", s.handleGetCustomer)
			r.Put("/{id}", s.handleUpdateCustomer)
			r.Delete("/{id}", s.handleDeleteCustomer)
		})

		// Reference data
		r.Route("/loan-types", func(r chi.Router) {
			r.Get("/", s.handleListLoanTypes)
			r.Post("/", s.handleCreateLoanType)
			r.Get("/{id}", s.handleGetLoanType)
			r.Put("/{id}", s.handleUpdateLoanType)
			r.Delete("/{id}", s.handleDeleteLoanType)

			r.Get("/{id}/documents", s.handleGetLoanTypeDocuments)
			r.Put("/{id}/documents", s.handleReplaceLoanTypeDocuments)
		})

		r.Route("/document-checklist", func(r chi.Router) {
			r.Get("/", s.handleListChecklistItems)
			r.Post("/", s.handleCreateChecklistItem)
			r.Get("/{id}", s.handleGetChecklistItem)
			r.Put("/{id}", s.handleUpdateChecklistItem)
			r.Delete("/{id}", s.handleDeleteChecklistItem)
		})

		r.Route("/loan-status-pipeline", func(r chi.Router) {
			r.Get("/", s.handleListStages)
			r.Post("/", s.handleCreateStage)
			r.Get("/{id}", s.handleGetStage)
			r.Put("/{id}", s.handleUpdateStage)
			r.Delete("/{id}", s.handleDeleteStage)
		})

		// Loan cases
		r.Route("/loan-cases", func(r chi.Router) {
			r.Get("/", s.handleListCases)
			r.Post("/", s.handleCreateCase)
			r.Get("/{id}", s.handleGetCase)
			r.Put("/{id}", s.handleUpdateCase)
			r.Put("/{id}/stage", s.handleMoveCaseStage)
		})

		// Dashboard and audit
		r.Get("/dashboard/summary", s.handleDashboardSummary)
		r.Get("/events", s.handleListEvents)
	})
}
