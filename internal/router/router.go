package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/boostgrid/backend/internal/auth"
	"github.com/boostgrid/backend/internal/handlers"
	"github.com/boostgrid/backend/internal/metrics"
	"github.com/boostgrid/backend/internal/middleware"
)

// New returns an http.Handler serving the API under /api/v1, with
// /healthz and /metrics at the root.
func New(
	authHandler *auth.Handler,
	orderHandler *handlers.OrderHandler,
	walletHandler *handlers.WalletHandler,
	taskHandler *handlers.TaskHandler,
	authenticate func(http.Handler) http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.HTTPMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", orderHandler.Create)
				r.Get("/", orderHandler.List)
				r.Post("/bulk", orderHandler.CreateBulk)
				r.Get("/stats", orderHandler.GetStats)
				r.Get("/{id}", orderHandler.Get)
				r.Post("/{id}/repeat", orderHandler.Repeat)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", walletHandler.Balance)
				r.Post("/deposit", walletHandler.Deposit)
				r.Post("/withdraw", walletHandler.Withdraw)
				r.Get("/transactions", walletHandler.ListTransactions)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin)
					r.Post("/withdrawals/{id}/approve", walletHandler.ApproveWithdrawal)
					r.Post("/withdrawals/{id}/reject", walletHandler.RejectWithdrawal)
				})
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/available", taskHandler.Available)
				r.Get("/executions", taskHandler.History)
				r.Get("/{id}", taskHandler.Get)
				r.Post("/{id}/start", taskHandler.Start)
				r.Post("/{id}/complete", taskHandler.Complete)
			})
		})
	})

	return r
}
