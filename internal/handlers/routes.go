package handlers

import (
	"net/http"

	"github.com/findosh/backoffice/internal/metrics"
	"github.com/findosh/backoffice/internal/middleware"
	"github.com/gorilla/mux"
)

// Router wires every route. Routes under /admin other than login and
// logout require an authenticated admin session. Routes that change the
// session identity only accept POST. Metrics are served on a separate
// listener, see metrics.Handler.
func (h *Handler) Router(sessions *middleware.Session, loginLimiter *middleware.RateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware, sessions.Load)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/admin/login", h.LoginPage).Methods(http.MethodGet)
	r.Handle("/admin/login", loginLimiter.Middleware(http.HandlerFunc(h.Login))).Methods(http.MethodPost)
	r.HandleFunc("/admin/logout", h.Logout).Methods(http.MethodPost)

	r.Handle("/dashboard", sessions.RequireAdmin(http.HandlerFunc(h.Dashboard))).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(sessions.RequireAdmin)

	admin.HandleFunc("/users", h.UsersPage).Methods(http.MethodGet)
	admin.HandleFunc("/impersonate", h.StartImpersonation).Methods(http.MethodPost)
	admin.HandleFunc("/impersonate/stop", h.StopImpersonation).Methods(http.MethodPost)

	admin.HandleFunc("/api/deposit", h.DepositJSON).Methods(http.MethodGet)
	admin.HandleFunc("/deposit", h.DepositPage).Methods(http.MethodGet)
	admin.HandleFunc("/api/withdrawal", h.WithdrawalJSON).Methods(http.MethodGet)
	admin.HandleFunc("/withdrawal", h.WithdrawalPage).Methods(http.MethodGet)
	admin.HandleFunc("/plan", h.PlanPage).Methods(http.MethodGet)

	admin.HandleFunc("/deposits/pending", h.PendingDeposits).Methods(http.MethodGet)
	admin.HandleFunc("/withdrawals/pending", h.PendingWithdrawals).Methods(http.MethodGet)

	admin.HandleFunc("/deposit/approve", h.ApproveDeposit).Methods(http.MethodPost)
	admin.HandleFunc("/deposit/reject", h.RejectDeposit).Methods(http.MethodPost)
	admin.HandleFunc("/deposit/verify", h.VerifyDeposit).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawal/approve", h.ApproveWithdrawal).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawal/reject", h.RejectWithdrawal).Methods(http.MethodPost)
	admin.HandleFunc("/plan/active", h.SetPlanActive).Methods(http.MethodPost)

	return r
}
