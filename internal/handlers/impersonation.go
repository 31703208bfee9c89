package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/findosh/backoffice/internal/apperr"
	"github.com/findosh/backoffice/internal/logging"
	"github.com/findosh/backoffice/internal/middleware"
	"github.com/findosh/backoffice/internal/services/impersonation"
)

const usersPageSize = 100

// UsersPage lists users with impersonation links and any result marker
func (h *Handler) UsersPage(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context(), usersPageSize, 0)
	if err != nil {
		h.textError(w, r, apperr.System("failed to list users", err))
		return
	}

	data := h.pageData(r, "Users")
	data["Users"] = users
	data["Error"] = r.URL.Query().Get("error")
	data["Success"] = r.URL.Query().Get("success")
	h.render(w, r, "users.html", data)
}

// Dashboard shows who the session is currently acting as
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := h.pageData(r, "Dashboard")
	data["Started"] = r.URL.Query().Get("impersonation") == "started"
	h.render(w, r, "dashboard.html", data)
}

// StartImpersonation switches the session to the user named by user_id
func (h *Handler) StartImpersonation(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(r, "user_id")
	if err != nil {
		h.redirect(w, r, "/admin/users?error=missing_user_id")
		return
	}

	if _, err := h.impersonation.Start(r.Context(), middleware.GetSession(r), userID); err != nil {
		code := apperr.CodeOf(err)
		if apperr.KindOf(err) == apperr.KindSystem {
			logging.L(r.Context()).Error("impersonation start failed", "user_id", userID, "error", err)
		}
		h.redirect(w, r, "/admin/users?error="+url.QueryEscape(code))
		return
	}

	h.redirect(w, r, "/dashboard?impersonation=started")
}

// StopImpersonation restores the admin identity. When the session cannot be
// restored it has already been destroyed, so the cookie is cleared too.
func (h *Handler) StopImpersonation(w http.ResponseWriter, r *http.Request) {
	err := h.impersonation.Stop(r.Context(), middleware.GetSession(r))
	switch {
	case err == nil:
		h.redirect(w, r, "/admin/users?success=impersonation_stopped")
	case errors.Is(err, impersonation.ErrStopFailed):
		h.clearSessionCookie(w)
		h.redirect(w, r, "/admin/login?error=session_reset")
	default:
		h.redirect(w, r, "/admin/users?error="+url.QueryEscape(apperr.CodeOf(err)))
	}
}
