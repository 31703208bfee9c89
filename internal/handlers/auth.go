package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/findosh/backoffice/internal/apperr"
	"github.com/findosh/backoffice/internal/logging"
	"github.com/findosh/backoffice/internal/middleware"
	"github.com/findosh/backoffice/internal/services/auth"
)

// LoginPage renders the login page
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if auth.IsAuthenticated(middleware.GetSession(r)) {
		h.redirect(w, r, "/admin/users")
		return
	}

	data := h.pageData(r, "Login")
	data["Error"] = r.URL.Query().Get("error")
	h.render(w, r, "login.html", data)
}

// Login handles login form submission
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirect(w, r, "/admin/login?error=invalid_request")
		return
	}

	input := auth.LoginInput{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	if err := h.validate.Struct(input); err != nil {
		h.redirect(w, r, "/admin/login?error=missing_credentials")
		return
	}

	result, err := h.authService.Login(r.Context(), input)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindSystem {
			logging.L(r.Context()).Error("login failed", "error", err)
		}
		h.redirect(w, r, "/admin/login?error="+url.QueryEscape(apperr.CodeOf(err)))
		return
	}

	h.setSessionCookie(w, result.Token, result.Expires)
	h.redirect(w, r, "/admin/users")
}

// Logout tears the session down. It always clears the cookie and redirects,
// whatever happens to the audit write or the session row.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := middleware.GetSession(r); sess != nil {
		if err := h.authService.Logout(r.Context(), sess); err != nil {
			logging.L(r.Context()).Error("logout teardown failed", "session_id", sess.ID, "error", err)
		}
	}

	h.clearSessionCookie(w)
	h.redirect(w, r, "/admin/login")
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}
