// Package handlers provides HTTP request handlers
package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/findosh/backoffice/internal/apperr"
	"github.com/findosh/backoffice/internal/config"
	"github.com/findosh/backoffice/internal/logging"
	"github.com/findosh/backoffice/internal/middleware"
	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/services/auth"
	"github.com/findosh/backoffice/internal/services/impersonation"
	"github.com/findosh/backoffice/internal/services/review"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templatesFS embed.FS

// UserLister pages through platform users
type UserLister interface {
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// Handler contains all HTTP handlers and dependencies
type Handler struct {
	cfg           *config.Config
	templates     *template.Template
	validate      *validator.Validate
	authService   *auth.Service
	impersonation *impersonation.Manager
	review        *review.Engine
	users         UserLister
	logger        *slog.Logger
}

// New creates a new handler with all dependencies
func New(
	cfg *config.Config,
	authService *auth.Service,
	impersonationManager *impersonation.Manager,
	reviewEngine *review.Engine,
	users UserLister,
	logger *slog.Logger,
) (*Handler, error) {
	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		cfg:           cfg,
		templates:     tmpl,
		validate:      validator.New(),
		authService:   authService,
		impersonation: impersonationManager,
		review:        reviewEngine,
		users:         users,
		logger:        logger.With("component", "handlers"),
	}, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatMoney": formatMoney,
		"formatTime":  formatTime,
	}
}

// formatMoney renders an amount as dollars with thousands separators
func formatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + "$" + b.String() + "." + frac
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

// pageData builds the template data shared by full pages
func (h *Handler) pageData(r *http.Request, title string) map[string]interface{} {
	sess := middleware.GetSession(r)
	return map[string]interface{}{
		"Title":         title + " - Back Office",
		"LoggedIn":      auth.IsAuthenticated(sess),
		"Impersonating": sess.IsImpersonating(),
		"Principal":     auth.EffectivePrincipal(sess).String(),
	}
}

// render renders a template with the given data
func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		logging.L(r.Context()).Error("template render failed", "template", name, "error", err)
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
	}
}

// redirect performs an HTTP redirect
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// writeJSON writes v as a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// jsonError writes a classified error as a JSON response
func (h *Handler) jsonError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	h.logFailure(r, status, err)
	h.writeJSON(w, status, map[string]string{
		"error":   apperr.CodeOf(err),
		"message": err.Error(),
	})
}

// textError writes a classified error as a plain-text response
func (h *Handler) textError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	h.logFailure(r, status, err)
	http.Error(w, err.Error(), status)
}

func (h *Handler) logFailure(r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		logging.L(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
}

// parseID reads a positive integer id from the query string or form
func parseID(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, apperr.Validation("missing_"+key, key+" is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid_"+key, key+" must be a positive integer")
	}
	return id, nil
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
