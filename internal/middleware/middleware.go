// Package middleware provides HTTP middleware functions
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/findosh/backoffice/internal/apperr"
	"github.com/findosh/backoffice/internal/audit"
	"github.com/findosh/backoffice/internal/logging"
	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/services/auth"
	"github.com/google/uuid"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
)

// RequestID tags every request with an id, reusing X-Request-ID when the
// caller sent one, and puts a request-scoped logger in the context.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx := logging.WithRequestID(r.Context(), requestID)
			ctx = logging.WithLogger(ctx, logger)
			ctx = audit.WithClient(ctx, ClientIP(r), r.UserAgent())
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Logger logs all HTTP requests, at a level chosen by status
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger := logging.L(r.Context())
		level := slog.LevelInfo
		switch {
		case sw.status >= 500:
			level = slog.LevelError
		case sw.status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", ClientIP(r),
		)
	})
}

// SecurityHeaders adds security headers to all responses
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Recover handles panics gracefully
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.L(r.Context()).Error("panic recovered", "panic", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// SessionResolver turns a cookie token into a server-side session
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.Session, error)
}

// Session loads the admin session named by the cookie
type Session struct {
	resolver   SessionResolver
	cookieName string
}

// NewSession creates the session middleware
func NewSession(resolver SessionResolver, cookieName string) *Session {
	return &Session{resolver: resolver, cookieName: cookieName}
}

// Load puts the session in the context when the cookie resolves, and
// passes the request through untouched otherwise.
func (m *Session) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cookieName)
		if err == nil && cookie.Value != "" {
			sess, err := m.resolver.Resolve(r.Context(), cookie.Value)
			if err == nil {
				r = r.WithContext(context.WithValue(r.Context(), SessionContextKey, sess))
			} else if apperr.KindOf(err) == apperr.KindSystem {
				logging.L(r.Context()).Error("failed to resolve session", "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin refuses requests without an authenticated admin session.
// Page requests are sent to the login form; everything else gets 403.
func (m *Session) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAuthenticated(GetSession(r)) {
			if strings.Contains(r.Header.Get("Accept"), "text/html") {
				http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
				return
			}
			http.Error(w, "Unauthorized", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSession retrieves the session from the request context
func GetSession(r *http.Request) *models.Session {
	sess, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return sess
}

// Chain applies middleware in order
func Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
