package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/findosh/backoffice/internal/logging"
	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/services/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver map[string]*models.Session

func (s stubResolver) Resolve(_ context.Context, token string) (*models.Session, error) {
	if sess, ok := s[token]; ok {
		return sess, nil
	}
	return nil, auth.ErrInvalidToken
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAdmin(t *testing.T) {
	sess := models.NewAdminSession(1, time.Hour)
	m := NewSession(stubResolver{"good": sess}, "admin_session")
	h := Chain(okHandler(), m.Load, m.RequireAdmin)

	tests := []struct {
		name   string
		cookie string
		accept string
		want   int
	}{
		{"valid session", "good", "", http.StatusOK},
		{"no cookie api", "", "application/json", http.StatusForbidden},
		{"bad cookie api", "bad", "", http.StatusForbidden},
		{"no cookie page", "", "text/html", http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/deposit?id=1", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "admin_session", Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(0.001, 2)
	h := l.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP_IgnoresForwardedForWithoutTrustedProxy(t *testing.T) {
	proxies, err := NewTrustedProxies(nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	var got string
	RealIP(proxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	})).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.1", got)
}

func TestClientIP_WithoutRealIPUsesPeer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.1", ClientIP(req))
}

func TestTrustedProxies_Resolve(t *testing.T) {
	proxies, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"untrusted peer", "198.51.100.7:1000", "203.0.113.9", "198.51.100.7"},
		{"trusted peer without header", "10.1.2.3:1000", "", "10.1.2.3"},
		{"trusted peer single hop", "10.1.2.3:1000", "203.0.113.9", "203.0.113.9"},
		{"spoofed left hop", "10.1.2.3:1000", "1.1.1.1, 203.0.113.9", "203.0.113.9"},
		{"chain of proxies", "192.0.2.10:1000", "203.0.113.9, 10.4.4.4", "203.0.113.9"},
		{"garbage hop stops walk", "10.1.2.3:1000", "203.0.113.9, junk, 10.4.4.4", "10.4.4.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			assert.Equal(t, tt.want, proxies.Resolve(req))
		})
	}
}

func TestNewTrustedProxies_Invalid(t *testing.T) {
	_, err := NewTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = NewTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestRateLimiter_ForwardedForRotationFromOnePeer(t *testing.T) {
	proxies, err := NewTrustedProxies(nil)
	require.NoError(t, err)
	l := NewRateLimiter(0.001, 2)
	h := Chain(okHandler(), RealIP(proxies), l.Middleware)

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		req.RemoteAddr = "198.51.100.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
	assert.Equal(t, 2, allowed)
}
