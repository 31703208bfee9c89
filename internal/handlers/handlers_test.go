package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/findosh/backoffice/internal/audit"
	"github.com/findosh/backoffice/internal/config"
	"github.com/findosh/backoffice/internal/logging"
	"github.com/findosh/backoffice/internal/middleware"
	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/services/auth"
	"github.com/findosh/backoffice/internal/services/impersonation"
	"github.com/findosh/backoffice/internal/services/review"
	"github.com/findosh/backoffice/internal/session"
	"github.com/findosh/backoffice/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminPassword = "correct-horse-battery"

type failingSink struct{}

func (failingSink) Record(context.Context, audit.Event) error { return errors.New("audit down") }

type app struct {
	t        *testing.T
	router   http.Handler
	fx       *testutil.Fixtures
	store    *session.MemoryStore
	authSvc  *auth.Service
	cfg      *config.Config
	admin    *models.Admin
	sinkSwap *swapSink
}

// swapSink lets a test replace the audit destination after wiring
type swapSink struct{ audit.Sink }

func newApp(t *testing.T) *app {
	t.Helper()
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	logger := logging.Discard()

	cfg := &config.Config{
		Environment:     "development",
		SecretKey:       "handler-test-secret-0123456789",
		SessionDuration: time.Hour,
		SessionCookie:   "admin_session",
		LoginRateLimit:  100,
		LoginBurst:      100,
	}
	sink := &swapSink{Sink: audit.NewMemorySink()}
	store := session.NewMemoryStore()

	authSvc := auth.NewService(cfg, fx.Admins, store, sink, logger)
	mgr := impersonation.NewManager(fx.Users, fx.Admins, store, nil, sink, logger)
	engine := review.NewEngine(fx.Deposits, fx.Withdrawals, fx.Plans, sink, logger)

	h, err := New(cfg, authSvc, mgr, engine, fx.Users, logger)
	require.NoError(t, err)

	router := h.Router(
		middleware.NewSession(authSvc, cfg.SessionCookie),
		middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginBurst),
	)

	return &app{
		t:        t,
		router:   router,
		fx:       fx,
		store:    store,
		authSvc:  authSvc,
		cfg:      cfg,
		admin:    fx.Admin("root@example.com", adminPassword),
		sinkSwap: sink,
	}
}

func (a *app) login() *http.Cookie {
	a.t.Helper()
	form := url.Values{"email": {a.admin.Email}, "password": {adminPassword}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(a.t, http.StatusSeeOther, rec.Code)
	require.Equal(a.t, "/admin/users", rec.Header().Get("Location"))

	for _, c := range rec.Result().Cookies() {
		if c.Name == a.cfg.SessionCookie {
			return c
		}
	}
	a.t.Fatal("login did not set a session cookie")
	return nil
}

func (a *app) do(method, target string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestLogin_BadCredentials(t *testing.T) {
	a := newApp(t)
	form := url.Values{"email": {a.admin.Email}, "password": {"wrong"}}
	rec := a.do(http.MethodPost, "/admin/login", nil, form)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login?error=invalid_credentials", rec.Header().Get("Location"))

	rec = a.do(http.MethodPost, "/admin/login", nil, url.Values{"email": {"not-an-email"}})
	assert.Equal(t, "/admin/login?error=missing_credentials", rec.Header().Get("Location"))
}

func TestDepositJSON(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("u@x.com")
	d := a.fx.Deposit(u.ID, "1250.5")

	rec := a.do(http.MethodGet, "/admin/api/deposit?id="+itoa(d.ID), cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, d.ID, body["deposit_id"])
	assert.EqualValues(t, d.TransactionID, body["transaction_id"])
	assert.EqualValues(t, u.ID, body["user_id"])
	assert.Equal(t, "1250.5", body["amount"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "pending", body["verification_status"])

	tests := []struct {
		name   string
		target string
		cookie *http.Cookie
		want   int
	}{
		{"missing id", "/admin/api/deposit", cookie, http.StatusBadRequest},
		{"malformed id", "/admin/api/deposit?id=abc", cookie, http.StatusBadRequest},
		{"unknown id", "/admin/api/deposit?id=9999", cookie, http.StatusNotFound},
		{"no session", "/admin/api/deposit?id=" + itoa(d.ID), nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.do(http.MethodGet, tt.target, tt.cookie, nil).Code)
		})
	}
}

func TestWithdrawalJSON_HasNoVerificationField(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("u@x.com")
	w := a.fx.Withdrawal(u.ID, "75")

	rec := a.do(http.MethodGet, "/admin/api/withdrawal?id="+itoa(w.ID), cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, w.TransactionID, body["transaction_id"])
	assert.NotContains(t, body, "verification_status")
}

func TestDepositPage_ConditionalActions(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("u@x.com")
	d := a.fx.Deposit(u.ID, "10")

	rec := a.do(http.MethodGet, "/admin/deposit?id="+itoa(d.ID), cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/admin/deposit/approve")

	rec = a.do(http.MethodPost, "/admin/deposit/approve", cookie, url.Values{"id": {itoa(d.ID)}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/admin/deposit?id="+itoa(d.ID), cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "/admin/deposit/approve")

	rec = a.do(http.MethodGet, "/admin/deposit?id=9999", cookie, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestReviewActions(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("u@x.com")
	d := a.fx.Deposit(u.ID, "10")
	w := a.fx.Withdrawal(u.ID, "20")

	rec := a.do(http.MethodPost, "/admin/deposit/reject", cookie, url.Values{"id": {itoa(d.ID)}, "notes": {"bad proof"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, "/admin/deposit/approve", cookie, url.Values{"id": {itoa(d.ID)}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/admin/deposit/verify", cookie, url.Values{"id": {itoa(d.ID)}, "status": {"bogus"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(http.MethodPost, "/admin/deposit/verify", cookie, url.Values{"id": {itoa(d.ID)}, "status": {"verified"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, "/admin/withdrawal/approve", cookie, url.Values{"id": {itoa(w.ID)}})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodPost, "/admin/withdrawal/reject", cookie, url.Values{"id": {itoa(w.ID)}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/admin/deposit/approve", nil, url.Values{"id": {itoa(d.ID)}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPendingLists(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("u@x.com")
	a.fx.Deposit(u.ID, "1")
	a.fx.Deposit(u.ID, "2")

	rec := a.do(http.MethodGet, "/admin/deposits/pending?limit=10", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = a.do(http.MethodGet, "/admin/withdrawals/pending", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestPlanPage(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("u@x.com")
	p := a.fx.Plan("Gold")
	a.fx.Investment(u.ID, p.ID, "1000", models.InvestmentActive)
	a.fx.Investment(u.ID, p.ID, "500", models.InvestmentCompleted)

	rec := a.do(http.MethodGet, "/admin/plan?id="+itoa(p.ID), cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "$1,500.00")
	assert.Contains(t, body, "Deactivate")

	rec = a.do(http.MethodPost, "/admin/plan/active", cookie, url.Values{"id": {itoa(p.ID)}, "active": {"false"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/admin/plan?id="+itoa(p.ID), cookie, nil)
	assert.Contains(t, rec.Body.String(), "Activate")

	rec = a.do(http.MethodGet, "/admin/plan", cookie, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImpersonationFlow(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("customer@x.com")
	shadow := a.fx.User(a.admin.Email)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"missing user id", "/admin/impersonate", "/admin/users?error=missing_user_id"},
		{"unknown user", "/admin/impersonate?user_id=9999", "/admin/users?error=user_not_found"},
		{"admin email", "/admin/impersonate?user_id=" + itoa(shadow.ID), "/admin/users?error=cannot_impersonate_admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPost, tt.target, cookie, url.Values{})
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Location"))
		})
	}

	rec := a.do(http.MethodPost, "/admin/impersonate?user_id="+itoa(u.ID), cookie, url.Values{})
	require.Equal(t, "/dashboard?impersonation=started", rec.Header().Get("Location"))

	rec = a.do(http.MethodGet, "/dashboard?impersonation=started", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user:"+itoa(u.ID))

	rec = a.do(http.MethodPost, "/admin/impersonate/stop", cookie, url.Values{})
	assert.Equal(t, "/admin/users?success=impersonation_stopped", rec.Header().Get("Location"))

	rec = a.do(http.MethodPost, "/admin/impersonate/stop", cookie, url.Values{})
	assert.Equal(t, "/admin/users?error=not_impersonating", rec.Header().Get("Location"))

	rec = a.do(http.MethodGet, "/admin/users", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "customer@x.com")
}

func TestStopImpersonation_FailSafeDestroysSession(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("customer@x.com")

	rec := a.do(http.MethodPost, "/admin/impersonate?user_id="+itoa(u.ID), cookie, url.Values{})
	require.Equal(t, "/dashboard?impersonation=started", rec.Header().Get("Location"))

	a.store.FailSave = errors.New("write failed")
	rec = a.do(http.MethodPost, "/admin/impersonate/stop", cookie, url.Values{})
	assert.Equal(t, "/admin/login?error=session_reset", rec.Header().Get("Location"))
	assert.Equal(t, 0, a.store.Len())

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == a.cfg.SessionCookie && c.Value == "" {
			cleared = true
		}
	}
	assert.True(t, cleared, "cookie must be cleared after a session reset")

	a.store.FailSave = nil
	rec = a.do(http.MethodGet, "/admin/api/deposit?id=1", cookie, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogout_ProceedsWhenAuditFails(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	a.sinkSwap.Sink = failingSink{}

	rec := a.do(http.MethodPost, "/admin/logout", cookie, url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login", rec.Header().Get("Location"))
	assert.Equal(t, 0, a.store.Len())

	rec = a.do(http.MethodGet, "/admin/users", cookie, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIdentityRoutesRejectGet(t *testing.T) {
	a := newApp(t)
	cookie := a.login()
	u := a.fx.User("customer@x.com")

	for _, target := range []string{
		"/admin/impersonate?user_id=" + itoa(u.ID),
		"/admin/impersonate/stop",
		"/admin/logout",
	} {
		rec := a.do(http.MethodGet, target, cookie, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, target)
	}

	sess, err := a.authSvc.Resolve(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.False(t, sess.IsImpersonating())
	assert.Equal(t, 1, a.store.Len())
}

func TestMetricsNotOnAdminRouter(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"999.999", "$1,000.00"},
		{"1234567.8", "$1,234,567.80"},
		{"-42.5", "-$42.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMoney(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
