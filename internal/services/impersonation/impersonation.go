// Package impersonation lets an authenticated admin act as an ordinary user
// and return to their own identity.
package impersonation

import (
	"context"
	"log/slog"
	"time"

	"github.com/findosh/backoffice/internal/apperr"
	"github.com/findosh/backoffice/internal/audit"
	"github.com/findosh/backoffice/internal/config"
	"github.com/findosh/backoffice/internal/metrics"
	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/services/auth"
	"github.com/findosh/backoffice/internal/session"
	"github.com/findosh/backoffice/internal/traces"
)

var (
	ErrUserNotFound           = apperr.New(apperr.KindImpersonation, "user_not_found", "user not found")
	ErrCannotImpersonateAdmin = apperr.New(apperr.KindImpersonation, "cannot_impersonate_admin", "target user is registered as an admin")
	ErrCannotImpersonateSelf  = apperr.New(apperr.KindImpersonation, "cannot_impersonate_self", "admin may not impersonate this user")
	ErrImpersonationFailed    = apperr.New(apperr.KindImpersonation, "impersonation_failed", "failed to start impersonation")
	ErrNotImpersonating       = apperr.New(apperr.KindImpersonation, "not_impersonating", "not impersonating")

	// ErrStopFailed means the session could not be restored and was destroyed.
	ErrStopFailed = apperr.New(apperr.KindSystem, "session_reset", "failed to stop impersonation, session destroyed")
)

// UserDirectory resolves impersonation targets
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// AdminDirectory answers whether an email belongs to an admin. The email
// is the only link between the user and admin directories.
type AdminDirectory interface {
	IsEmailRegisteredAsAdmin(ctx context.Context, email string) (bool, error)
}

// Manager starts and stops impersonation on a session
type Manager struct {
	users     UserDirectory
	admins    AdminDirectory
	sessions  session.Store
	forbidden map[config.ImpersonationPair]struct{}
	sink      audit.Sink
	logger    *slog.Logger
}

// NewManager creates a manager. forbidden lists (admin, user) pairs that
// may never be impersonated, typically an admin's own mirror user account.
func NewManager(users UserDirectory, admins AdminDirectory, sessions session.Store, forbidden []config.ImpersonationPair, sink audit.Sink, logger *slog.Logger) *Manager {
	set := make(map[config.ImpersonationPair]struct{}, len(forbidden))
	for _, p := range forbidden {
		set[p] = struct{}{}
	}
	return &Manager{
		users:     users,
		admins:    admins,
		sessions:  sessions,
		forbidden: set,
		sink:      sink,
		logger:    logger.With("component", "impersonation"),
	}
}

// IsForbidden reports whether adminID is barred from impersonating userID
func (m *Manager) IsForbidden(adminID, userID int64) bool {
	_, ok := m.forbidden[config.ImpersonationPair{AdminID: adminID, UserID: userID}]
	return ok
}

// Start makes targetUserID the effective principal of sess. Eligibility
// rules run in order and the first failure is returned with sess untouched.
// On success sess is updated in place, after the store accepted it.
func (m *Manager) Start(ctx context.Context, sess *models.Session, targetUserID int64) (ic *models.ImpersonationContext, err error) {
	ctx, span := traces.StartSpan(ctx, "impersonation.Start", traces.UserID(targetUserID))
	defer func() {
		traces.End(span, err)
		metrics.ImpersonationsTotal.WithLabelValues("start", resultLabel(err)).Inc()
	}()

	adminID, err := auth.Require(sess)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.AdminID(adminID))
	logger := m.logger.With("admin_id", adminID, "user_id", targetUserID)

	user, err := m.users.GetByID(ctx, targetUserID)
	if err != nil {
		return nil, apperr.System("failed to load user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	isAdmin, err := m.admins.IsEmailRegisteredAsAdmin(ctx, user.Email)
	if err != nil {
		return nil, apperr.System("failed to check admin directory", err)
	}
	if isAdmin {
		logger.Warn("refused impersonation of admin-registered user")
		return nil, ErrCannotImpersonateAdmin
	}

	if m.IsForbidden(adminID, targetUserID) {
		logger.Warn("refused forbidden impersonation pair")
		return nil, ErrCannotImpersonateSelf
	}

	next := sess.Clone()
	next.Impersonation = &models.ImpersonationContext{
		ActingAdminID:      adminID,
		ImpersonatedUserID: targetUserID,
		StartedAt:          time.Now().UTC(),
	}
	if err := m.sessions.Save(ctx, next); err != nil {
		logger.Error("failed to persist impersonation", "error", err)
		return nil, apperr.Wrap(ErrImpersonationFailed, err)
	}
	*sess = *next

	logger.Info("impersonation started")
	audit.Notify(ctx, m.logger, m.sink, audit.Event{
		Action:     audit.ActionImpersonationStart,
		Resource:   "user",
		ResourceID: targetUserID,
		AdminID:    adminID,
		Principal:  auth.EffectivePrincipal(sess),
		Outcome:    "ok",
	})

	ctxCopy := *sess.Impersonation
	return &ctxCopy, nil
}

// Stop restores the acting admin as the effective principal. When sess is
// not impersonating it returns ErrNotImpersonating and changes nothing. If
// the restored state cannot be persisted the session is destroyed and
// ErrStopFailed is returned; the caller must treat the client as logged out.
func (m *Manager) Stop(ctx context.Context, sess *models.Session) (err error) {
	ctx, span := traces.StartSpan(ctx, "impersonation.Stop")
	defer func() {
		traces.End(span, err)
		metrics.ImpersonationsTotal.WithLabelValues("stop", resultLabel(err)).Inc()
	}()

	adminID, err := auth.Require(sess)
	if err != nil {
		return err
	}
	if !sess.IsImpersonating() {
		return ErrNotImpersonating
	}

	userID := sess.Impersonation.ImpersonatedUserID
	logger := m.logger.With("admin_id", adminID, "user_id", userID)

	next := sess.Clone()
	next.Impersonation = nil
	if err := m.sessions.Save(ctx, next); err != nil {
		logger.Error("failed to stop impersonation, destroying session", "error", err)
		if derr := m.sessions.Destroy(ctx, sess.ID); derr != nil {
			logger.Error("failed to destroy session after stop failure", "error", derr)
		}
		*sess = models.Session{ID: sess.ID}
		audit.Notify(ctx, m.logger, m.sink, audit.Event{
			Action:     audit.ActionImpersonationStop,
			Resource:   "user",
			ResourceID: userID,
			AdminID:    adminID,
			Outcome:    "session_reset",
			Details:    err.Error(),
		})
		return apperr.Wrap(ErrStopFailed, err)
	}
	*sess = *next

	logger.Info("impersonation stopped")
	audit.Notify(ctx, m.logger, m.sink, audit.Event{
		Action:     audit.ActionImpersonationStop,
		Resource:   "user",
		ResourceID: userID,
		AdminID:    adminID,
		Principal:  auth.EffectivePrincipal(sess),
		Outcome:    "ok",
	})
	return nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.CodeOf(err)
}
