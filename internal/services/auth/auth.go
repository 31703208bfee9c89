// Package auth provides admin authentication and the session guard
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/findosh/backoffice/internal/apperr"
	"github.com/findosh/backoffice/internal/audit"
	"github.com/findosh/backoffice/internal/config"
	"github.com/findosh/backoffice/internal/metrics"
	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/session"
	"github.com/findosh/backoffice/internal/traces"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = apperr.New(apperr.KindAuthorization, "invalid_credentials", "invalid email or password")
	ErrSessionExpired     = apperr.New(apperr.KindAuthorization, "session_expired", "session expired")
	ErrInvalidToken       = apperr.New(apperr.KindAuthorization, "invalid_token", "invalid token")
)

// AdminDirectory looks admins up for login
type AdminDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
}

// Service handles admin authentication operations
type Service struct {
	cfg      *config.Config
	admins   AdminDirectory
	sessions session.Store
	sink     audit.Sink
	logger   *slog.Logger
}

// NewService creates a new auth service
func NewService(cfg *config.Config, admins AdminDirectory, sessions session.Store, sink audit.Sink, logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		admins:   admins,
		sessions: sessions,
		sink:     sink,
		logger:   logger.With("component", "auth"),
	}
}

// LoginInput contains login credentials
type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	Admin   *models.Admin
	Session *models.Session
	Token   string
	Expires time.Time
}

// Login authenticates an admin and creates a session
func (s *Service) Login(ctx context.Context, input LoginInput) (result *LoginResult, err error) {
	ctx, span := traces.StartSpan(ctx, "auth.Login")
	defer func() { traces.End(span, err) }()

	admin, err := s.admins.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, apperr.System("failed to find admin", err)
	}
	if admin == nil {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(input.Password)); err != nil {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	sess := models.NewAdminSession(admin.ID, s.cfg.SessionDuration)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, apperr.System("failed to create session", err)
	}

	token, err := s.createToken(sess)
	if err != nil {
		return nil, apperr.System("failed to create token", err)
	}

	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(traces.AdminID(admin.ID))
	audit.Notify(ctx, s.logger, s.sink, audit.Event{
		Action:    audit.ActionLogin,
		Resource:  "session",
		AdminID:   admin.ID,
		Principal: EffectivePrincipal(sess),
		Outcome:   "ok",
	})

	return &LoginResult{
		Admin:   admin,
		Session: sess,
		Token:   token,
		Expires: sess.ExpiresAt,
	}, nil
}

// Resolve verifies a session token and loads the session it names
func (s *Service) Resolve(ctx context.Context, tokenString string) (*models.Session, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, apperr.System("failed to load session", err)
	}
	if sess == nil {
		return nil, ErrInvalidToken
	}
	if sess.AdminID == nil || strconv.FormatInt(*sess.AdminID, 10) != claims.Subject {
		return nil, ErrInvalidToken
	}
	if !sess.AdminLoggedIn {
		return nil, ErrInvalidToken
	}
	if sess.IsExpired() {
		if err := s.sessions.Destroy(ctx, sess.ID); err != nil {
			s.logger.Warn("failed to remove expired session", "session_id", sess.ID, "error", err)
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Logout destroys the session, retrying once. If the row still cannot be
// removed it is saved logged out and expired instead. The audit record is
// best-effort; a failing sink never blocks logout.
func (s *Service) Logout(ctx context.Context, sess *models.Session) error {
	if sess == nil {
		return nil
	}

	var adminID int64
	if sess.AdminID != nil {
		adminID = *sess.AdminID
	}
	audit.Notify(ctx, s.logger, s.sink, audit.Event{
		Action:    audit.ActionLogout,
		Resource:  "session",
		AdminID:   adminID,
		Principal: EffectivePrincipal(sess),
		Outcome:   "ok",
	})

	destroyErr := s.sessions.Destroy(ctx, sess.ID)
	if destroyErr != nil {
		destroyErr = s.sessions.Destroy(ctx, sess.ID)
	}
	if destroyErr == nil {
		return nil
	}

	// The row survived both attempts: revoke it in place so the token it
	// backs stops authenticating.
	revoked := sess.Clone()
	revoked.AdminLoggedIn = false
	revoked.Impersonation = nil
	revoked.ExpiresAt = time.Now().UTC()
	if err := s.sessions.Save(ctx, revoked); err != nil {
		return apperr.System("failed to tear down session", errors.Join(destroyErr, err))
	}
	s.logger.Warn("session destroy failed, revoked in place", "session_id", sess.ID, "error", destroyErr)
	*sess = *revoked
	return nil
}

// CleanupExpiredSessions removes expired sessions from storage
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return n, nil
}

// RunCleanup deletes expired sessions every interval until ctx is done
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CleanupExpiredSessions(ctx)
			if err != nil {
				s.logger.Error("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}

func (s *Service) createToken(sess *models.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        sess.ID.String(),
		Subject:   strconv.FormatInt(*sess.AdminID, 10),
		IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.SecretKey))
}
