package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/session"
	"github.com/google/uuid"
)

// SessionRepository persists server-side admin sessions
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

var _ session.Store = (*SessionRepository)(nil)

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	imp := impersonationColumns(s)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, admin_id, admin_logged_in, impersonating, acting_admin_id,
			impersonated_user_id, impersonation_started_at, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID.String(),
		nullInt64(s.AdminID),
		s.AdminLoggedIn,
		imp.active,
		imp.actingAdminID,
		imp.userID,
		imp.startedAt,
		s.ExpiresAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID; nil when absent
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT id, admin_id, admin_logged_in, impersonating, acting_admin_id,
			impersonated_user_id, impersonation_started_at, expires_at, created_at, updated_at
		FROM sessions WHERE id = ?
	`
	var (
		s             models.Session
		rawID         string
		adminID       sql.NullInt64
		impersonating bool
		actingAdminID sql.NullInt64
		userID        sql.NullInt64
		startedAt     sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID,
		&adminID,
		&s.AdminLoggedIn,
		&impersonating,
		&actingAdminID,
		&userID,
		&startedAt,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	s.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt session id %q: %w", rawID, err)
	}
	s.AdminID = int64Ptr(adminID)
	if impersonating {
		s.Impersonation = &models.ImpersonationContext{
			ActingAdminID:      actingAdminID.Int64,
			ImpersonatedUserID: userID.Int64,
			StartedAt:          startedAt.Time,
		}
	}
	return &s, nil
}

// Save writes the mutable fields of an existing session
func (r *SessionRepository) Save(ctx context.Context, s *models.Session) error {
	s.UpdatedAt = time.Now().UTC()
	imp := impersonationColumns(s)
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET admin_id = ?, admin_logged_in = ?, impersonating = ?, acting_admin_id = ?,
			impersonated_user_id = ?, impersonation_started_at = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`,
		nullInt64(s.AdminID),
		s.AdminLoggedIn,
		imp.active,
		imp.actingAdminID,
		imp.userID,
		imp.startedAt,
		s.ExpiresAt,
		s.UpdatedAt,
		s.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Destroy removes a session
func (r *SessionRepository) Destroy(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id.String())
	return err
}

// DeleteByAdminID removes all sessions of an admin, including any in which
// that admin is impersonating a user
func (r *SessionRepository) DeleteByAdminID(ctx context.Context, adminID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE admin_id = ?", adminID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired removes all expired sessions
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type impersonationRow struct {
	active        bool
	actingAdminID sql.NullInt64
	userID        sql.NullInt64
	startedAt     sql.NullTime
}

// impersonationColumns derives the flag and the context columns from the
// same pointer so they cannot disagree.
func impersonationColumns(s *models.Session) impersonationRow {
	if s.Impersonation == nil {
		return impersonationRow{}
	}
	return impersonationRow{
		active:        true,
		actingAdminID: sql.NullInt64{Int64: s.Impersonation.ActingAdminID, Valid: true},
		userID:        sql.NullInt64{Int64: s.Impersonation.ImpersonatedUserID, Valid: true},
		startedAt:     sql.NullTime{Time: s.Impersonation.StartedAt, Valid: !s.Impersonation.StartedAt.IsZero()},
	}
}
