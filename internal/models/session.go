package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ImpersonationContext exists only while an admin acts as a user.
type ImpersonationContext struct {
	ActingAdminID      int64     `json:"acting_admin_id"`
	ImpersonatedUserID int64     `json:"impersonated_user_id"`
	StartedAt          time.Time `json:"started_at"`
}

// Session is server-side state keyed by the token the client presents.
// A nil Impersonation is the only "not impersonating" state.
type Session struct {
	ID            uuid.UUID             `json:"id"`
	AdminID       *int64                `json:"admin_id,omitempty"`
	AdminLoggedIn bool                  `json:"admin_logged_in"`
	Impersonation *ImpersonationContext `json:"impersonation,omitempty"`
	ExpiresAt     time.Time             `json:"expires_at"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// NewAdminSession creates a logged-in session for the given admin
func NewAdminSession(adminID int64, ttl time.Duration) *Session {
	now := time.Now().UTC()
	id := adminID
	return &Session{
		ID:            uuid.New(),
		AdminID:       &id,
		AdminLoggedIn: true,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsImpersonating reports whether an impersonation context is present
func (s *Session) IsImpersonating() bool {
	return s != nil && s.Impersonation != nil
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// Clone returns a deep copy, so callers can mutate a candidate state and
// only publish it once persisted.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.AdminID != nil {
		id := *s.AdminID
		c.AdminID = &id
	}
	if s.Impersonation != nil {
		imp := *s.Impersonation
		c.Impersonation = &imp
	}
	return &c
}

// PrincipalKind distinguishes the two identity spaces
type PrincipalKind string

const (
	PrincipalAdmin PrincipalKind = "admin"
	PrincipalUser  PrincipalKind = "user"
)

// PrincipalRef identifies whoever the system attributes an action to
type PrincipalRef struct {
	Kind PrincipalKind `json:"kind"`
	ID   int64         `json:"id"`
}

// IsZero reports whether the reference points at nobody
func (p PrincipalRef) IsZero() bool {
	return p.ID == 0 && p.Kind == ""
}

func (p PrincipalRef) String() string {
	if p.IsZero() {
		return "anonymous"
	}
	return string(p.Kind) + ":" + strconv.FormatInt(p.ID, 10)
}
