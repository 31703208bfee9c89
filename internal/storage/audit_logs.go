package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/findosh/backoffice/internal/audit"
	"github.com/findosh/backoffice/internal/models"
)

// AuditRepository persists audit events; it satisfies audit.Sink
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ audit.Sink = (*AuditRepository)(nil)

// Record inserts one audit row
func (r *AuditRepository) Record(ctx context.Context, e audit.Event) error {
	var adminID, principalID, resourceID sql.NullInt64
	if e.AdminID != 0 {
		adminID = sql.NullInt64{Int64: e.AdminID, Valid: true}
	}
	if !e.Principal.IsZero() {
		principalID = sql.NullInt64{Int64: e.Principal.ID, Valid: true}
	}
	if e.ResourceID != 0 {
		resourceID = sql.NullInt64{Int64: e.ResourceID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (admin_id, principal_kind, principal_id, action, resource, resource_id,
			outcome, details, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		adminID, string(e.Principal.Kind), principalID, e.Action, e.Resource, resourceID,
		e.Outcome, e.Details, e.IPAddress, e.UserAgent, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// List returns audit events newest first
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]audit.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT admin_id, principal_kind, principal_id, action, resource, resource_id,
			outcome, details, ip_address, user_agent, created_at
		FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                                audit.Event
			adminID, principalID, resourceID sql.NullInt64
			kind                             string
		)
		if err := rows.Scan(&adminID, &kind, &principalID, &e.Action, &e.Resource, &resourceID,
			&e.Outcome, &e.Details, &e.IPAddress, &e.UserAgent, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.AdminID = adminID.Int64
		e.ResourceID = resourceID.Int64
		e.Principal = models.PrincipalRef{Kind: models.PrincipalKind(kind), ID: principalID.Int64}
		events = append(events, e)
	}
	return events, rows.Err()
}
