package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/findosh/backoffice/internal/models"
)

// PlanRepository provides investment plan access
type PlanRepository struct {
	db *DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create inserts a new plan
func (r *PlanRepository) Create(ctx context.Context, p *models.InvestmentPlan) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO investment_plans (name, description, daily_rate, duration_days, min_amount,
			max_amount, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.Name, p.Description, p.DailyRate.String(), p.DurationDays, p.MinAmount.String(),
		p.MaxAmount.String(), p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// GetByID retrieves a plan; nil when absent
func (r *PlanRepository) GetByID(ctx context.Context, id int64) (*models.InvestmentPlan, error) {
	var p models.InvestmentPlan
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, daily_rate, duration_days, min_amount, max_amount,
			is_active, created_at, updated_at
		FROM investment_plans WHERE id = ?
	`, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.DailyRate, &p.DurationDays, &p.MinAmount,
		&p.MaxAmount, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	return &p, nil
}

// SetActive sets the active flag; setting the current value is not an error
func (r *PlanRepository) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE investment_plans SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateInvestment inserts a subscription
func (r *PlanRepository) CreateInvestment(ctx context.Context, inv *models.UserInvestment) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.Status == "" {
		inv.Status = models.InvestmentActive
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO user_investments (user_id, plan_id, invest_amount, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		inv.UserID, inv.PlanID, inv.InvestAmount.String(), inv.Status, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}
	inv.ID, err = res.LastInsertId()
	return err
}

// Investments returns every subscription to a plan. Amounts are summed in
// Go so that decimal precision is kept.
func (r *PlanRepository) Investments(ctx context.Context, planID int64) ([]models.UserInvestment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, plan_id, invest_amount, status, created_at
		FROM user_investments WHERE plan_id = ?
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	defer rows.Close()

	var out []models.UserInvestment
	for rows.Next() {
		var inv models.UserInvestment
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.PlanID, &inv.InvestAmount, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
