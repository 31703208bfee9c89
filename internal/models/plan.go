package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentPlan is a product users can subscribe to
type InvestmentPlan struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	DailyRate    decimal.Decimal `json:"daily_rate"`
	DurationDays int             `json:"duration_days"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// InvestmentStatus is the lifecycle of a subscription
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

// UserInvestment is a user's subscription to a plan
type UserInvestment struct {
	ID           int64            `json:"id"`
	UserID       int64            `json:"user_id"`
	PlanID       int64            `json:"plan_id"`
	InvestAmount decimal.Decimal  `json:"invest_amount"`
	Status       InvestmentStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// PlanStats aggregates the subscriptions of one plan
type PlanStats struct {
	Count          int             `json:"count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ActiveCount    int             `json:"active_count"`
	CompletedCount int             `json:"completed_count"`
}

// Add folds one subscription into the aggregate
func (s *PlanStats) Add(inv UserInvestment) {
	s.Count++
	s.TotalAmount = s.TotalAmount.Add(inv.InvestAmount)
	switch inv.Status {
	case InvestmentActive:
		s.ActiveCount++
	case InvestmentCompleted:
		s.CompletedCount++
	}
}

// AverageAmount returns the mean subscription size, zero when empty
func (s PlanStats) AverageAmount() decimal.Decimal {
	if s.Count == 0 {
		return decimal.Zero
	}
	return s.TotalAmount.Div(decimal.NewFromInt(int64(s.Count))).Round(2)
}

// AggregatePlanStats computes statistics over a set of subscriptions
func AggregatePlanStats(investments []UserInvestment) PlanStats {
	var stats PlanStats
	for _, inv := range investments {
		stats.Add(inv)
	}
	return stats
}

// PlanView joins a plan with its statistics
type PlanView struct {
	Plan  InvestmentPlan
	Stats PlanStats
}
