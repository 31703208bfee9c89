package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestNewAdminSession(t *testing.T) {
	s := NewAdminSession(1, time.Hour)

	if s.ID == uuid.Nil {
		t.Error("Expected session ID to be generated")
	}
	if s.AdminID == nil || *s.AdminID != 1 {
		t.Errorf("Expected admin id 1, got %v", s.AdminID)
	}
	if !s.AdminLoggedIn {
		t.Error("Expected admin to be logged in")
	}
	if s.IsImpersonating() {
		t.Error("Expected new session not to be impersonating")
	}
	if s.IsExpired() {
		t.Error("Expected new session not to be expired")
	}
}

func TestSession_Clone(t *testing.T) {
	s := NewAdminSession(1, time.Hour)
	s.Impersonation = &ImpersonationContext{ActingAdminID: 1, ImpersonatedUserID: 7}

	c := s.Clone()
	*c.AdminID = 2
	c.Impersonation.ImpersonatedUserID = 8

	if *s.AdminID != 1 {
		t.Error("Expected clone to own its admin id")
	}
	if s.Impersonation.ImpersonatedUserID != 7 {
		t.Error("Expected clone to own its impersonation context")
	}
}

func TestSession_IsExpired(t *testing.T) {
	s := NewAdminSession(1, -time.Minute)
	if !s.IsExpired() {
		t.Error("Expected session with past expiry to be expired")
	}
}

func TestPrincipalRef_String(t *testing.T) {
	if got := (PrincipalRef{Kind: PrincipalUser, ID: 7}).String(); got != "user:7" {
		t.Errorf("Expected user:7, got %s", got)
	}
	if got := (PrincipalRef{}).String(); got != "anonymous" {
		t.Errorf("Expected anonymous, got %s", got)
	}
}

func TestRequestStatus_IsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() {
		t.Error("Expected pending not to be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusRejected.IsTerminal() {
		t.Error("Expected completed and rejected to be terminal")
	}
}

func TestAggregatePlanStats(t *testing.T) {
	investments := []UserInvestment{
		{InvestAmount: decimal.NewFromFloat(100.10), Status: InvestmentActive},
		{InvestAmount: decimal.NewFromFloat(200.20), Status: InvestmentCompleted},
		{InvestAmount: decimal.NewFromFloat(0.01), Status: InvestmentCancelled},
	}

	stats := AggregatePlanStats(investments)

	if stats.Count != 3 {
		t.Errorf("Expected count 3, got %d", stats.Count)
	}
	if !stats.TotalAmount.Equal(decimal.NewFromFloat(300.31)) {
		t.Errorf("Expected total 300.31, got %s", stats.TotalAmount)
	}
	if stats.ActiveCount != 1 || stats.CompletedCount != 1 {
		t.Errorf("Expected 1 active and 1 completed, got %d and %d", stats.ActiveCount, stats.CompletedCount)
	}
	if !stats.AverageAmount().Equal(decimal.NewFromFloat(100.10)) {
		t.Errorf("Expected average 100.10, got %s", stats.AverageAmount())
	}
}

func TestPlanStats_AverageAmount_Empty(t *testing.T) {
	var stats PlanStats
	if !stats.AverageAmount().IsZero() {
		t.Errorf("Expected zero average for empty stats, got %s", stats.AverageAmount())
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  A@X.com "); got != "a@x.com" {
		t.Errorf("Expected a@x.com, got %q", got)
	}
}
