// Package review implements admin review of pending deposits and
// withdrawals, and investment plan inspection.
package review

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/findosh/backoffice/internal/apperr"
	"github.com/findosh/backoffice/internal/audit"
	"github.com/findosh/backoffice/internal/metrics"
	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/services/auth"
	"github.com/findosh/backoffice/internal/storage"
	"github.com/findosh/backoffice/internal/traces"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// DepositStore is the deposit persistence the engine needs
type DepositStore interface {
	GetView(ctx context.Context, id int64) (*models.DepositView, error)
	ListByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]*models.DepositView, error)
	Transition(ctx context.Context, id int64, d models.Decision) error
	SetVerification(ctx context.Context, id int64, status models.VerificationStatus) error
}

// WithdrawalStore is the withdrawal persistence the engine needs
type WithdrawalStore interface {
	GetView(ctx context.Context, id int64) (*models.WithdrawalView, error)
	ListByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]*models.WithdrawalView, error)
	Transition(ctx context.Context, id int64, d models.Decision) error
}

// PlanStore is the plan persistence the engine needs
type PlanStore interface {
	GetByID(ctx context.Context, id int64) (*models.InvestmentPlan, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Investments(ctx context.Context, planID int64) ([]models.UserInvestment, error)
}

// Engine guards and applies review actions
type Engine struct {
	deposits    DepositStore
	withdrawals WithdrawalStore
	plans       PlanStore
	sink        audit.Sink
	logger      *slog.Logger
	now         func() time.Time
}

// NewEngine creates a review engine
func NewEngine(deposits DepositStore, withdrawals WithdrawalStore, plans PlanStore, sink audit.Sink, logger *slog.Logger) *Engine {
	return &Engine{
		deposits:    deposits,
		withdrawals: withdrawals,
		plans:       plans,
		sink:        sink,
		logger:      logger.With("component", "review"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetDepositDetail returns a deposit joined with its transaction and owner
func (e *Engine) GetDepositDetail(ctx context.Context, sess *models.Session, id int64) (*models.DepositView, error) {
	if _, err := auth.Require(sess); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	v, err := e.deposits.GetView(ctx, id)
	if err != nil {
		return nil, apperr.System("failed to load deposit", err)
	}
	if v == nil {
		return nil, apperr.NotFound("deposit")
	}
	return v, nil
}

// GetWithdrawalDetail returns a withdrawal joined with its transaction and owner
func (e *Engine) GetWithdrawalDetail(ctx context.Context, sess *models.Session, id int64) (*models.WithdrawalView, error) {
	if _, err := auth.Require(sess); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	v, err := e.withdrawals.GetView(ctx, id)
	if err != nil {
		return nil, apperr.System("failed to load withdrawal", err)
	}
	if v == nil {
		return nil, apperr.NotFound("withdrawal")
	}
	return v, nil
}

// GetPlanDetail returns a plan with statistics over its subscriptions
func (e *Engine) GetPlanDetail(ctx context.Context, sess *models.Session, id int64) (*models.PlanView, error) {
	if _, err := auth.Require(sess); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	plan, err := e.plans.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.System("failed to load plan", err)
	}
	if plan == nil {
		return nil, apperr.NotFound("plan")
	}
	investments, err := e.plans.Investments(ctx, id)
	if err != nil {
		return nil, apperr.System("failed to load plan investments", err)
	}
	return &models.PlanView{Plan: *plan, Stats: models.AggregatePlanStats(investments)}, nil
}

// ListPendingDeposits pages through deposits awaiting a decision, oldest first
func (e *Engine) ListPendingDeposits(ctx context.Context, sess *models.Session, page, limit int) ([]*models.DepositView, error) {
	if _, err := auth.Require(sess); err != nil {
		return nil, err
	}
	limit, offset := paginate(page, limit)
	views, err := e.deposits.ListByStatus(ctx, models.StatusPending, limit, offset)
	if err != nil {
		return nil, apperr.System("failed to list deposits", err)
	}
	return views, nil
}

// ListPendingWithdrawals pages through withdrawals awaiting a decision, oldest first
func (e *Engine) ListPendingWithdrawals(ctx context.Context, sess *models.Session, page, limit int) ([]*models.WithdrawalView, error) {
	if _, err := auth.Require(sess); err != nil {
		return nil, err
	}
	limit, offset := paginate(page, limit)
	views, err := e.withdrawals.ListByStatus(ctx, models.StatusPending, limit, offset)
	if err != nil {
		return nil, apperr.System("failed to list withdrawals", err)
	}
	return views, nil
}

// ApproveDeposit completes a pending deposit
func (e *Engine) ApproveDeposit(ctx context.Context, sess *models.Session, id int64) error {
	return e.decide(ctx, sess, models.KindDeposit, id, models.StatusCompleted, nil, e.deposits.Transition)
}

// RejectDeposit rejects a pending deposit, optionally recording notes
func (e *Engine) RejectDeposit(ctx context.Context, sess *models.Session, id int64, notes *string) error {
	return e.decide(ctx, sess, models.KindDeposit, id, models.StatusRejected, notes, e.deposits.Transition)
}

// ApproveWithdrawal completes a pending withdrawal
func (e *Engine) ApproveWithdrawal(ctx context.Context, sess *models.Session, id int64) error {
	return e.decide(ctx, sess, models.KindWithdrawal, id, models.StatusCompleted, nil, e.withdrawals.Transition)
}

// RejectWithdrawal rejects a pending withdrawal, optionally recording notes
func (e *Engine) RejectWithdrawal(ctx context.Context, sess *models.Session, id int64, notes *string) error {
	return e.decide(ctx, sess, models.KindWithdrawal, id, models.StatusRejected, notes, e.withdrawals.Transition)
}

type transitionFunc func(ctx context.Context, id int64, d models.Decision) error

// decide applies one guarded transition out of pending. The store performs
// the check and the write in one statement, so concurrent decisions on the
// same record produce exactly one winner.
func (e *Engine) decide(ctx context.Context, sess *models.Session, kind models.RequestKind, id int64, status models.RequestStatus, notes *string, apply transitionFunc) (err error) {
	ctx, span := traces.StartSpan(ctx, "review."+string(kind)+"."+string(status), traces.RecordID(string(kind), id))
	defer func() { traces.End(span, err) }()

	adminID, err := auth.Require(sess)
	if err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}
	span.SetAttributes(traces.AdminID(adminID))

	decision := models.Decision{
		Status:      status,
		Notes:       normalizeNotes(notes),
		ProcessedBy: adminID,
		ProcessedAt: e.now(),
	}
	if err := apply(ctx, id, decision); err != nil {
		mapped := mapStoreError(string(kind), err)
		metrics.ReviewTransitionsTotal.WithLabelValues(string(kind), apperr.CodeOf(mapped)).Inc()
		return mapped
	}

	metrics.ReviewTransitionsTotal.WithLabelValues(string(kind), string(status)).Inc()
	e.logger.Info("review decision applied",
		"kind", kind, "id", id, "status", status, "admin_id", adminID)

	action := audit.ActionApprove
	if status == models.StatusRejected {
		action = audit.ActionReject
	}
	var details string
	if decision.Notes != nil {
		details = *decision.Notes
	}
	audit.Notify(ctx, e.logger, e.sink, audit.Event{
		Action:     action,
		Resource:   string(kind),
		ResourceID: id,
		AdminID:    adminID,
		Principal:  auth.EffectivePrincipal(sess),
		Outcome:    string(status),
		Details:    details,
	})
	return nil
}

// VerifyDeposit records the compliance review of a deposit. It only moves
// verification out of pending and never touches the financial status.
func (e *Engine) VerifyDeposit(ctx context.Context, sess *models.Session, id int64, status models.VerificationStatus) (err error) {
	ctx, span := traces.StartSpan(ctx, "review.deposit.verify", traces.RecordID("deposit", id))
	defer func() { traces.End(span, err) }()

	adminID, err := auth.Require(sess)
	if err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}
	if status != models.VerificationVerified && status != models.VerificationRejected {
		return apperr.Validation("invalid_verification_status", "verification status must be verified or rejected")
	}

	if err := e.deposits.SetVerification(ctx, id, status); err != nil {
		return mapStoreError("deposit", err)
	}

	audit.Notify(ctx, e.logger, e.sink, audit.Event{
		Action:     audit.ActionVerify,
		Resource:   "deposit",
		ResourceID: id,
		AdminID:    adminID,
		Principal:  auth.EffectivePrincipal(sess),
		Outcome:    string(status),
	})
	return nil
}

// SetPlanActive sets a plan's active flag. Setting the current value succeeds.
func (e *Engine) SetPlanActive(ctx context.Context, sess *models.Session, planID int64, active bool) error {
	adminID, err := auth.Require(sess)
	if err != nil {
		return err
	}
	if err := requireID(planID); err != nil {
		return err
	}
	if err := e.plans.SetActive(ctx, planID, active); err != nil {
		return mapStoreError("plan", err)
	}

	outcome := "deactivated"
	if active {
		outcome = "activated"
	}
	audit.Notify(ctx, e.logger, e.sink, audit.Event{
		Action:     audit.ActionPlanToggle,
		Resource:   "plan",
		ResourceID: planID,
		AdminID:    adminID,
		Principal:  auth.EffectivePrincipal(sess),
		Outcome:    outcome,
	})
	return nil
}

func mapStoreError(entity string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotPending):
		return apperr.ErrInvalidTransition
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound(entity)
	default:
		return apperr.System("failed to update "+entity, err)
	}
}

func requireID(id int64) error {
	if id <= 0 {
		return apperr.Validation("missing_id", "a positive id is required")
	}
	return nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil || *notes == "" {
		return nil
	}
	return notes
}

func paginate(page, limit int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}
