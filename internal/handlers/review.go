package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/findosh/backoffice/internal/middleware"
	"github.com/findosh/backoffice/internal/models"
	"github.com/shopspring/decimal"
)

// depositResponse is the machine-readable deposit view
type depositResponse struct {
	DepositID          int64                     `json:"deposit_id"`
	TransactionID      int64                     `json:"transaction_id"`
	UserID             int64                     `json:"user_id"`
	Amount             decimal.Decimal           `json:"amount"`
	Status             models.RequestStatus      `json:"status"`
	VerificationStatus models.VerificationStatus `json:"verification_status"`
	PaymentMethod      string                    `json:"payment_method"`
	CreatedAt          time.Time                 `json:"created_at"`
	ProcessedAt        *time.Time                `json:"processed_at,omitempty"`
	AdminNotes         *string                   `json:"admin_notes,omitempty"`
}

func newDepositResponse(v *models.DepositView) depositResponse {
	return depositResponse{
		DepositID:          v.Deposit.ID,
		TransactionID:      v.Transaction.ID,
		UserID:             v.Deposit.UserID,
		Amount:             v.Deposit.RequestedAmount,
		Status:             v.Deposit.Status,
		VerificationStatus: v.Deposit.VerificationStatus,
		PaymentMethod:      v.Deposit.PaymentMethod,
		CreatedAt:          v.Deposit.CreatedAt,
		ProcessedAt:        v.Deposit.ProcessedAt,
		AdminNotes:         v.Deposit.AdminNotes,
	}
}

// withdrawalResponse is the machine-readable withdrawal view
type withdrawalResponse struct {
	WithdrawalID  int64                `json:"withdrawal_id"`
	TransactionID int64                `json:"transaction_id"`
	UserID        int64                `json:"user_id"`
	Amount        decimal.Decimal      `json:"amount"`
	Status        models.RequestStatus `json:"status"`
	PaymentMethod string               `json:"payment_method"`
	CreatedAt     time.Time            `json:"created_at"`
	ProcessedAt   *time.Time           `json:"processed_at,omitempty"`
	AdminNotes    *string              `json:"admin_notes,omitempty"`
}

func newWithdrawalResponse(v *models.WithdrawalView) withdrawalResponse {
	return withdrawalResponse{
		WithdrawalID:  v.Withdrawal.ID,
		TransactionID: v.Transaction.ID,
		UserID:        v.Withdrawal.UserID,
		Amount:        v.Withdrawal.RequestedAmount,
		Status:        v.Withdrawal.Status,
		PaymentMethod: v.Withdrawal.PaymentMethod,
		CreatedAt:     v.Withdrawal.CreatedAt,
		ProcessedAt:   v.Withdrawal.ProcessedAt,
		AdminNotes:    v.Withdrawal.AdminNotes,
	}
}

// rejectForm carries the optional reviewer notes
type rejectForm struct {
	Notes string `validate:"max=1000"`
}

// verifyForm carries the verification outcome
type verifyForm struct {
	Status string `validate:"required,oneof=verified rejected"`
}

// planActiveForm carries the requested plan state
type planActiveForm struct {
	Active string `validate:"required,oneof=true false 1 0"`
}

// DepositJSON returns a deposit as JSON
func (h *Handler) DepositJSON(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	v, err := h.review.GetDepositDetail(r.Context(), middleware.GetSession(r), id)
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newDepositResponse(v))
}

// DepositPage renders the deposit detail fragment
func (h *Handler) DepositPage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.textError(w, r, err)
		return
	}
	v, err := h.review.GetDepositDetail(r.Context(), middleware.GetSession(r), id)
	if err != nil {
		h.textError(w, r, err)
		return
	}
	h.render(w, r, "deposit.html", map[string]interface{}{"View": v})
}

// WithdrawalJSON returns a withdrawal as JSON
func (h *Handler) WithdrawalJSON(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	v, err := h.review.GetWithdrawalDetail(r.Context(), middleware.GetSession(r), id)
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(v))
}

// WithdrawalPage renders the withdrawal detail fragment
func (h *Handler) WithdrawalPage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.textError(w, r, err)
		return
	}
	v, err := h.review.GetWithdrawalDetail(r.Context(), middleware.GetSession(r), id)
	if err != nil {
		h.textError(w, r, err)
		return
	}
	h.render(w, r, "withdrawal.html", map[string]interface{}{"View": v})
}

// PlanPage renders a plan with its subscription statistics
func (h *Handler) PlanPage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.textError(w, r, err)
		return
	}
	v, err := h.review.GetPlanDetail(r.Context(), middleware.GetSession(r), id)
	if err != nil {
		h.textError(w, r, err)
		return
	}
	h.render(w, r, "plan.html", map[string]interface{}{"View": v})
}

// PendingDeposits lists deposits awaiting review
func (h *Handler) PendingDeposits(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	views, err := h.review.ListPendingDeposits(r.Context(), middleware.GetSession(r), page, limit)
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	out := make([]depositResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newDepositResponse(v))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// PendingWithdrawals lists withdrawals awaiting review
func (h *Handler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	views, err := h.review.ListPendingWithdrawals(r.Context(), middleware.GetSession(r), page, limit)
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	out := make([]withdrawalResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newWithdrawalResponse(v))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ApproveDeposit completes a pending deposit
func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	if err := h.review.ApproveDeposit(r.Context(), middleware.GetSession(r), id); err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": models.StatusCompleted})
}

// RejectDeposit rejects a pending deposit
func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	id, notes, ok := h.parseReject(w, r)
	if !ok {
		return
	}
	if err := h.review.RejectDeposit(r.Context(), middleware.GetSession(r), id, notes); err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": models.StatusRejected})
}

// VerifyDeposit records the verification outcome of a deposit
func (h *Handler) VerifyDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	form := verifyForm{Status: r.FormValue("status")}
	if err := h.validate.Struct(form); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_verification_status", "message": err.Error()})
		return
	}
	status := models.VerificationStatus(form.Status)
	if err := h.review.VerifyDeposit(r.Context(), middleware.GetSession(r), id, status); err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "verification_status": status})
}

// ApproveWithdrawal completes a pending withdrawal
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	if err := h.review.ApproveWithdrawal(r.Context(), middleware.GetSession(r), id); err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": models.StatusCompleted})
}

// RejectWithdrawal rejects a pending withdrawal
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, notes, ok := h.parseReject(w, r)
	if !ok {
		return
	}
	if err := h.review.RejectWithdrawal(r.Context(), middleware.GetSession(r), id, notes); err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": models.StatusRejected})
}

// SetPlanActive activates or deactivates a plan
func (h *Handler) SetPlanActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	form := planActiveForm{Active: r.FormValue("active")}
	if err := h.validate.Struct(form); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_active", "message": err.Error()})
		return
	}
	active := form.Active == "true" || form.Active == "1"
	if err := h.review.SetPlanActive(r.Context(), middleware.GetSession(r), id, active); err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_active": active})
}

func (h *Handler) parseReject(w http.ResponseWriter, r *http.Request) (int64, *string, bool) {
	id, err := parseID(r, "id")
	if err != nil {
		h.jsonError(w, r, err)
		return 0, nil, false
	}
	form := rejectForm{Notes: r.FormValue("notes")}
	if err := h.validate.Struct(form); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_notes", "message": err.Error()})
		return 0, nil, false
	}
	if form.Notes == "" {
		return id, nil, true
	}
	return id, &form.Notes, true
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
