package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the financial lifecycle of a deposit or withdrawal
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusRejected  RequestStatus = "rejected"
)

// IsTerminal reports whether no further review action is valid
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// VerificationStatus is the compliance review of a deposit, independent of
// its financial status
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// RequestKind names the two review-able request types
type RequestKind string

const (
	KindDeposit    RequestKind = "deposit"
	KindWithdrawal RequestKind = "withdrawal"
)

// Transaction is an immutable ledger record
type Transaction struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Deposit is a review-able request to credit funds
type Deposit struct {
	ID                 int64              `json:"id"`
	UserID             int64              `json:"user_id"`
	TransactionID      int64              `json:"transaction_id"`
	RequestedAmount    decimal.Decimal    `json:"requested_amount"`
	PaymentMethod      string             `json:"payment_method"`
	Status             RequestStatus      `json:"status"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	AdminNotes         *string            `json:"admin_notes,omitempty"`
	ProcessedBy        *int64             `json:"processed_by,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	ProcessedAt        *time.Time         `json:"processed_at,omitempty"`
}

// IsPending reports whether the deposit still awaits a decision
func (d *Deposit) IsPending() bool {
	return d.Status == StatusPending
}

// Withdrawal is a review-able request to pay funds out
type Withdrawal struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	TransactionID   int64           `json:"transaction_id"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	PaymentMethod   string          `json:"payment_method"`
	Status          RequestStatus   `json:"status"`
	AdminNotes      *string         `json:"admin_notes,omitempty"`
	ProcessedBy     *int64          `json:"processed_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
}

// IsPending reports whether the withdrawal still awaits a decision
func (w *Withdrawal) IsPending() bool {
	return w.Status == StatusPending
}

// DepositView joins a deposit with its transaction and owner
type DepositView struct {
	Deposit     Deposit
	Transaction Transaction
	User        User
}

// WithdrawalView joins a withdrawal with its transaction and owner
type WithdrawalView struct {
	Withdrawal  Withdrawal
	Transaction Transaction
	User        User
}

// Decision is the outcome of a review action
type Decision struct {
	Status      RequestStatus
	Notes       *string
	ProcessedBy int64
	ProcessedAt time.Time
}
