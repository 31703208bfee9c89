package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/findosh/backoffice/internal/models"
)

// TransactionRepository stores immutable ledger records
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a ledger record. Records are never updated afterwards.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, payment_method, reference, created_at) VALUES (?, ?, ?, ?, ?)`,
		tx.UserID, tx.Amount.String(), tx.PaymentMethod, tx.Reference, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	tx.ID, err = res.LastInsertId()
	return err
}

// DepositRepository provides deposit access
type DepositRepository struct {
	db *DB
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Create inserts a deposit request linked to an existing transaction
func (r *DepositRepository) Create(ctx context.Context, d *models.Deposit) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = models.StatusPending
	}
	if d.VerificationStatus == "" {
		d.VerificationStatus = models.VerificationPending
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deposits (user_id, transaction_id, requested_amount, payment_method, status,
			verification_status, admin_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.UserID, d.TransactionID, d.RequestedAmount.String(), d.PaymentMethod, d.Status,
		d.VerificationStatus, nullString(d.AdminNotes), d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

const depositViewQuery = `
	SELECT d.id, d.user_id, d.transaction_id, d.requested_amount, d.payment_method, d.status,
		d.verification_status, d.admin_notes, d.processed_by, d.created_at, d.processed_at,
		t.id, t.user_id, t.amount, t.payment_method, t.reference, t.created_at,
		u.id, u.email, u.username, u.full_name, u.phone, u.country, u.created_at
	FROM deposits d
	JOIN transactions t ON t.id = d.transaction_id
	JOIN users u ON u.id = d.user_id
`

// GetView retrieves a deposit joined with its transaction and owner; nil when absent
func (r *DepositRepository) GetView(ctx context.Context, id int64) (*models.DepositView, error) {
	rows, err := r.db.QueryContext(ctx, depositViewQuery+` WHERE d.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanDepositView(rows)
}

// ListByStatus returns deposits in the given status, oldest first
func (r *DepositRepository) ListByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]*models.DepositView, error) {
	rows, err := r.db.QueryContext(ctx,
		depositViewQuery+` WHERE d.status = ? ORDER BY d.created_at ASC, d.id ASC LIMIT ? OFFSET ?`,
		status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer rows.Close()

	var views []*models.DepositView
	for rows.Next() {
		v, err := scanDepositView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func scanDepositView(rows *sql.Rows) (*models.DepositView, error) {
	var (
		v           models.DepositView
		notes       sql.NullString
		processedBy sql.NullInt64
		processedAt sql.NullTime
	)
	err := rows.Scan(
		&v.Deposit.ID, &v.Deposit.UserID, &v.Deposit.TransactionID, &v.Deposit.RequestedAmount,
		&v.Deposit.PaymentMethod, &v.Deposit.Status, &v.Deposit.VerificationStatus, &notes,
		&processedBy, &v.Deposit.CreatedAt, &processedAt,
		&v.Transaction.ID, &v.Transaction.UserID, &v.Transaction.Amount, &v.Transaction.PaymentMethod,
		&v.Transaction.Reference, &v.Transaction.CreatedAt,
		&v.User.ID, &v.User.Email, &v.User.Username, &v.User.FullName, &v.User.Phone,
		&v.User.Country, &v.User.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan deposit: %w", err)
	}
	v.Deposit.AdminNotes = stringPtr(notes)
	v.Deposit.ProcessedBy = int64Ptr(processedBy)
	if processedAt.Valid {
		t := processedAt.Time
		v.Deposit.ProcessedAt = &t
	}
	return &v, nil
}

// Transition moves a pending deposit to the decided status. The update is
// conditional on the row still being pending, so of two racing decisions
// exactly one is applied; the other gets ErrNotPending.
func (r *DepositRepository) Transition(ctx context.Context, id int64, d models.Decision) error {
	return transitionFromPending(ctx, r.db, "deposits", id, d)
}

// SetVerification moves verification_status out of pending. Like Transition,
// the update is guarded on the current value.
func (r *DepositRepository) SetVerification(ctx context.Context, id int64, status models.VerificationStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE deposits SET verification_status = ? WHERE id = ? AND verification_status = ?`,
		status, id, models.VerificationPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update deposit verification: %w", err)
	}
	return classifyGuardedUpdate(ctx, r.db, res, "deposits", id)
}

// WithdrawalRepository provides withdrawal access
type WithdrawalRepository struct {
	db *DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create inserts a withdrawal request linked to an existing transaction
func (r *WithdrawalRepository) Create(ctx context.Context, w *models.Withdrawal) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	if w.Status == "" {
		w.Status = models.StatusPending
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO withdrawals (user_id, transaction_id, requested_amount, payment_method, status,
			admin_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		w.UserID, w.TransactionID, w.RequestedAmount.String(), w.PaymentMethod, w.Status,
		nullString(w.AdminNotes), w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	w.ID, err = res.LastInsertId()
	return err
}

const withdrawalViewQuery = `
	SELECT w.id, w.user_id, w.transaction_id, w.requested_amount, w.payment_method, w.status,
		w.admin_notes, w.processed_by, w.created_at, w.processed_at,
		t.id, t.user_id, t.amount, t.payment_method, t.reference, t.created_at,
		u.id, u.email, u.username, u.full_name, u.phone, u.country, u.created_at
	FROM withdrawals w
	JOIN transactions t ON t.id = w.transaction_id
	JOIN users u ON u.id = w.user_id
`

// GetView retrieves a withdrawal joined with its transaction and owner; nil when absent
func (r *WithdrawalRepository) GetView(ctx context.Context, id int64) (*models.WithdrawalView, error) {
	rows, err := r.db.QueryContext(ctx, withdrawalViewQuery+` WHERE w.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawal: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanWithdrawalView(rows)
}

// ListByStatus returns withdrawals in the given status, oldest first
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]*models.WithdrawalView, error) {
	rows, err := r.db.QueryContext(ctx,
		withdrawalViewQuery+` WHERE w.status = ? ORDER BY w.created_at ASC, w.id ASC LIMIT ? OFFSET ?`,
		status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	var views []*models.WithdrawalView
	for rows.Next() {
		v, err := scanWithdrawalView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func scanWithdrawalView(rows *sql.Rows) (*models.WithdrawalView, error) {
	var (
		v           models.WithdrawalView
		notes       sql.NullString
		processedBy sql.NullInt64
		processedAt sql.NullTime
	)
	err := rows.Scan(
		&v.Withdrawal.ID, &v.Withdrawal.UserID, &v.Withdrawal.TransactionID, &v.Withdrawal.RequestedAmount,
		&v.Withdrawal.PaymentMethod, &v.Withdrawal.Status, &notes, &processedBy,
		&v.Withdrawal.CreatedAt, &processedAt,
		&v.Transaction.ID, &v.Transaction.UserID, &v.Transaction.Amount, &v.Transaction.PaymentMethod,
		&v.Transaction.Reference, &v.Transaction.CreatedAt,
		&v.User.ID, &v.User.Email, &v.User.Username, &v.User.FullName, &v.User.Phone,
		&v.User.Country, &v.User.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
	}
	v.Withdrawal.AdminNotes = stringPtr(notes)
	v.Withdrawal.ProcessedBy = int64Ptr(processedBy)
	if processedAt.Valid {
		t := processedAt.Time
		v.Withdrawal.ProcessedAt = &t
	}
	return &v, nil
}

// Transition moves a pending withdrawal to the decided status; see
// DepositRepository.Transition.
func (r *WithdrawalRepository) Transition(ctx context.Context, id int64, d models.Decision) error {
	return transitionFromPending(ctx, r.db, "withdrawals", id, d)
}

// transitionFromPending applies a decision in a single guarded UPDATE.
// table is always a package constant, never caller input.
func transitionFromPending(ctx context.Context, db *DB, table string, id int64, d models.Decision) error {
	res, err := db.ExecContext(ctx, `
		UPDATE `+table+`
		SET status = ?, admin_notes = COALESCE(?, admin_notes), processed_by = ?, processed_at = ?
		WHERE id = ? AND status = ?
	`,
		d.Status, nullString(d.Notes), d.ProcessedBy, d.ProcessedAt,
		id, models.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return classifyGuardedUpdate(ctx, db, res, table, id)
}

// classifyGuardedUpdate tells a lost race apart from a missing row.
func classifyGuardedUpdate(ctx context.Context, db *DB, res sql.Result, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", table, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrNotPending
}
