// Package testutil provides a migrated sqlite database and fixture helpers
// for tests that exercise real storage.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/storage"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var seq atomic.Int64

// NewDB opens a fresh file-backed database in a temp dir and migrates it.
func NewDB(t *testing.T) *storage.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backoffice.db")
	db, err := storage.New(path)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// Fixtures creates rows through the real repositories.
type Fixtures struct {
	t            *testing.T
	Admins       *storage.AdminRepository
	Users        *storage.UserRepository
	Transactions *storage.TransactionRepository
	Deposits     *storage.DepositRepository
	Withdrawals  *storage.WithdrawalRepository
	Plans        *storage.PlanRepository
}

// NewFixtures wires fixture helpers to db.
func NewFixtures(t *testing.T, db *storage.DB) *Fixtures {
	return &Fixtures{
		t:            t,
		Admins:       storage.NewAdminRepository(db),
		Users:        storage.NewUserRepository(db),
		Transactions: storage.NewTransactionRepository(db),
		Deposits:     storage.NewDepositRepository(db),
		Withdrawals:  storage.NewWithdrawalRepository(db),
		Plans:        storage.NewPlanRepository(db),
	}
}

// Admin creates an admin with the given email and password.
func (f *Fixtures) Admin(email, password string) *models.Admin {
	f.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		f.t.Fatalf("hash password: %v", err)
	}
	a := &models.Admin{Email: email, Role: "admin", PasswordHash: string(hash)}
	if err := f.Admins.Create(context.Background(), a); err != nil {
		f.t.Fatalf("create admin: %v", err)
	}
	return a
}

// User creates a user with the given email.
func (f *Fixtures) User(email string) *models.User {
	f.t.Helper()
	n := seq.Add(1)
	u := &models.User{Email: email, Username: fmt.Sprintf("user%d", n), FullName: "Test User"}
	if err := f.Users.Create(context.Background(), u); err != nil {
		f.t.Fatalf("create user: %v", err)
	}
	return u
}

// Deposit creates a pending deposit and its linked transaction.
func (f *Fixtures) Deposit(userID int64, amount string) *models.Deposit {
	f.t.Helper()
	ctx := context.Background()
	amt := decimal.RequireFromString(amount)
	tx := &models.Transaction{UserID: userID, Amount: amt, PaymentMethod: "bank_transfer", Reference: fmt.Sprintf("DEP-%d", seq.Add(1))}
	if err := f.Transactions.Create(ctx, tx); err != nil {
		f.t.Fatalf("create transaction: %v", err)
	}
	d := &models.Deposit{UserID: userID, TransactionID: tx.ID, RequestedAmount: amt, PaymentMethod: tx.PaymentMethod}
	if err := f.Deposits.Create(ctx, d); err != nil {
		f.t.Fatalf("create deposit: %v", err)
	}
	return d
}

// Withdrawal creates a pending withdrawal and its linked transaction.
func (f *Fixtures) Withdrawal(userID int64, amount string) *models.Withdrawal {
	f.t.Helper()
	ctx := context.Background()
	amt := decimal.RequireFromString(amount)
	tx := &models.Transaction{UserID: userID, Amount: amt, PaymentMethod: "usdt", Reference: fmt.Sprintf("WDR-%d", seq.Add(1))}
	if err := f.Transactions.Create(ctx, tx); err != nil {
		f.t.Fatalf("create transaction: %v", err)
	}
	w := &models.Withdrawal{UserID: userID, TransactionID: tx.ID, RequestedAmount: amt, PaymentMethod: tx.PaymentMethod}
	if err := f.Withdrawals.Create(ctx, w); err != nil {
		f.t.Fatalf("create withdrawal: %v", err)
	}
	return w
}

// Plan creates an active investment plan.
func (f *Fixtures) Plan(name string) *models.InvestmentPlan {
	f.t.Helper()
	p := &models.InvestmentPlan{
		Name:         name,
		Description:  name + " plan",
		DailyRate:    decimal.RequireFromString("1.5"),
		DurationDays: 30,
		MinAmount:    decimal.NewFromInt(100),
		MaxAmount:    decimal.NewFromInt(10000),
		IsActive:     true,
	}
	if err := f.Plans.Create(context.Background(), p); err != nil {
		f.t.Fatalf("create plan: %v", err)
	}
	return p
}

// Investment subscribes a user to a plan.
func (f *Fixtures) Investment(userID, planID int64, amount string, status models.InvestmentStatus) *models.UserInvestment {
	f.t.Helper()
	inv := &models.UserInvestment{UserID: userID, PlanID: planID, InvestAmount: decimal.RequireFromString(amount), Status: status}
	if err := f.Plans.CreateInvestment(context.Background(), inv); err != nil {
		f.t.Fatalf("create investment: %v", err)
	}
	return inv
}
