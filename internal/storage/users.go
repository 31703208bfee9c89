package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/findosh/backoffice/internal/models"
)

// AdminRepository provides admin directory access
type AdminRepository struct {
	db *DB
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db *DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// Create inserts a new admin
func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO admins (email, role, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		models.NormalizeEmail(admin.Email),
		admin.Role,
		admin.PasswordHash,
		admin.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	admin.ID, err = res.LastInsertId()
	return err
}

// GetByID retrieves an admin by ID
func (r *AdminRepository) GetByID(ctx context.Context, id int64) (*models.Admin, error) {
	query := `SELECT id, email, role, password_hash, created_at FROM admins WHERE id = ?`
	return r.scanAdmin(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an admin by email
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	query := `SELECT id, email, role, password_hash, created_at FROM admins WHERE email = ?`
	return r.scanAdmin(r.db.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
}

// IsEmailRegisteredAsAdmin reports whether any admin uses email. This is
// the only link between the user and admin directories.
func (r *AdminRepository) IsEmailRegisteredAsAdmin(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM admins WHERE email = ?", models.NormalizeEmail(email),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check admin email: %w", err)
	}
	return count > 0, nil
}

func (r *AdminRepository) scanAdmin(row *sql.Row) (*models.Admin, error) {
	var admin models.Admin
	err := row.Scan(&admin.ID, &admin.Email, &admin.Role, &admin.PasswordHash, &admin.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan admin: %w", err)
	}
	return &admin, nil
}

// UserRepository provides platform user access
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, username, full_name, phone, country, created_at`

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, username, full_name, phone, country, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		models.NormalizeEmail(user.Email),
		user.Username,
		user.FullName,
		user.Phone,
		user.Country,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	return err
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.FullName, &user.Phone, &user.Country, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// List returns users newest first
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Phone, &u.Country, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
