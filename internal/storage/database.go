// Package storage provides database access and repositories
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when a write targets a missing row
	ErrNotFound = errors.New("record not found")
	// ErrNotPending is returned when a guarded transition finds the row already processed
	ErrNotPending = errors.New("record is not pending")
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// New opens a database connection. Foreign keys, WAL and a busy timeout
// are set through the DSN so that every pooled connection carries them.
func New(databaseURL string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{db}, nil
}

func dsn(databaseURL string) string {
	if strings.Contains(databaseURL, "?") {
		return databaseURL
	}
	return "file:" + databaseURL + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// Migrate applies the embedded goose migrations
func (db *DB) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("migration setup failed: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
