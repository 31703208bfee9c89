// Package models defines core domain types
package models

import (
	"strings"
	"time"
)

// Admin is an administrative principal
type Admin struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"` // Never serialize to JSON
	CreatedAt    time.Time `json:"created_at"`
}

// User is an ordinary platform principal. User ids and admin ids are
// separate spaces; the only bridge between them is the email address.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail canonicalizes an email for directory comparisons
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
