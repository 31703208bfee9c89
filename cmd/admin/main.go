// Command admin runs maintenance tasks against the back-office database.
//
// Usage:
//
//	go run ./cmd/admin create-admin <email>   # password read from BACKOFFICE_ADMIN_PASSWORD
//	go run ./cmd/admin audit [limit]          # print the most recent audit events
//	go run ./cmd/admin cleanup-sessions       # delete expired sessions
//	go run ./cmd/admin revoke-sessions <id>   # log an admin out everywhere
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/findosh/backoffice/internal/config"
	"github.com/findosh/backoffice/internal/models"
	"github.com/findosh/backoffice/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command>")
		fmt.Println("Commands: create-admin <email>, audit [limit], cleanup-sessions, revoke-sessions <admin-id>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := storage.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()
	command, args := os.Args[1], os.Args[2:]

	switch command {
	case "create-admin":
		err = createAdmin(ctx, db, args)
	case "audit":
		err = printAudit(ctx, db, args)
	case "cleanup-sessions":
		var n int64
		n, err = storage.NewSessionRepository(db).DeleteExpired(ctx)
		if err == nil {
			fmt.Printf("removed %d expired sessions\n", n)
		}
	case "revoke-sessions":
		err = revokeSessions(ctx, db, args)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func createAdmin(ctx context.Context, db *storage.DB, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: create-admin <email>")
	}
	password := os.Getenv("BACKOFFICE_ADMIN_PASSWORD")
	if len(password) < 12 {
		return fmt.Errorf("BACKOFFICE_ADMIN_PASSWORD must be at least 12 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.Admin{Email: args[0], Role: "admin", PasswordHash: string(hash)}
	if err := storage.NewAdminRepository(db).Create(ctx, admin); err != nil {
		return err
	}
	fmt.Printf("created admin %d (%s)\n", admin.ID, admin.Email)
	return nil
}

func revokeSessions(ctx context.Context, db *storage.DB, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: revoke-sessions <admin-id>")
	}
	adminID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || adminID <= 0 {
		return fmt.Errorf("admin id must be a positive integer")
	}

	n, err := storage.NewSessionRepository(db).DeleteByAdminID(ctx, adminID)
	if err != nil {
		return err
	}
	fmt.Printf("revoked %d sessions of admin %d\n", n, adminID)
	return nil
}

func printAudit(ctx context.Context, db *storage.DB, args []string) error {
	limit := 50
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("limit must be a positive integer")
		}
		limit = n
	}

	events, err := storage.NewAuditRepository(db).List(ctx, limit, 0)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%s  %-22s admin=%-4d principal=%-10s %s#%d %s\n",
			e.OccurredAt.Format("2006-01-02 15:04:05"), e.Action, e.AdminID,
			e.Principal.String(), e.Resource, e.ResourceID, e.Outcome)
	}
	return nil
}
