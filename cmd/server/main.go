// Back Office - admin control plane for deposits, withdrawals and plans
// Entry point for the web server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/findosh/backoffice/internal/audit"
	"github.com/findosh/backoffice/internal/config"
	"github.com/findosh/backoffice/internal/handlers"
	"github.com/findosh/backoffice/internal/logging"
	"github.com/findosh/backoffice/internal/metrics"
	"github.com/findosh/backoffice/internal/middleware"
	"github.com/findosh/backoffice/internal/services/auth"
	"github.com/findosh/backoffice/internal/services/impersonation"
	"github.com/findosh/backoffice/internal/services/review"
	"github.com/findosh/backoffice/internal/storage"
	"github.com/findosh/backoffice/internal/traces"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	// Initialize database
	db, err := storage.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		return err
	}
	go metrics.StartDBStatsCollector(ctx, db.DB, 15*time.Second)

	// Initialize repositories
	adminRepo := storage.NewAdminRepository(db)
	userRepo := storage.NewUserRepository(db)
	sessionRepo := storage.NewSessionRepository(db)
	depositRepo := storage.NewDepositRepository(db)
	withdrawalRepo := storage.NewWithdrawalRepository(db)
	planRepo := storage.NewPlanRepository(db)
	auditRepo := storage.NewAuditRepository(db)

	// Audit goes to the database and the log
	sink := audit.Fanout{auditRepo, audit.NewLogSink(logger)}

	// Initialize services
	authService := auth.NewService(cfg, adminRepo, sessionRepo, sink, logger)
	impersonationManager := impersonation.NewManager(userRepo, adminRepo, sessionRepo, cfg.ForbiddenImpersonations, sink, logger)
	reviewEngine := review.NewEngine(depositRepo, withdrawalRepo, planRepo, sink, logger)

	go authService.RunCleanup(ctx, 10*time.Minute)

	// Initialize handlers
	h, err := handlers.New(cfg, authService, impersonationManager, reviewEngine, userRepo, logger)
	if err != nil {
		return err
	}

	proxies, err := middleware.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginBurst)
	go loginLimiter.Cleanup(ctx, 3*time.Minute)

	router := h.Router(middleware.NewSession(authService, cfg.SessionCookie), loginLimiter)

	// Apply global middleware
	handler := middleware.Chain(
		router,
		middleware.RealIP(proxies),
		middleware.RequestID(logger),
		middleware.Recover,
		middleware.SecurityHeaders,
		middleware.Logger,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("back office starting", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Metrics stay off the admin listener
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listener starting", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener shutdown failed", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}
