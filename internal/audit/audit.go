// Package audit records administrative actions. Delivery is best-effort:
// a failing sink never fails the action being recorded.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/findosh/backoffice/internal/metrics"
	"github.com/findosh/backoffice/internal/models"
)

// Action names
const (
	ActionLogin              = "admin.login"
	ActionLogout             = "admin.logout"
	ActionImpersonationStart = "impersonation.start"
	ActionImpersonationStop  = "impersonation.stop"
	ActionApprove            = "review.approve"
	ActionReject             = "review.reject"
	ActionVerify             = "review.verify"
	ActionPlanToggle         = "plan.set_active"
)

// Event is a single audit record
type Event struct {
	Action     string              `json:"action"`
	Resource   string              `json:"resource"`
	ResourceID int64               `json:"resource_id,omitempty"`
	AdminID    int64               `json:"admin_id,omitempty"`
	Principal  models.PrincipalRef `json:"principal"`
	Outcome    string              `json:"outcome"`
	Details    string              `json:"details,omitempty"`
	IPAddress  string              `json:"ip_address,omitempty"`
	UserAgent  string              `json:"user_agent,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Sink receives audit events
type Sink interface {
	Record(ctx context.Context, event Event) error
}

type clientKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClient stores the caller's network identity for later events
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

// Notify delivers event to sink, logging and counting any failure instead
// of returning it. Call it only after the primary state change committed.
func Notify(ctx context.Context, logger *slog.Logger, sink Sink, event Event) {
	if sink == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if c, ok := ctx.Value(clientKey{}).(clientInfo); ok {
		if event.IPAddress == "" {
			event.IPAddress = c.ip
		}
		if event.UserAgent == "" {
			event.UserAgent = c.userAgent
		}
	}

	if err := sink.Record(ctx, event); err != nil {
		metrics.AuditFailuresTotal.WithLabelValues(event.Action).Inc()
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("audit write failed",
			"action", event.Action,
			"resource", event.Resource,
			"resource_id", event.ResourceID,
			"principal", event.Principal.String(),
			"error", err,
		)
	}
}

// LogSink writes events as structured log lines
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs every event
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "audit")}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, e.Action,
		"resource", e.Resource,
		"resource_id", e.ResourceID,
		"admin_id", e.AdminID,
		"principal", e.Principal.String(),
		"outcome", e.Outcome,
		"details", e.Details,
		"ip", e.IPAddress,
	)
	return nil
}

// MemorySink keeps events in memory for review and tests
type MemorySink struct {
	mu      sync.Mutex
	entries []Event
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, e Event) error {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

// Entries returns the most recent events for an admin, newest first
func (s *MemorySink) Entries(adminID int64, since time.Time, limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]Event, 0)
	for i := len(s.entries) - 1; i >= 0 && len(results) < limit; i-- {
		e := s.entries[i]
		if e.AdminID == adminID && !e.OccurredAt.Before(since) {
			results = append(results, e)
		}
	}
	return results
}

// All returns a copy of every recorded event, oldest first
func (s *MemorySink) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.entries))
	copy(out, s.entries)
	return out
}

// CountByAction tallies events per action
func (s *MemorySink) CountByAction() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range s.entries {
		counts[e.Action]++
	}
	return counts
}

// Clear removes events older than before and returns how many were dropped
func (s *MemorySink) Clear(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Event, 0, len(s.entries))
	removed := 0
	for _, e := range s.entries {
		if e.OccurredAt.Before(before) {
			removed++
		} else {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return removed
}

// Fanout delivers each event to every sink, joining failures
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
