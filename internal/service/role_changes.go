package service

import (
	"context"
	"log/slog"
	"time"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/ports"
)

// RoleChangeRecorderOptions groups the optional sinks for role changes.
type RoleChangeRecorderOptions struct {
	Audit    ports.AuditLog
	Notifier ports.RoleChangeNotifier
	Logger   *slog.Logger
	// NotifyTimeout bounds the out-of-band notification call.
	NotifyTimeout time.Duration
}

// RoleChangeRecorder writes committed role changes to the audit log and
// notifier. Failures are logged; the role change itself has already happened
// and is not rolled back.
type RoleChangeRecorder struct {
	audit         ports.AuditLog
	notifier      ports.RoleChangeNotifier
	logger        *slog.Logger
	notifyTimeout time.Duration
}

// NewRoleChangeRecorder constructs a RoleChangeRecorder. Both sinks are optional.
func NewRoleChangeRecorder(opts RoleChangeRecorderOptions) *RoleChangeRecorder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RoleChangeRecorder{
		audit:         opts.Audit,
		notifier:      opts.Notifier,
		logger:        logger.With("component", "role_changes"),
		notifyTimeout: timeout,
	}
}

// Record persists and announces a change. It is a no-op on a nil recorder.
func (r *RoleChangeRecorder) Record(ctx context.Context, change domainauth.RoleChange) {
	if r == nil {
		return
	}

	r.logger.InfoContext(ctx, "role changed",
		"kind", change.Kind,
		"actor_uid", change.ActorUID,
		"target_uid", change.TargetUID,
		"previous_role", change.PreviousRole,
		"new_role", change.NewRole,
	)

	if r.audit != nil {
		if err := r.audit.Record(ctx, change); err != nil {
			r.logger.ErrorContext(ctx, "failed to write role audit entry", "change_id", change.ID, "error", err)
		}
	}

	if r.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.notifyTimeout)
		defer cancel()
		if err := r.notifier.NotifyRoleChange(nctx, change); err != nil {
			r.logger.WarnContext(ctx, "role change notification failed", "change_id", change.ID, "error", err)
		}
	}
}

// History returns the most recent role changes, newest first.
func (r *RoleChangeRecorder) History(ctx context.Context, limit int) ([]domainauth.RoleChange, error) {
	if r == nil || r.audit == nil {
		return []domainauth.RoleChange{}, nil
	}
	return r.audit.List(ctx, limit)
}
