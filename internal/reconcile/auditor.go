package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Auditor periodically reconciles every user known to the store.
type Auditor struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewAuditor returns an auditor that sweeps every interval.
func NewAuditor(engine *Engine, interval time.Duration, logger *slog.Logger) *Auditor {
	return &Auditor{engine: engine, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled. A non-positive interval disables it.
func (a *Auditor) Run(ctx context.Context) {
	if a.interval <= 0 {
		return
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Sweep(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("reconciliation sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep reconciles every user once and returns the unreconciled reports.
// A failure for one user is logged and does not stop the sweep.
func (a *Auditor) Sweep(ctx context.Context) ([]Report, error) {
	users, err := a.engine.store.Users(ctx)
	if err != nil {
		return nil, err
	}

	var dirty []Report
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return dirty, err
		}
		report, err := a.engine.Reconcile(ctx, user)
		if err != nil {
			a.logger.Error("reconcile user failed", slog.String("user_id", user), slog.Any("error", err))
			continue
		}
		if !report.Reconciled {
			dirty = append(dirty, report)
		}
	}
	a.logger.Debug("reconciliation sweep finished", slog.Int("users", len(users)), slog.Int("discrepant", len(dirty)))
	return dirty, nil
}
