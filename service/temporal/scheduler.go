package temporal

import (
	"context"
	"time"
)

// Scheduler manages the Temporal schedule that reconciles a token's ledger.
type Scheduler interface {
	// UpsertReconcileSchedule creates the schedule or updates its interval.
	UpsertReconcileSchedule(ctx context.Context, token string, interval time.Duration) error

	// DeleteReconcileSchedule removes the token's schedule.
	DeleteReconcileSchedule(ctx context.Context, token string) error
}

// scheduleID returns the Temporal schedule ID for a token.
func scheduleID(token string) string {
	return "reconcile-" + token
}
