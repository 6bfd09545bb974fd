package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/mintledger/service/fetcher"
	"github.com/brojonat/mintledger/service/verify"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ReconcileWorkflow replays any token history the ledger missed and then
// verifies every balance against chain. It is triggered by a Temporal
// schedule at the configured reconcile interval.
//
// Mismatches don't fail the workflow; they are reported in the result.
func ReconcileWorkflow(ctx workflow.Context, input ReconcileInput) (*ReconcileResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ReconcileWorkflow started", "token", input.Token)

	result := &ReconcileResult{
		Token:     input.Token,
		StartTime: workflow.Now(ctx),
	}

	// a full replay of a busy token takes a while
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var stats fetcher.BackfillStats
	err := workflow.ExecuteActivity(ctx, a.Backfill, BackfillInput{Token: input.Token}).Get(ctx, &stats)
	if err != nil {
		errMsg := fmt.Sprintf("failed to backfill: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to backfill: %w", err)
	}
	result.Backfill = stats
	logger.Info("backfill complete", "token", input.Token, "applied", stats.Applied, "failed", stats.Failed)

	var report verify.Report
	err = workflow.ExecuteActivity(ctx, a.Verify, VerifyInput{Token: input.Token, StartTime: result.StartTime}).Get(ctx, &report)
	if err != nil {
		errMsg := fmt.Sprintf("failed to verify: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to verify: %w", err)
	}

	result.Checked = report.Checked
	result.Matched = report.Matched
	result.Skipped = report.Skipped
	result.Mismatches = report.Mismatches

	if len(report.Mismatches) > 0 {
		logger.Warn("ledger balances disagree with chain",
			"token", input.Token,
			"mismatches", len(report.Mismatches),
		)
	}

	logger.Info("ReconcileWorkflow completed",
		"token", input.Token,
		"checked", result.Checked,
		"mismatches", len(result.Mismatches),
	)
	return result, nil
}
