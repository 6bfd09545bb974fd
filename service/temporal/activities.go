package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/mintledger/service/fetcher"
	"github.com/brojonat/mintledger/service/metrics"
	"github.com/brojonat/mintledger/service/verify"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// ReconcileInput contains the input parameters for a reconcile run.
type ReconcileInput struct {
	Token string `json:"token"`
}

// ReconcileResult contains the result of a reconcile run.
type ReconcileResult struct {
	Token      string                `json:"token"`
	StartTime  time.Time             `json:"start_time"`
	Backfill   fetcher.BackfillStats `json:"backfill"`
	Checked    int                   `json:"checked"`
	Matched    int                   `json:"matched"`
	Skipped    int                   `json:"skipped"`
	Mismatches []verify.Mismatch     `json:"mismatches"`
	Error      *string               `json:"error,omitempty"`
}

// BackfillInput contains parameters for the Backfill activity.
type BackfillInput struct {
	Token string `json:"token"`
}

// VerifyInput contains parameters for the Verify activity.
type VerifyInput struct {
	Token string `json:"token"`
	// StartTime is when the enclosing workflow began; used for the run duration metric.
	StartTime time.Time `json:"start_time"`
}

// BootstrapInterface refreshes mint metadata and replays the token's history.
// monitor.Monitor satisfies it.
type BootstrapInterface interface {
	Bootstrap(ctx context.Context) (fetcher.BackfillStats, error)
}

// VerifierInterface compares ledger balances with chain state.
type VerifierInterface interface {
	Run(ctx context.Context) (*verify.Report, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	token        string
	bootstrapper BootstrapInterface
	verifier     VerifierInterface
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(token string, bootstrapper BootstrapInterface, verifier VerifierInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		token:        token,
		bootstrapper: bootstrapper,
		verifier:     verifier,
		metrics:      m,
		logger:       logger,
	}
}

// Backfill refreshes the mint and replays any history the ledger is missing.
func (a *Activities) Backfill(ctx context.Context, input BackfillInput) (*fetcher.BackfillStats, error) {
	start := time.Now()
	defer a.recordActivity("Backfill", start)

	if err := a.checkToken(input.Token); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "backfilling token history", "token", input.Token)
	stats, err := a.bootstrapper.Bootstrap(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "backfill failed", "token", input.Token, "error", err)
		return nil, fmt.Errorf("backfill %s: %w", input.Token, err)
	}

	a.logger.InfoContext(ctx, "backfill complete",
		"token", input.Token,
		"seen", stats.Seen,
		"applied", stats.Applied,
		"failed", stats.Failed,
	)
	return &stats, nil
}

// Verify checks every ledger balance against chain.
func (a *Activities) Verify(ctx context.Context, input VerifyInput) (*verify.Report, error) {
	start := time.Now()
	defer a.recordActivity("Verify", start)

	if err := a.checkToken(input.Token); err != nil {
		return nil, err
	}

	report, err := a.verifier.Run(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "verification failed", "token", input.Token, "error", err)
		a.recordRun("error", input.StartTime)
		return nil, fmt.Errorf("verify %s: %w", input.Token, err)
	}

	if report.OK() {
		a.recordRun("ok", input.StartTime)
	} else {
		a.recordRun("mismatch", input.StartTime)
	}
	return report, nil
}

// checkToken rejects runs scheduled for a token this worker doesn't track.
// Retrying can't fix that, so the error is non-retryable.
func (a *Activities) checkToken(token string) error {
	if token != a.token {
		return temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("worker tracks %s, not %s", a.token, token),
			"TokenMismatch",
			nil,
		)
	}
	return nil
}

func (a *Activities) recordActivity(name string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(name, time.Since(start).Seconds())
	}
}

func (a *Activities) recordRun(status string, start time.Time) {
	if a.metrics != nil && !start.IsZero() {
		a.metrics.RecordWorkflowDuration(status, time.Since(start).Seconds())
	}
}
