// Package monitor keeps the ledger in step with the chain: it seeds the
// tracked mint, replays its history, and applies webhook deliveries.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/mintledger/service/fetcher"
	"github.com/brojonat/mintledger/service/metrics"
	"github.com/brojonat/mintledger/service/parser"
	"github.com/brojonat/mintledger/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConfirmRetries  = 10
	DefaultConfirmInterval = 2 * time.Second

	// maxConcurrentPolls bounds confirmation polls per delivery.
	maxConcurrentPolls = 16
)

// RPC is the subset of the node client the monitor needs.
type RPC interface {
	GetAccountInfo(ctx context.Context, address string) (*rpc.Account, error)
	GetTransactions(ctx context.Context, signatures []string) ([]*solana.ParsedTransaction, error)
	PollConfirmation(ctx context.Context, signature string, maxRetries int, interval time.Duration) (rpc.ConfirmationStatusType, error)
}

// Ledger applies transactions and seeds mint metadata.
type Ledger interface {
	Apply(ctx context.Context, tx *solana.ParsedTransaction) (parser.Result, error)
	SeedMint(ctx context.Context, address string, acct *rpc.Account) error
}

// Backfiller replays an address's whole history.
type Backfiller interface {
	Run(ctx context.Context, address string) (fetcher.BackfillStats, error)
}

// Options tunes confirmation polling. Zero values use the defaults.
type Options struct {
	ConfirmRetries  int
	ConfirmInterval time.Duration
}

// Monitor drives ingestion for one token.
type Monitor struct {
	rpc             RPC
	ledger          Ledger
	backfiller      Backfiller
	token           string
	confirmRetries  int
	confirmInterval time.Duration
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// New creates a monitor. If metrics is nil, no metrics are recorded.
func New(rpcClient RPC, l Ledger, b Backfiller, token string, opts Options, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	if opts.ConfirmRetries <= 0 {
		opts.ConfirmRetries = DefaultConfirmRetries
	}
	if opts.ConfirmInterval <= 0 {
		opts.ConfirmInterval = DefaultConfirmInterval
	}
	return &Monitor{
		rpc:             rpcClient,
		ledger:          l,
		backfiller:      b,
		token:           token,
		confirmRetries:  opts.ConfirmRetries,
		confirmInterval: opts.ConfirmInterval,
		metrics:         m,
		logger:          logger,
	}
}

// Bootstrap seeds the mint from its on-chain account and replays the mint's
// full history. A missing or foreign mint account is logged and the replay
// still runs; supply is then rebuilt from history alone.
func (m *Monitor) Bootstrap(ctx context.Context) (fetcher.BackfillStats, error) {
	acct, err := m.rpc.GetAccountInfo(ctx, m.token)
	if err != nil {
		return fetcher.BackfillStats{}, fmt.Errorf("read mint account %s: %w", m.token, err)
	}

	err = m.ledger.SeedMint(ctx, m.token, acct)
	switch {
	case errors.Is(err, parser.ErrNotMintAccount):
		m.logger.WarnContext(ctx, "token is not a mint account, skipping seed", "token", m.token)
	case err != nil:
		return fetcher.BackfillStats{}, fmt.Errorf("seed mint: %w", err)
	}

	return m.backfiller.Run(ctx, m.token)
}

// IngestResult summarizes one webhook delivery.
type IngestResult struct {
	Received   int `json:"received"`
	Confirmed  int `json:"confirmed"`
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Ignored    int `json:"ignored"`
	Failed     int `json:"failed"`
}

// Ingest waits for each signature to reach confirmed commitment, fetches the
// confirmed transactions in one batch and applies them in order. A failure to
// apply one transaction is logged and does not stop the others.
func (m *Monitor) Ingest(ctx context.Context, signatures []string) (IngestResult, error) {
	sigs := dedupe(signatures)
	res := IngestResult{Received: len(sigs)}
	if len(sigs) == 0 {
		return res, nil
	}

	confirmed := make([]bool, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPolls)
	for i, sig := range sigs {
		g.Go(func() error {
			status, err := m.rpc.PollConfirmation(gctx, sig, m.confirmRetries, m.confirmInterval)
			if err != nil {
				m.logger.WarnContext(gctx, "confirmation poll failed",
					"signature", sig,
					"error", err,
				)
				return nil
			}
			confirmed[i] = status != ""
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	ready := make([]string, 0, len(sigs))
	for i, sig := range sigs {
		if confirmed[i] {
			ready = append(ready, sig)
		} else {
			m.record("unconfirmed")
		}
	}
	res.Confirmed = len(ready)
	if len(ready) == 0 {
		m.logger.InfoContext(ctx, "no transactions were confirmed", "received", res.Received)
		return res, nil
	}

	txs, err := m.rpc.GetTransactions(ctx, ready)
	if err != nil {
		return res, fmt.Errorf("fetch confirmed transactions: %w", err)
	}

	for _, tx := range txs {
		out, err := m.ledger.Apply(ctx, tx)
		if err != nil {
			res.Failed++
			m.record("error")
			m.logger.ErrorContext(ctx, "failed to apply webhook transaction",
				"signature", tx.Signature(),
				"error", err,
			)
			continue
		}
		switch out {
		case parser.Applied:
			res.Applied++
		case parser.Duplicate:
			res.Duplicates++
		default:
			res.Ignored++
		}
		m.record(out.String())
	}

	m.logger.InfoContext(ctx, "ingested webhook delivery",
		"received", res.Received,
		"confirmed", res.Confirmed,
		"applied", res.Applied,
		"failed", res.Failed,
	)
	return res, nil
}

func (m *Monitor) record(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordWebhookTransaction(outcome)
	}
}

func dedupe(sigs []string) []string {
	seen := make(map[string]bool, len(sigs))
	out := make([]string, 0, len(sigs))
	for _, s := range sigs {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
