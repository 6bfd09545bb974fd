package fetcher

import (
	"context"
	"log/slog"

	"github.com/brojonat/mintledger/service/metrics"
	"github.com/brojonat/mintledger/service/parser"
	"github.com/brojonat/mintledger/service/solana"
)

// DefaultBackfillBatchSize is the page size for a full history replay.
const DefaultBackfillBatchSize = 8

// Applier applies one transaction to the ledger.
type Applier interface {
	Apply(ctx context.Context, tx *solana.ParsedTransaction) (parser.Result, error)
}

// BackfillStats summarizes a replay.
type BackfillStats struct {
	Seen       int `json:"seen"`
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Ignored    int `json:"ignored"`
	Failed     int `json:"failed"`
}

// Backfiller replays an address's full history through an Applier.
type Backfiller struct {
	walker    *Walker
	applier   Applier
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewBackfiller creates a backfiller. batchSize <= 0 uses DefaultBackfillBatchSize.
func NewBackfiller(walker *Walker, applier Applier, batchSize int, m *metrics.Metrics, logger *slog.Logger) *Backfiller {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}
	return &Backfiller{
		walker:    walker,
		applier:   applier,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

// Run walks all of address's history and applies every transaction in it.
// A transaction that fails to apply is logged and left unrecorded so the
// next run retries it; the walk itself carries on.
func (b *Backfiller) Run(ctx context.Context, address string) (BackfillStats, error) {
	var stats BackfillStats
	b.logger.InfoContext(ctx, "starting backfill", "address", address, "batch_size", b.batchSize)

	_, err := b.walker.walk(ctx, address, "replay", func(ctx context.Context, txs []*solana.ParsedTransaction) (Outcome, error) {
		// sequential: each transaction reads balances the previous one wrote
		for _, tx := range txs {
			stats.Seen++
			res, err := b.applier.Apply(ctx, tx)
			if err != nil {
				stats.Failed++
				b.record("error")
				b.logger.ErrorContext(ctx, "failed to apply transaction",
					"signature", tx.Signature(),
					"error", err,
				)
				continue
			}
			switch res {
			case parser.Applied:
				stats.Applied++
			case parser.Duplicate:
				stats.Duplicates++
			default:
				stats.Ignored++
			}
			b.record(res.String())
		}
		return Outcome{}, nil
	}, b.batchSize)

	b.logger.InfoContext(ctx, "backfill finished",
		"address", address,
		"seen", stats.Seen,
		"applied", stats.Applied,
		"duplicates", stats.Duplicates,
		"ignored", stats.Ignored,
		"failed", stats.Failed,
		"error", err,
	)
	return stats, err
}

func (b *Backfiller) record(outcome string) {
	if b.metrics != nil {
		b.metrics.RecordTransaction("backfill", outcome)
	}
}
