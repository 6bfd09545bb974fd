// Package fetcher walks an address's transaction history backwards and
// feeds confirmed, not-yet-ingested transactions to a reducer.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/mintledger/service/metrics"
	"github.com/brojonat/mintledger/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"
)

// RPC is the subset of the node client the walker needs.
type RPC interface {
	ListSignatures(ctx context.Context, address string, opts solana.ListSignaturesOpts) ([]*rpc.TransactionSignature, error)
	GetTransactions(ctx context.Context, signatures []string) ([]*solana.ParsedTransaction, error)
	GetMultipleAccounts(ctx context.Context, addresses []string) ([]*rpc.Account, error)
}

// SignatureChecker reports whether a signature is already in the event log.
type SignatureChecker interface {
	SignatureExists(ctx context.Context, signature string) (bool, error)
}

// Outcome is what a reducer returns for one page. Done stops the walk; Value
// is handed back to the caller of Walk.
type Outcome struct {
	Value string
	Done  bool
}

// Reducer consumes one page of resolved transactions, newest first.
type Reducer func(ctx context.Context, txs []*solana.ParsedTransaction) (Outcome, error)

// Walker pages backwards through history.
type Walker struct {
	rpc     RPC
	seen    SignatureChecker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewWalker creates a walker. If metrics is nil, no metrics are recorded.
func NewWalker(rpcClient RPC, seen SignatureChecker, m *metrics.Metrics, logger *slog.Logger) *Walker {
	return &Walker{
		rpc:     rpcClient,
		seen:    seen,
		metrics: m,
		logger:  logger,
	}
}

// Walk visits address's history newest to oldest, batchSize signatures per
// page, until history runs out or reduce returns a Done outcome.
func (w *Walker) Walk(ctx context.Context, address string, reduce Reducer, batchSize int) (Outcome, error) {
	return w.walk(ctx, address, "walk", reduce, batchSize)
}

func (w *Walker) walk(ctx context.Context, address, mode string, reduce Reducer, batchSize int) (Outcome, error) {
	if batchSize < 1 {
		return Outcome{}, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}

	before := ""
	pages := 0
	for {
		sigs, err := w.rpc.ListSignatures(ctx, address, solana.ListSignaturesOpts{Before: before, Limit: batchSize})
		if err != nil {
			return Outcome{}, err
		}
		if len(sigs) == 0 {
			w.logger.DebugContext(ctx, "history exhausted",
				"address", address,
				"mode", mode,
				"pages", pages,
			)
			return Outcome{}, nil
		}
		pages++
		if w.metrics != nil {
			w.metrics.RecordHistoryPage(mode)
		}
		before = sigs[len(sigs)-1].Signature.String()

		pending, err := w.filter(ctx, sigs)
		if err != nil {
			return Outcome{}, err
		}
		if len(pending) == 0 {
			continue
		}

		txs, err := w.rpc.GetTransactions(ctx, pending)
		if err != nil {
			// unresolved signatures stay unrecorded and are picked up next pass
			w.logger.WarnContext(ctx, "failed to fetch transaction page, skipping",
				"address", address,
				"count", len(pending),
				"error", err,
			)
			continue
		}
		if len(txs) == 0 {
			continue
		}

		out, err := reduce(ctx, txs)
		if err != nil {
			return Outcome{}, err
		}
		if out.Done {
			return out, nil
		}
	}
}

// filter drops failed transactions and signatures already in the event log.
// Existence checks run concurrently.
func (w *Walker) filter(ctx context.Context, sigs []*rpc.TransactionSignature) ([]string, error) {
	candidates := make([]string, 0, len(sigs))
	failed := 0
	for _, s := range sigs {
		if s.Err != nil {
			failed++
			continue
		}
		candidates = append(candidates, s.Signature.String())
	}

	exists := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, sig := range candidates {
		g.Go(func() error {
			ok, err := w.seen.SignatureExists(gctx, sig)
			if err != nil {
				return fmt.Errorf("check signature %s: %w", sig, err)
			}
			exists[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pending := make([]string, 0, len(candidates))
	for i, sig := range candidates {
		if !exists[i] {
			pending = append(pending, sig)
		}
	}

	if w.metrics != nil {
		if failed > 0 {
			w.metrics.RecordSignaturesSkipped("failed", failed)
		}
		if dup := len(candidates) - len(pending); dup > 0 {
			w.metrics.RecordSignaturesSkipped("already_ingested", dup)
		}
	}
	return pending, nil
}
