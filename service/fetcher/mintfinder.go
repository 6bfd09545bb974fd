package fetcher

import (
	"context"
	"log/slog"

	"github.com/brojonat/mintledger/service/metrics"
	"github.com/brojonat/mintledger/service/parser"
	"github.com/brojonat/mintledger/service/solana"
)

// DefaultSearchBatchSize is the page size for mint searches.
const DefaultSearchBatchSize = 5

// Resolver inspects one transaction for an account's mint.
type Resolver interface {
	ResolveMint(ctx context.Context, tx *solana.ParsedTransaction, account string) (string, parser.Provenance, error)
}

// MintFinder discovers the mint of token accounts the ledger does not know.
type MintFinder struct {
	walker    *Walker
	rpc       RPC
	resolver  Resolver
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewMintFinder creates a finder. batchSize <= 0 uses DefaultSearchBatchSize.
func NewMintFinder(walker *Walker, rpcClient RPC, resolver Resolver, batchSize int, m *metrics.Metrics, logger *slog.Logger) *MintFinder {
	if batchSize <= 0 {
		batchSize = DefaultSearchBatchSize
	}
	return &MintFinder{
		walker:    walker,
		rpc:       rpcClient,
		resolver:  resolver,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

// FindMint returns the mint of the first of addresses it can pin down, or
// "" if none. Live accounts are read straight from chain; closed ones are
// searched for in their own history, newest first.
func (f *MintFinder) FindMint(ctx context.Context, addresses []string) (string, error) {
	if mint := f.fromChain(ctx, addresses); mint != "" {
		f.record("chain")
		return mint, nil
	}

	for _, addr := range addresses {
		out, err := f.walker.walk(ctx, addr, "search", func(ctx context.Context, txs []*solana.ParsedTransaction) (Outcome, error) {
			for _, tx := range txs {
				mint, prov, err := f.resolver.ResolveMint(ctx, tx, addr)
				if err != nil {
					return Outcome{}, err
				}
				switch prov {
				case parser.Found:
					return Outcome{Value: mint, Done: true}, nil
				case parser.Foreign:
					f.logger.DebugContext(ctx, "account belongs to another mint",
						"account", addr,
						"signature", tx.Signature(),
					)
					return Outcome{Done: true}, nil
				}
			}
			return Outcome{}, nil
		}, f.batchSize)
		if err != nil {
			return "", err
		}
		if out.Value != "" {
			f.record("history")
			f.logger.InfoContext(ctx, "mint found in history", "account", addr, "mint", out.Value)
			return out.Value, nil
		}
	}
	return "", nil
}

func (f *MintFinder) fromChain(ctx context.Context, addresses []string) string {
	accounts, err := f.rpc.GetMultipleAccounts(ctx, addresses)
	if err != nil {
		f.logger.WarnContext(ctx, "failed to read token accounts, searching history",
			"addresses", addresses,
			"error", err,
		)
		return ""
	}
	for _, acct := range accounts {
		if acct == nil || acct.Data == nil || !acct.Owner.Equals(solana.TokenProgramID) {
			continue
		}
		layout, err := solana.DecodeTokenAccount(acct.Data.GetBinary())
		if err != nil {
			continue
		}
		return layout.Mint.String()
	}
	return ""
}

func (f *MintFinder) record(source string) {
	if f.metrics != nil {
		f.metrics.RecordMintSearch(source)
	}
}
