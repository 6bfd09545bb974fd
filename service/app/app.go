// Package app assembles the ledger's components from configuration. The
// server, the worker and the CLI all build their pipeline through it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/brojonat/mintledger/service/config"
	"github.com/brojonat/mintledger/service/db"
	"github.com/brojonat/mintledger/service/fetcher"
	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/metrics"
	"github.com/brojonat/mintledger/service/monitor"
	"github.com/brojonat/mintledger/service/parser"
	"github.com/brojonat/mintledger/service/solana"
	"github.com/brojonat/mintledger/service/sqlite"
)

// Store is a ledger store that owns a connection.
type Store interface {
	ledger.Store
	Close() error
}

// Node is everything the pipeline asks of the chain.
type Node interface {
	fetcher.RPC
	monitor.RPC
}

// OpenStore opens the configured backend and makes sure its schema exists.
func OpenStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		s, err := db.Open(ctx, cfg.DatabaseURL, m)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info("connected to postgres")
		return s, nil
	case config.BackendSQLite, "":
		s, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("opened sqlite ledger", "path", cfg.SQLitePath)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewRPC creates the node client with rate limiting and metrics.
func NewRPC(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *solana.Client {
	opts := []solana.Option{solana.WithRateLimit(cfg.RPCRPS)}
	if m != nil {
		opts = append(opts, solana.WithMetrics(m, EndpointLabel(cfg.RPCURL)))
	}
	return solana.NewClient(cfg.RPCURL, logger, opts...)
}

// Pipeline is the assembled ingestion path for one token.
type Pipeline struct {
	Parser     *parser.Parser
	Backfiller *fetcher.Backfiller
	Monitor    *monitor.Monitor
}

// NewPipeline wires parser, history walker, mint finder, backfiller and
// monitor around store. publisher may be nil.
func NewPipeline(cfg *config.Config, store ledger.Store, node Node, publisher parser.Publisher, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	writer := parser.NewWriter(store)
	resolver := parser.NewResolver(writer, cfg.Token, logger)
	walker := fetcher.NewWalker(node, store, m, logger)
	finder := fetcher.NewMintFinder(walker, node, resolver, cfg.SearchBatchSize, m, logger)

	p, err := parser.New(writer, cfg.Token, finder, publisher, m, logger)
	if err != nil {
		return nil, err
	}

	backfiller := fetcher.NewBackfiller(walker, p, cfg.BackfillBatchSize, m, logger)
	mon := monitor.New(node, p, backfiller, cfg.Token, monitor.Options{
		ConfirmRetries:  cfg.ConfirmRetries,
		ConfirmInterval: cfg.ConfirmInterval,
	}, m, logger)

	return &Pipeline{
		Parser:     p,
		Backfiller: backfiller,
		Monitor:    mon,
	}, nil
}

// EndpointLabel reduces an RPC URL to a metrics label. The URL itself may
// carry an API key and never becomes a label.
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
func EndpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	host := parsed.Hostname()

	for _, provider := range []string{"helius", "quiknode", "quicknode", "alchemy", "triton", "rpcpool"} {
		if strings.Contains(host, provider) {
			if provider == "quicknode" {
				return "quiknode"
			}
			return provider
		}
	}
	for _, cluster := range []string{"mainnet", "devnet", "testnet"} {
		if strings.Contains(host, cluster) {
			return cluster
		}
	}
	return host
}
