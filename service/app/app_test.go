package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/brojonat/mintledger/service/config"
	"github.com/brojonat/mintledger/service/parser"
	"github.com/brojonat/mintledger/service/solana"
	"github.com/brojonat/mintledger/service/solana/solanatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://mainnet.helius-rpc.com/?api-key=secret", "helius"},
		{"https://api.mainnet-beta.solana.com", "mainnet"},
		{"https://api.devnet.solana.com", "devnet"},
		{"https://example.quicknode.pro/abc", "quiknode"},
		{"http://127.0.0.1:8899", "127.0.0.1"},
		{"::not a url", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, EndpointLabel(tt.url))
		})
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := &config.Config{
		StoreBackend: config.BackendSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "ledger.db"),
	}
	s, err := OpenStore(context.Background(), cfg, nil, testLogger())
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.SignatureExists(context.Background(), solanatest.Sig(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, err := OpenStore(context.Background(), &config.Config{StoreBackend: "bolt"}, nil, testLogger())
	assert.Error(t, err)
}

func TestNewPipeline_Bootstrap(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Token:             solanatest.Token,
		StoreBackend:      config.BackendSQLite,
		SQLitePath:        filepath.Join(t.TempDir(), "ledger.db"),
		BackfillBatchSize: 2,
		SearchBatchSize:   2,
		ConfirmRetries:    1,
		ConfirmInterval:   1,
	}
	store, err := OpenStore(ctx, cfg, nil, testLogger())
	require.NoError(t, err)
	defer store.Close()

	chain := solanatest.NewChain()
	chain.SetAccount(solanatest.Token, solana.TokenProgramID, solanatest.EncodeMint(solanatest.Mint(0)))
	tx := solanatest.Tx(solanatest.Sig(1), []string{"ann"},
		solanatest.InitAccount("AnnAcct", solanatest.Token, "ann"),
		solanatest.MintTo(solanatest.Token, "AnnAcct", 250))
	chain.AddTx(tx, solanatest.Token)

	p, err := NewPipeline(cfg, store, chain, nil, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, solanatest.Token, p.Parser.Token())

	stats, err := p.Monitor.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)

	acct, err := store.GetAccount(ctx, "AnnAcct")
	require.NoError(t, err)
	assert.Equal(t, "250", acct.Balance)

	res, err := p.Parser.Apply(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, parser.Duplicate, res)
}
