package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/mintledger/service/fetcher"
	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/ledger/ledgertest"
	natspkg "github.com/brojonat/mintledger/service/nats"
	"github.com/brojonat/mintledger/service/numeric"
	"github.com/brojonat/mintledger/service/parser"
	"github.com/brojonat/mintledger/service/solana"
	"github.com/brojonat/mintledger/service/solana/solanatest"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = solanatest.Token

type harness struct {
	chain     *solanatest.Chain
	store     *ledgertest.Store
	publisher *natspkg.MockPublisher
	monitor   *Monitor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain := solanatest.NewChain()
	store := ledgertest.New()
	pub := natspkg.NewMockPublisher()

	writer := parser.NewWriter(store)
	resolver := parser.NewResolver(writer, token, logger)
	walker := fetcher.NewWalker(chain, store, nil, logger)
	finder := fetcher.NewMintFinder(walker, chain, resolver, 0, nil, logger)
	p, err := parser.New(writer, token, finder, pub, nil, logger)
	require.NoError(t, err)
	backfiller := fetcher.NewBackfiller(walker, p, 0, nil, logger)

	return &harness{
		chain:     chain,
		store:     store,
		publisher: pub,
		monitor:   New(chain, p, backfiller, token, Options{ConfirmRetries: 1, ConfirmInterval: 1}, nil, logger),
	}
}

func (h *harness) balance(t *testing.T, address string) int64 {
	t.Helper()
	acct, err := h.store.GetAccount(context.Background(), address)
	require.NoError(t, err)
	v, err := numeric.Decode(acct.Balance)
	require.NoError(t, err)
	return v.Int64()
}

func TestBootstrap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.chain.SetAccount(token, solana.TokenProgramID, solanatest.EncodeMint(solanatest.Mint(70)))
	h.chain.AddTx(solanatest.Tx(solanatest.Sig(1), []string{"alice"}, solanatest.InitAccount("A", token, "alice")), token)
	h.chain.AddTx(solanatest.Tx(solanatest.Sig(2), []string{"auth"}, solanatest.MintTo(token, "A", 70)), token)

	stats, err := h.monitor.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Applied)

	m, err := h.store.GetMint(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.Equal(t, solanatest.Authority, m.MintAuthority)
	assert.Equal(t, int64(70), h.balance(t, "A"))
	assert.Len(t, h.publisher.GetPublishedEvents(), 2)
}

func TestBootstrap_NotAMintStillReplays(t *testing.T) {
	h := newHarness(t)
	h.chain.AddTx(solanatest.Tx(solanatest.Sig(1), []string{"auth"}, solanatest.MintTo(token, "A", 5)), token)

	stats, err := h.monitor.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, int64(5), h.balance(t, "A"))
}

func TestBootstrap_SeedsOnlyTokenProgramAccounts(t *testing.T) {
	h := newHarness(t)
	h.chain.SetAccount(token, sol.SystemProgramID, solanatest.EncodeMint(solanatest.Mint(70)))

	_, err := h.monitor.Bootstrap(context.Background())
	require.NoError(t, err)
	_, err = h.store.GetMint(context.Background(), token)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestBootstrap_ReplayErrorReturned(t *testing.T) {
	h := newHarness(t)
	h.chain.ListErr = errors.New("node down")

	_, err := h.monitor.Bootstrap(context.Background())
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	confirmed := solanatest.Sig(1)
	pending := solanatest.Sig(2)
	broken := solanatest.Sig(3)
	h.chain.AddTx(solanatest.Tx(confirmed, []string{"auth"},
		solanatest.InitAccount("A", token, "alice"), solanatest.MintTo(token, "A", 9)))
	h.chain.AddTx(solanatest.Tx(pending, []string{"auth"}, solanatest.MintTo(token, "A", 100)))
	h.chain.SetStatus(confirmed, rpc.ConfirmationStatusConfirmed)
	h.chain.SetStatus(broken, "error")

	res, err := h.monitor.Ingest(ctx, []string{confirmed, pending, confirmed, broken})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Received: 3, Confirmed: 1, Applied: 1}, res)
	assert.Equal(t, []string{confirmed}, h.chain.Fetched)
	assert.Equal(t, int64(9), h.balance(t, "A"))

	// redelivery is a no-op
	res, err = h.monitor.Ingest(ctx, []string{confirmed})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Received: 1, Confirmed: 1, Duplicates: 1}, res)
	assert.Equal(t, int64(9), h.balance(t, "A"))
	assert.Equal(t, 1, h.store.EventCount())
}

func TestIngest_NothingConfirmed(t *testing.T) {
	h := newHarness(t)
	res, err := h.monitor.Ingest(context.Background(), []string{solanatest.Sig(1)})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Received: 1}, res)
	assert.Equal(t, 0, h.chain.FetchCalls)
}

func TestIngest_Empty(t *testing.T) {
	h := newHarness(t)
	res, err := h.monitor.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{}, res)
}

func TestIngest_FetchError(t *testing.T) {
	h := newHarness(t)
	sig := solanatest.Sig(1)
	h.chain.SetStatus(sig, rpc.ConfirmationStatusFinalized)
	h.chain.FetchErr = errors.New("batch failed")

	_, err := h.monitor.Ingest(context.Background(), []string{sig})
	assert.Error(t, err)
}

func TestIngest_ApplyFailureContinues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ok := solanatest.Sig(1)
	bad := solanatest.Sig(2)
	h.chain.AddTx(solanatest.Tx(ok, []string{"auth"}, solanatest.MintTo(token, "A", 1)))
	// a malformed amount fails decoding
	badTx := solanatest.Tx(bad, []string{"auth"}, solanatest.MintTo(token, "B", 1))
	badTx.Meta.InnerInstructions[0].Instructions[0].Parsed = []byte(`{"type":"mintTo","info":{"mint":"` + token + `","account":"B","amount":"lots"}}`)
	h.chain.AddTx(badTx)
	h.chain.SetStatus(ok, rpc.ConfirmationStatusConfirmed)
	h.chain.SetStatus(bad, rpc.ConfirmationStatusConfirmed)

	res, err := h.monitor.Ingest(ctx, []string{bad, ok})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(1), h.balance(t, "A"))
}
