package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/ledger/ledgertest"
	"github.com/brojonat/mintledger/service/solana"
	"github.com/brojonat/mintledger/service/solana/solanatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "walkedAddress"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedHistory adds n successful transactions to address, oldest first, and
// returns their signatures newest first.
func seedHistory(chain *solanatest.Chain, address string, from, n int) []string {
	sigs := make([]string, n)
	for i := 0; i < n; i++ {
		sig := solanatest.Sig(from + i)
		chain.AddTx(solanatest.Tx(sig, []string{"payer"}, solanatest.Other("syncNative")), address)
		sigs[n-1-i] = sig
	}
	return sigs
}

func collect(seen *[]string) Reducer {
	return func(ctx context.Context, txs []*solana.ParsedTransaction) (Outcome, error) {
		for _, tx := range txs {
			*seen = append(*seen, tx.Signature())
		}
		return Outcome{}, nil
	}
}

func TestWalk_PagesNewestToOldest(t *testing.T) {
	chain := solanatest.NewChain()
	want := seedHistory(chain, testAddress, 1, 12)
	w := NewWalker(chain, ledgertest.New(), nil, testLogger())

	var got []string
	out, err := w.Walk(context.Background(), testAddress, collect(&got), 5)
	require.NoError(t, err)
	assert.False(t, out.Done)
	assert.Equal(t, want, got)
	// 5 + 5 + 2, then an empty page
	assert.Equal(t, 4, chain.ListCalls)
	assert.Equal(t, 3, chain.FetchCalls)
}

func TestWalk_EmptyHistory(t *testing.T) {
	chain := solanatest.NewChain()
	w := NewWalker(chain, ledgertest.New(), nil, testLogger())

	called := false
	out, err := w.Walk(context.Background(), testAddress, func(ctx context.Context, txs []*solana.ParsedTransaction) (Outcome, error) {
		called = true
		return Outcome{}, nil
	}, 5)
	require.NoError(t, err)
	assert.Equal(t, Outcome{}, out)
	assert.False(t, called)
	assert.Equal(t, 0, chain.FetchCalls)
}

func TestWalk_SkipsFailedAndIngested(t *testing.T) {
	chain := solanatest.NewChain()
	store := ledgertest.New()
	ctx := context.Background()

	sigs := seedHistory(chain, testAddress, 1, 3)
	failed := solanatest.Sig(100)
	chain.AddTx(solanatest.FailedTx(failed, solanatest.Other("syncNative")), testAddress)
	require.NoError(t, store.SaveEvent(ctx, ledger.Event{Signature: sigs[1], Type: ledger.EventTransfer}))

	w := NewWalker(chain, store, nil, testLogger())
	var got []string
	_, err := w.Walk(ctx, testAddress, collect(&got), 10)
	require.NoError(t, err)

	assert.Equal(t, []string{sigs[0], sigs[2]}, got)
	assert.NotContains(t, chain.Fetched, failed)
	assert.NotContains(t, chain.Fetched, sigs[1])
}

func TestWalk_AllIngestedPageSkipsFetch(t *testing.T) {
	chain := solanatest.NewChain()
	store := ledgertest.New()
	ctx := context.Background()
	for _, sig := range seedHistory(chain, testAddress, 1, 4) {
		require.NoError(t, store.SaveEvent(ctx, ledger.Event{Signature: sig, Type: ledger.EventMint}))
	}

	w := NewWalker(chain, store, nil, testLogger())
	var got []string
	_, err := w.Walk(ctx, testAddress, collect(&got), 2)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, chain.FetchCalls)
	assert.Equal(t, 3, chain.ListCalls)
}

func TestWalk_StopsWhenDone(t *testing.T) {
	chain := solanatest.NewChain()
	sigs := seedHistory(chain, testAddress, 1, 10)
	w := NewWalker(chain, ledgertest.New(), nil, testLogger())

	out, err := w.Walk(context.Background(), testAddress, func(ctx context.Context, txs []*solana.ParsedTransaction) (Outcome, error) {
		for _, tx := range txs {
			if tx.Signature() == sigs[3] {
				return Outcome{Value: tx.Signature(), Done: true}, nil
			}
		}
		return Outcome{}, nil
	}, 2)
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.Equal(t, sigs[3], out.Value)
	assert.Equal(t, 2, chain.ListCalls)
}

func TestWalk_ListErrorAborts(t *testing.T) {
	chain := solanatest.NewChain()
	seedHistory(chain, testAddress, 1, 3)
	chain.ListErr = errors.New("node unavailable")
	w := NewWalker(chain, ledgertest.New(), nil, testLogger())

	_, err := w.Walk(context.Background(), testAddress, collect(new([]string)), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node unavailable")
}

func TestWalk_FetchErrorSkipsPage(t *testing.T) {
	chain := solanatest.NewChain()
	seedHistory(chain, testAddress, 1, 6)
	chain.FetchErr = errors.New("batch failed")
	w := NewWalker(chain, ledgertest.New(), nil, testLogger())

	var got []string
	_, err := w.Walk(context.Background(), testAddress, collect(&got), 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 2, chain.FetchCalls)
	assert.Equal(t, 3, chain.ListCalls)
}

func TestWalk_MissingBodiesAreDropped(t *testing.T) {
	chain := solanatest.NewChain()
	sigs := seedHistory(chain, testAddress, 1, 3)
	chain.Missing[sigs[0]] = true
	w := NewWalker(chain, ledgertest.New(), nil, testLogger())

	var got []string
	_, err := w.Walk(context.Background(), testAddress, collect(&got), 5)
	require.NoError(t, err)
	assert.Equal(t, sigs[1:], got)
}

func TestWalk_StoreErrorAborts(t *testing.T) {
	chain := solanatest.NewChain()
	seedHistory(chain, testAddress, 1, 3)
	store := ledgertest.New()
	store.Fail["SignatureExists"] = errors.New("disk full")
	w := NewWalker(chain, store, nil, testLogger())

	_, err := w.Walk(context.Background(), testAddress, collect(new([]string)), 5)
	require.Error(t, err)
	var se *ledger.StoreError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, 0, chain.FetchCalls)
}

func TestWalk_ReducerErrorAborts(t *testing.T) {
	chain := solanatest.NewChain()
	seedHistory(chain, testAddress, 1, 3)
	w := NewWalker(chain, ledgertest.New(), nil, testLogger())

	boom := errors.New("boom")
	_, err := w.Walk(context.Background(), testAddress, func(ctx context.Context, txs []*solana.ParsedTransaction) (Outcome, error) {
		return Outcome{}, boom
	}, 5)
	assert.ErrorIs(t, err, boom)
}

func TestWalk_InvalidBatchSize(t *testing.T) {
	w := NewWalker(solanatest.NewChain(), ledgertest.New(), nil, testLogger())
	_, err := w.Walk(context.Background(), testAddress, collect(new([]string)), 0)
	assert.Error(t, err)
}
