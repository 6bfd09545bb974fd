package db

import (
	"context"
	"testing"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/ledger/ledgertest"
	"github.com/brojonat/mintledger/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Conformance(t *testing.T) {
	SkipIfNoTestDB(t)

	ledgertest.RunConformance(t, func(t *testing.T) ledger.Store {
		store := NewTestStore(t)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
}

func TestStore_RecordsQueryMetrics(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	store.metrics = metrics.NewMetrics(prometheus.NewRegistry())

	ctx := context.Background()
	_, err := store.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, store.SaveAccount(ctx, ledger.Account{Address: "a", Mint: "m", Balance: "00"}))
	ok, err := store.AccountExists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}
