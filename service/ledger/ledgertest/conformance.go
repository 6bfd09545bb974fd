package ledgertest

import (
	"context"
	"errors"
	"testing"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConformance exercises the ledger.Store contract against a backend.
// newStore must return an empty store.
func RunConformance(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("accounts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.AccountExists(ctx, "acct1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.GetAccount(ctx, "acct1")
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		require.NoError(t, s.SaveAccount(ctx, ledger.Account{Address: "acct1", Mint: "mintA", Owner: "w1", Balance: "00"}))
		require.NoError(t, s.UpdateBalance(ctx, "acct1", "ff"))

		got, err := s.GetAccount(ctx, "acct1")
		require.NoError(t, err)
		assert.Equal(t, ledger.Account{Address: "acct1", Mint: "mintA", Owner: "w1", Balance: "ff"}, *got)

		// replace keeps a single row
		require.NoError(t, s.SaveAccount(ctx, ledger.Account{Address: "acct1", Mint: "mintA", Owner: "w2", Balance: "ff"}))
		require.NoError(t, s.SaveAccount(ctx, ledger.Account{Address: "acct0", Mint: "mintA", Owner: "w3", Balance: "01"}))

		all, err := s.ListAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "acct0", all[0].Address)
		assert.Equal(t, "w2", all[1].Owner)

		balances, err := s.ListBalances(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ledger.Balance{{Address: "acct0", Balance: "01"}, {Address: "acct1", Balance: "ff"}}, balances)
	})

	t.Run("mint for accounts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveAccount(ctx, ledger.Account{Address: "a", Mint: "m1", Balance: "0"}))
		require.NoError(t, s.SaveAccount(ctx, ledger.Account{Address: "b", Mint: "m1", Balance: "0"}))
		require.NoError(t, s.SaveAccount(ctx, ledger.Account{Address: "c", Mint: "m2", Balance: "0"}))

		mint, err := s.GetMintForAccounts(ctx, []string{"a", "b", "unknown"})
		require.NoError(t, err)
		assert.Equal(t, "m1", mint)

		mint, err = s.GetMintForAccounts(ctx, []string{"a", "c"})
		require.NoError(t, err)
		assert.Empty(t, mint, "ambiguous")

		mint, err = s.GetMintForAccounts(ctx, []string{"x", "y"})
		require.NoError(t, err)
		assert.Empty(t, mint, "none known")
	})

	t.Run("mint and supply", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetSupply(ctx, "m1")
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		m := ledger.Mint{
			Address:             "m1",
			MintAuthorityOption: 1,
			MintAuthority:       "auth",
			Supply:              "00",
			Decimals:            6,
			IsInitialized:       true,
		}
		require.NoError(t, s.SaveMint(ctx, m))
		require.NoError(t, s.UpdateSupply(ctx, "m1", "10"))

		supply, err := s.GetSupply(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "10", supply)

		got, err := s.GetMint(ctx, "m1")
		require.NoError(t, err)
		m.Supply = "10"
		assert.Equal(t, m, *got)

		_, err = s.GetMint(ctx, "m2")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("events", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		e1 := ledger.Event{
			Signature: "sig1", Type: ledger.EventTransfer, Signers: []string{"w1"},
			Mint: "m1", Source: "a", Destination: "b", Authority: "w1", Amount: "05",
		}
		e2 := ledger.Event{
			Signature: "sig2", Type: ledger.EventInitAccount, Signers: []string{"payer"},
			Mint: "m1", Account: "c", Owner: "w2",
		}
		require.NoError(t, s.SaveEvent(ctx, e1))
		require.NoError(t, s.SaveEvent(ctx, e2))

		// duplicate signature is ignored
		dup := e1
		dup.Type = ledger.EventBurn
		require.NoError(t, s.SaveEvent(ctx, dup))

		ok, err := s.SignatureExists(ctx, "sig1")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.SignatureExists(ctx, "sig9")
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := s.ListEvents(ctx, ledger.EventFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)

		got, err := s.ListEvents(ctx, ledger.EventFilter{Signature: "sig1"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, e1, got[0])

		got, err = s.ListEvents(ctx, ledger.EventFilter{Type: ledger.EventInitAccount})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, e2, got[0])

		got, err = s.ListEvents(ctx, ledger.EventFilter{Address: "b"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "sig1", got[0].Signature)

		got, err = s.ListEvents(ctx, ledger.EventFilter{Address: "payer"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "sig2", got[0].Signature)

		got, err = s.ListEvents(ctx, ledger.EventFilter{Address: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("atomic commit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.Atomic(ctx, func(tx ledger.Store) error {
			if err := tx.SaveAccount(ctx, ledger.Account{Address: "a", Mint: "m", Balance: "01"}); err != nil {
				return err
			}
			return tx.SaveEvent(ctx, ledger.Event{Signature: "s", Type: ledger.EventMint, Mint: "m", Account: "a", Amount: "01"})
		})
		require.NoError(t, err)

		ok, err := s.SignatureExists(ctx, "s")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.AccountExists(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("atomic rollback", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.Atomic(ctx, func(tx ledger.Store) error {
			if err := tx.SaveAccount(ctx, ledger.Account{Address: "a", Mint: "m", Balance: "01"}); err != nil {
				return err
			}
			if err := tx.SaveEvent(ctx, ledger.Event{Signature: "s", Type: ledger.EventMint}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		ok, err := s.SignatureExists(ctx, "s")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = s.AccountExists(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
