package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenAccount_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/token-account/acct123", r.URL.Path)
		json.NewEncoder(w).Encode(ledger.Account{Address: "acct123", Mint: "mint", Owner: "owner", Balance: "0a"})
	}))
	defer server.Close()

	acct, err := NewClient(server.URL, nil, nil).TokenAccount(context.Background(), "acct123")
	require.NoError(t, err)
	assert.Equal(t, "owner", acct.Owner)
	assert.Equal(t, "0a", acct.Balance)
}

func TestTokenAccount_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "token account not found"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).TokenAccount(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Contains(t, err.Error(), "token account not found")
}

func TestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Mint(context.Background(), "mint")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrNotFound)
	assert.Contains(t, err.Error(), "status 500")
}

func TestBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balance/acct123", r.URL.Path)
		json.NewEncoder(w).Encode(ledger.Balance{Address: "acct123", Balance: "ff"})
	}))
	defer server.Close()

	b, err := NewClient(server.URL, nil, nil).Balance(context.Background(), "acct123")
	require.NoError(t, err)
	assert.Equal(t, "ff", b.Balance)
}

func TestListBalances_Sorted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/all-balances", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"b": "02", "a": "01", "c": "03"})
	}))
	defer server.Close()

	balances, err := NewClient(server.URL, nil, nil).ListBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ledger.Balance{
		{Address: "a", Balance: "01"},
		{Address: "b", Balance: "02"},
		{Address: "c", Balance: "03"},
	}, balances)
}

func TestListEvents_Query(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "acct", q.Get("address"))
		assert.Equal(t, "transfer", q.Get("type"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Empty(t, q.Get("signature"))
		json.NewEncoder(w).Encode([]ledger.Event{{Signature: "s1", Type: ledger.EventTransfer}})
	}))
	defer server.Close()

	events, err := NewClient(server.URL, nil, nil).ListEvents(context.Background(), ledger.EventFilter{
		Address: "acct",
		Type:    ledger.EventTransfer,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "s1", events[0].Signature)
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, nil, nil).Health(context.Background()))
}
