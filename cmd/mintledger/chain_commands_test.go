package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/brojonat/mintledger/service/app"
	"github.com/brojonat/mintledger/service/config"
	"github.com/brojonat/mintledger/service/server"
	"github.com/brojonat/mintledger/service/solana/solanatest"
	"github.com/brojonat/mintledger/service/sqlite"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode answers getMultipleAccounts from a map of token-account amounts.
// Addresses missing from the map come back as null.
func fakeNode(t *testing.T, amounts map[string]uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int               `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getMultipleAccounts", req.Method)

		var addresses []string
		require.NoError(t, json.Unmarshal(req.Params[0], &addresses))

		value := make([]any, len(addresses))
		for i, addr := range addresses {
			amt, ok := amounts[addr]
			if !ok {
				continue
			}
			data := solanatest.EncodeTokenAccount(solanatest.Token, solanatest.Authority, amt)
			value[i] = map[string]any{
				"lamports":   2039280,
				"owner":      solana.TokenProgramID.String(),
				"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
				"executable": false,
				"rentEpoch":  361,
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"context": map[string]any{"slot": 1},
				"value":   value,
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyCommand_Match(t *testing.T) {
	path := seedLedger(t)
	node := fakeNode(t, map[string]uint64{annAcct: 1_500_000, bobAcct: 500_000})

	out, err := runApp(t, "--sqlite-path", path, "--token", solanatest.Token, "--rpc-url", node.URL, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "all balances match")
	assert.Contains(t, out, "checked: 2")
}

func TestVerifyCommand_Mismatch(t *testing.T) {
	path := seedLedger(t)
	// bob's account is gone on chain
	node := fakeNode(t, map[string]uint64{annAcct: 1_500_000})

	out, err := runApp(t, "--sqlite-path", path, "--token", solanatest.Token, "--rpc-url", node.URL, "--json", "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 balances disagree")

	var report struct {
		Checked    int `json:"checked"`
		Mismatches []struct {
			Address string `json:"address"`
			Ledger  string `json:"ledger"`
			OnChain string `json:"on_chain"`
		} `json:"mismatches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, bobAcct, report.Mismatches[0].Address)
	assert.Equal(t, "500000", report.Mismatches[0].Ledger)
	assert.Equal(t, "0", report.Mismatches[0].OnChain)
}

func TestVerifyCommand_ViaServer(t *testing.T) {
	path := seedLedger(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := sqlite.Open(path, logger)
	require.NoError(t, err)
	defer store.Close()

	api := httptest.NewServer(server.New(":0", "", store, nil, nil, logger).Handler())
	defer api.Close()
	node := fakeNode(t, map[string]uint64{annAcct: 1_500_000, bobAcct: 500_000})

	// no --sqlite-path: balances must come from the server
	out, err := runApp(t, "--token", solanatest.Token, "--rpc-url", node.URL, "--server-url", api.URL, "verify", "--via-server")
	require.NoError(t, err)
	assert.Contains(t, out, "all balances match")
}

func TestVerifyCommand_RequiresTokenAndRPC(t *testing.T) {
	path := seedLedger(t)

	_, err := runApp(t, "--sqlite-path", path, "--rpc-url", "http://127.0.0.1:1", "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")

	_, err = runApp(t, "--sqlite-path", path, "--token", solanatest.Token, "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc-url is required")

	_, err = runApp(t, "--sqlite-path", path, "--token", "not-a-mint", "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token mint")
}

func TestClientCommands(t *testing.T) {
	path := seedLedger(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := sqlite.Open(path, logger)
	require.NoError(t, err)
	defer store.Close()

	api := httptest.NewServer(server.New(":0", "", store, nil, nil, logger).Handler())
	defer api.Close()

	out, err := runApp(t, "--server-url", api.URL, "client", "balance", annAcct)
	require.NoError(t, err)
	assert.Contains(t, out, "1500000")

	out, err = runApp(t, "--server-url", api.URL, "--token", solanatest.Token, "client", "balances")
	require.NoError(t, err)
	assert.Contains(t, out, "1.500000")

	out, err = runApp(t, "--server-url", api.URL, "client", "events", "--address", bobAcct)
	require.NoError(t, err)
	assert.Contains(t, out, solanatest.Sig(2))
	assert.NotContains(t, out, solanatest.Sig(1))

	_, err = runApp(t, "--server-url", api.URL, "client", "account", "MissingAcct")
	assert.Error(t, err)
}

func TestATACommand(t *testing.T) {
	wallet := solana.MustPublicKeyFromBase58(solanatest.Authority)
	want, _, err := solana.FindAssociatedTokenAddress(wallet, solana.MustPublicKeyFromBase58(solanatest.Token))
	require.NoError(t, err)

	out, err := runApp(t, "--token", solanatest.Token, "ata", solanatest.Authority)
	require.NoError(t, err)
	assert.Equal(t, want.String()+"\n", out)

	out, err = runApp(t, "--token", solanatest.Token, "--jq", ".account", "ata", solanatest.Authority)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+want.String()+`"`, out)

	_, err = runApp(t, "--token", solanatest.Token, "ata", "0OIl")
	assert.Error(t, err)
}

func TestReconcileCommands_RequireToken(t *testing.T) {
	for _, cmd := range []string{"schedule", "unschedule", "reconcile"} {
		t.Run(cmd, func(t *testing.T) {
			_, err := runApp(t, "temporal", cmd)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "token is required")
		})
	}

	_, err := runApp(t, "--token", solanatest.Token, "temporal", "schedule", "--interval", "10s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1m")
}

func TestFakeNodeRoundTrip(t *testing.T) {
	// guards the fixture: a null entry decodes as a missing account
	node := fakeNode(t, map[string]uint64{annAcct: 7})
	rpcClient := app.NewRPC(&config.Config{RPCURL: node.URL}, nil, slog.Default())
	accts, err := rpcClient.GetMultipleAccounts(context.Background(), []string{annAcct, bobAcct})
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.NotNil(t, accts[0])
	assert.Nil(t, accts[1])
}
