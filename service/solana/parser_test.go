package solana

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenIx(t *testing.T, typ string, info map[string]any) ParsedInstruction {
	t.Helper()
	parsed, err := json.Marshal(map[string]any{"type": typ, "info": info})
	require.NoError(t, err)
	return ParsedInstruction{Program: TokenProgramName, ProgramID: TokenProgramID.String(), Parsed: parsed}
}

func TestDecodeInstruction_InitializeAccountVariants(t *testing.T) {
	for _, typ := range []string{"initializeAccount", "initializeAccount2", "initializeAccount3"} {
		t.Run(typ, func(t *testing.T) {
			ix := tokenIx(t, typ, map[string]any{"account": "acct", "mint": "mint", "owner": "owner"})
			got, err := DecodeInstruction(ix)
			require.NoError(t, err)
			assert.Equal(t, InitializeAccount{Account: "acct", Mint: "mint", Owner: "owner"}, got)
		})
	}
}

func TestDecodeInstruction_Transfer(t *testing.T) {
	ix := tokenIx(t, "transfer", map[string]any{
		"source": "a", "destination": "b", "authority": "auth", "amount": "1500",
	})
	got, err := DecodeInstruction(ix)
	require.NoError(t, err)

	tr, ok := got.(Transfer)
	require.True(t, ok)
	assert.Equal(t, "a", tr.Source)
	assert.Equal(t, "b", tr.Destination)
	assert.Empty(t, tr.Mint)
	assert.Equal(t, "auth", tr.Authority)
	assert.Equal(t, int64(1500), tr.Amount.Int64())
	assert.False(t, tr.Checked)
}

func TestDecodeInstruction_TransferChecked(t *testing.T) {
	ix := tokenIx(t, "transferChecked", map[string]any{
		"source": "a", "destination": "b", "mint": "m", "multisigAuthority": "ms",
		"tokenAmount": map[string]any{"amount": "99", "decimals": 6, "uiAmountString": "0.000099"},
	})
	got, err := DecodeInstruction(ix)
	require.NoError(t, err)

	tr := got.(Transfer)
	assert.Equal(t, "m", tr.Mint)
	assert.Equal(t, "ms", tr.Authority)
	assert.Equal(t, int64(99), tr.Amount.Int64())
	assert.True(t, tr.Checked)
}

func TestDecodeInstruction_MintAndBurn(t *testing.T) {
	got, err := DecodeInstruction(tokenIx(t, "mintToChecked", map[string]any{
		"mint": "m", "account": "dst", "mintAuthority": "auth",
		"tokenAmount": map[string]any{"amount": "10"},
	}))
	require.NoError(t, err)
	mt := got.(MintTo)
	assert.Equal(t, "dst", mt.Account)
	assert.Equal(t, int64(10), mt.Amount.Int64())
	assert.True(t, mt.Checked)

	got, err = DecodeInstruction(tokenIx(t, "burn", map[string]any{
		"mint": "m", "account": "src", "authority": "auth", "amount": "3",
	}))
	require.NoError(t, err)
	b := got.(Burn)
	assert.Equal(t, "src", b.Account)
	assert.Equal(t, int64(3), b.Amount.Int64())
	assert.False(t, b.Checked)
}

func TestDecodeInstruction_Unsupported(t *testing.T) {
	_, err := DecodeInstruction(tokenIx(t, "closeAccount", map[string]any{"account": "a"}))
	assert.ErrorIs(t, err, ErrUnsupportedInstruction)

	_, err = DecodeInstruction(ParsedInstruction{Program: "system", Parsed: json.RawMessage(`{"type":"transfer"}`)})
	assert.ErrorIs(t, err, ErrUnsupportedInstruction)
}

func TestDecodeInstruction_MissingAmount(t *testing.T) {
	_, err := DecodeInstruction(tokenIx(t, "transfer", map[string]any{"source": "a", "destination": "b"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedInstruction)
}

func TestParsedTransaction_Helpers(t *testing.T) {
	raw := `{
		"slot": 1,
		"transaction": {
			"signatures": ["sig1", "sig2"],
			"message": {"accountKeys": [
				{"pubkey": "payer", "signer": true, "writable": true},
				{"pubkey": "other", "signer": false, "writable": true},
				{"pubkey": "cosigner", "signer": true, "writable": false}
			]}
		},
		"meta": {
			"err": null,
			"innerInstructions": [{"index": 0, "instructions": [
				{"program": "spl-token", "programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", "parsed": {"type": "transfer", "info": {}}},
				{"program": "system", "programId": "11111111111111111111111111111111", "parsed": {"type": "transfer", "info": {}}},
				{"programId": "Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo", "accounts": [], "data": "abc"}
			]}]
		}
	}`
	var tx ParsedTransaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))

	assert.Equal(t, "sig1", tx.Signature())
	assert.Equal(t, []string{"payer", "cosigner"}, tx.Signers())
	assert.False(t, tx.Failed())
	assert.Len(t, tx.TokenInstructions(), 1)

	tx.Meta.Err = map[string]any{"InstructionError": []any{0, "Custom"}}
	assert.True(t, tx.Failed())
}
