package solana

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAuthority = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testMintKey   = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	testOwnerKey  = solana.MustPublicKeyFromBase58("5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1")
)

func testMint() MintLayout {
	return MintLayout{
		MintAuthorityOption:   1,
		MintAuthority:         testAuthority,
		Supply:                1_000_000,
		Decimals:              6,
		IsInitialized:         true,
		FreezeAuthorityOption: 0,
	}
}

func encodeMint(t *testing.T, m MintLayout) []byte {
	t.Helper()
	buf := make([]byte, 0, MintSize)
	buf = binary.LittleEndian.AppendUint32(buf, m.MintAuthorityOption)
	buf = append(buf, m.MintAuthority[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, m.Supply)
	buf = append(buf, m.Decimals)
	if m.IsInitialized {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, m.FreezeAuthorityOption)
	buf = append(buf, m.FreezeAuthority[:]...)
	require.Len(t, buf, MintSize)
	return buf
}

func encodeTokenAccount(mint, owner solana.PublicKey, amount uint64) []byte {
	buf := make([]byte, 0, TokenAccountSize)
	buf = append(buf, mint[:]...)
	buf = append(buf, owner[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	return append(buf, make([]byte, TokenAccountSize-len(buf))...)
}

func TestDecodeMint(t *testing.T) {
	want := testMint()
	got, err := DecodeMint(encodeMint(t, want))
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestDecodeMint_Short(t *testing.T) {
	_, err := DecodeMint(make([]byte, 10))
	assert.Error(t, err)
}

func TestDecodeTokenAccount(t *testing.T) {
	got, err := DecodeTokenAccount(encodeTokenAccount(testMintKey, testOwnerKey, 4200))
	require.NoError(t, err)
	assert.Equal(t, testMintKey, got.Mint)
	assert.Equal(t, testOwnerKey, got.Owner)
	assert.Equal(t, uint64(4200), got.Amount)
}

func TestDecodeTokenAccount_Short(t *testing.T) {
	_, err := DecodeTokenAccount(make([]byte, 64))
	assert.Error(t, err)
}
