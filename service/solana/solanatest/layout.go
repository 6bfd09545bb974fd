package solanatest

import (
	"bytes"

	"github.com/brojonat/mintledger/service/solana"
	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
)

const (
	// Token is the mint most tests track.
	Token = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// OtherMint is a mint the ledger does not track.
	OtherMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	// Authority is a mint authority for seeded mints.
	Authority = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

// EncodeMint serializes m the way the token program stores it.
func EncodeMint(m solana.MintLayout) []byte {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	must(enc.WriteUint32(m.MintAuthorityOption, bin.LE))
	must(enc.WriteBytes(m.MintAuthority[:], false))
	must(enc.WriteUint64(m.Supply, bin.LE))
	must(enc.WriteUint8(m.Decimals))
	must(enc.WriteBool(m.IsInitialized))
	must(enc.WriteUint32(m.FreezeAuthorityOption, bin.LE))
	must(enc.WriteBytes(m.FreezeAuthority[:], false))
	return buf.Bytes()
}

// EncodeTokenAccount serializes a token account holding amount of mint.
func EncodeTokenAccount(mint, owner string, amount uint64) []byte {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	m := sol.MustPublicKeyFromBase58(mint)
	o := sol.MustPublicKeyFromBase58(owner)
	must(enc.WriteBytes(m[:], false))
	must(enc.WriteBytes(o[:], false))
	must(enc.WriteUint64(amount, bin.LE))
	must(enc.WriteBytes(make([]byte, solana.TokenAccountSize-buf.Len()), false))
	return buf.Bytes()
}

// Mint is a seeded mint layout with six decimals.
func Mint(supply uint64) solana.MintLayout {
	return solana.MintLayout{
		MintAuthorityOption: 1,
		MintAuthority:       sol.MustPublicKeyFromBase58(Authority),
		Supply:              supply,
		Decimals:            6,
		IsInitialized:       true,
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
