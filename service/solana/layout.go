package solana

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// MintSize is the length of a token program mint account.
	MintSize = 82
	// TokenAccountSize is the length of a token program account.
	TokenAccountSize = 165
)

// MintLayout is the on-chain state of a mint account.
type MintLayout struct {
	MintAuthorityOption   uint32
	MintAuthority         solana.PublicKey
	Supply                uint64
	Decimals              uint8
	IsInitialized         bool
	FreezeAuthorityOption uint32
	FreezeAuthority       solana.PublicKey
}

// TokenAccountLayout is the leading part of a token account's state.
type TokenAccountLayout struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// DecodeMint decodes mint account data.
func DecodeMint(data []byte) (*MintLayout, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("mint data too short: %d bytes", len(data))
	}
	dec := bin.NewBorshDecoder(data)
	var (
		m   MintLayout
		err error
	)
	if m.MintAuthorityOption, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, fmt.Errorf("mint authority option: %w", err)
	}
	if m.MintAuthority, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("mint authority: %w", err)
	}
	if m.Supply, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("supply: %w", err)
	}
	if m.Decimals, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("decimals: %w", err)
	}
	init, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("is initialized: %w", err)
	}
	m.IsInitialized = init != 0
	if m.FreezeAuthorityOption, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, fmt.Errorf("freeze authority option: %w", err)
	}
	if m.FreezeAuthority, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("freeze authority: %w", err)
	}
	return &m, nil
}

// DecodeTokenAccount decodes the mint, owner and amount of token account data.
func DecodeTokenAccount(data []byte) (*TokenAccountLayout, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	dec := bin.NewBorshDecoder(data)
	var (
		a   TokenAccountLayout
		err error
	)
	if a.Mint, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	if a.Owner, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if a.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return &a, nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}
