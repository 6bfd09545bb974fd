package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/numeric"
	"github.com/brojonat/mintledger/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrNotMintAccount is returned by SeedMint for accounts the token program
// does not own.
var ErrNotMintAccount = errors.New("not a token program mint account")

// SeedMint records mint metadata from the on-chain mint account. Supply
// starts at zero and is rebuilt by replay; a supply already in the ledger
// is kept so restarts do not lose it.
func (p *Parser) SeedMint(ctx context.Context, address string, acct *rpc.Account) error {
	if acct == nil || acct.Data == nil || !acct.Owner.Equals(solana.TokenProgramID) {
		return fmt.Errorf("%w: %s", ErrNotMintAccount, address)
	}
	layout, err := solana.DecodeMint(acct.Data.GetBinary())
	if err != nil {
		return fmt.Errorf("decode mint %s: %w", address, err)
	}

	m := ledger.Mint{
		Address:               address,
		MintAuthorityOption:   layout.MintAuthorityOption,
		Supply:                numeric.Encode(numeric.Zero()),
		Decimals:              layout.Decimals,
		IsInitialized:         layout.IsInitialized,
		FreezeAuthorityOption: layout.FreezeAuthorityOption,
	}
	if layout.MintAuthorityOption != 0 {
		m.MintAuthority = layout.MintAuthority.String()
	}
	if layout.FreezeAuthorityOption != 0 {
		m.FreezeAuthority = layout.FreezeAuthority.String()
	}

	return p.writer.Do(ctx, func(ls ledger.Store) error {
		supply, err := ls.GetSupply(ctx, address)
		switch {
		case err == nil:
			m.Supply = supply
		case !errors.Is(err, ledger.ErrNotFound):
			return err
		}
		p.logger.InfoContext(ctx, "seeded mint",
			"mint", address,
			"decimals", m.Decimals,
			"supply", m.Supply,
		)
		return ls.SaveMint(ctx, m)
	})
}
