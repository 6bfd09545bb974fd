package parser

import (
	"context"
	"errors"
	"log/slog"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/numeric"
	"github.com/brojonat/mintledger/service/solana"
)

// Provenance is the result of inspecting one transaction for an account's mint.
type Provenance int

const (
	// Unknown means the transaction says nothing conclusive; keep searching.
	Unknown Provenance = iota
	// Found means the account was initialized for the tracked token.
	Found
	// Foreign means the account belongs to a different mint; stop searching.
	Foreign
)

func (p Provenance) String() string {
	switch p {
	case Found:
		return "found"
	case Foreign:
		return "foreign"
	default:
		return "unknown"
	}
}

// Resolver answers "which mint does this account hold" from a single
// transaction, without applying anything else from it.
type Resolver struct {
	writer *Writer
	token  string
	logger *slog.Logger
}

// NewResolver creates a resolver for the tracked token.
func NewResolver(writer *Writer, token string, logger *slog.Logger) *Resolver {
	return &Resolver{writer: writer, token: token, logger: logger}
}

// ResolveMint scans tx's token instructions for account. On Found it also
// records the account (owner known, zero balance) if the ledger lacks it.
func (r *Resolver) ResolveMint(ctx context.Context, tx *solana.ParsedTransaction, account string) (string, Provenance, error) {
	for _, raw := range tx.TokenInstructions() {
		ix, err := solana.DecodeInstruction(raw)
		if err != nil {
			continue
		}

		switch v := ix.(type) {
		case solana.InitializeAccount:
			if v.Account != account {
				continue
			}
			if v.Mint == r.token && v.Owner != "" {
				if err := r.remember(ctx, v); err != nil {
					return "", Unknown, err
				}
				return v.Mint, Found, nil
			}
			if v.Mint != "" && v.Mint != r.token {
				return "", Foreign, nil
			}

		case solana.Transfer:
			if (v.Source == account || v.Destination == account) && v.Mint != "" && v.Mint != r.token {
				return "", Foreign, nil
			}

		case solana.MintTo:
			if v.Account == account && v.Mint != r.token {
				return "", Foreign, nil
			}

		case solana.Burn:
			if v.Account == account && v.Mint != r.token {
				return "", Foreign, nil
			}
		}
	}
	return "", Unknown, nil
}

func (r *Resolver) remember(ctx context.Context, ix solana.InitializeAccount) error {
	return r.writer.Do(ctx, func(tx ledger.Store) error {
		acct, err := tx.GetAccount(ctx, ix.Account)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			r.logger.DebugContext(ctx, "recording account found in history",
				"account", ix.Account,
				"owner", ix.Owner,
			)
			return tx.SaveAccount(ctx, ledger.Account{
				Address: ix.Account,
				Mint:    r.token,
				Owner:   ix.Owner,
				Balance: numeric.Encode(numeric.Zero()),
			})
		case err != nil:
			return err
		case acct.Owner == "":
			acct.Owner = ix.Owner
			return tx.SaveAccount(ctx, *acct)
		}
		return nil
	})
}
