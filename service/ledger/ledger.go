// Package ledger defines the off-chain ledger model and the storage
// contract every backend implements.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// EventType classifies a recorded ledger event.
type EventType string

const (
	EventInitAccount EventType = "initAccount"
	EventTransfer    EventType = "transfer"
	EventMint        EventType = "mint"
	EventBurn        EventType = "burn"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventInitAccount, EventTransfer, EventMint, EventBurn:
		return true
	}
	return false
}

// Account is a token account holding the tracked mint. Balance is the
// signed 64-digit hex form produced by numeric.Encode.
type Account struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Balance string `json:"balance"`
}

// Mint is the tracked token's metadata. Supply is rebuilt by replay and
// stored like a balance.
type Mint struct {
	Address               string `json:"mint"`
	MintAuthorityOption   uint32 `json:"mintAuthorityOption"`
	MintAuthority         string `json:"mintAuthority"`
	Supply                string `json:"supply"`
	Decimals              uint8  `json:"decimals"`
	IsInitialized         bool   `json:"isInitialized"`
	FreezeAuthorityOption uint32 `json:"freezeAuthorityOption"`
	FreezeAuthority       string `json:"freezeAuthority"`
}

// Event is an immutable record of one applied transaction, keyed by its
// signature.
type Event struct {
	Signature   string    `json:"signature"`
	Type        EventType `json:"type"`
	Signers     []string  `json:"signers"`
	Mint        string    `json:"mint,omitempty"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Account     string    `json:"account,omitempty"`
	Authority   string    `json:"authority,omitempty"`
	Amount      string    `json:"amount,omitempty"`
}

// Addresses returns every account the event names.
func (e Event) Addresses() []string {
	var out []string
	for _, a := range []string{e.Account, e.Source, e.Destination} {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Balance is an address/balance pair for bulk listings.
type Balance struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// EventFilter narrows ListEvents. Empty fields match everything. Address
// matches source, destination, account, owner or any signer.
type EventFilter struct {
	Signature string
	Type      EventType
	Address   string
	Limit     int
}

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store is the ledger persistence contract. Writers are the parser and
// bootstrap only; everything else reads.
type Store interface {
	SignatureExists(ctx context.Context, signature string) (bool, error)
	AccountExists(ctx context.Context, address string) (bool, error)

	// SaveAccount inserts or replaces an account.
	SaveAccount(ctx context.Context, a Account) error
	// SaveEvent records an event. A second event for the same signature is
	// ignored without error.
	SaveEvent(ctx context.Context, e Event) error
	// SaveMint inserts or replaces mint metadata.
	SaveMint(ctx context.Context, m Mint) error
	UpdateBalance(ctx context.Context, address, balance string) error
	UpdateSupply(ctx context.Context, mint, supply string) error

	// GetAccount returns ErrNotFound when the address is unknown.
	GetAccount(ctx context.Context, address string) (*Account, error)
	// GetMintForAccounts returns the mint shared by the known accounts among
	// addresses, or "" unless exactly one distinct mint is found.
	GetMintForAccounts(ctx context.Context, addresses []string) (string, error)
	// GetSupply returns ErrNotFound when the mint is unknown.
	GetSupply(ctx context.Context, mint string) (string, error)
	GetMint(ctx context.Context, mint string) (*Mint, error)

	ListAccounts(ctx context.Context) ([]Account, error)
	ListBalances(ctx context.Context) ([]Balance, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)

	// Atomic runs fn against a store scoped to one transaction. Any error
	// from fn rolls back every write fn made.
	Atomic(ctx context.Context, fn func(Store) error) error

	Close() error
}
