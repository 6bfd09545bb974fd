// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/brojonat/mintledger/service/ledger"
)

// Store is a map-backed ledger.Store. Set Fail to make a named operation
// (e.g. "UpdateBalance") return an error.
type Store struct {
	mu       sync.Mutex
	atomicMu sync.Mutex

	accounts map[string]ledger.Account
	mints    map[string]ledger.Mint
	events   map[string]ledger.Event
	order    []string

	Fail map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]ledger.Account),
		mints:    make(map[string]ledger.Mint),
		events:   make(map[string]ledger.Event),
		Fail:     make(map[string]error),
	}
}

func (s *Store) fail(op string) error {
	if err, ok := s.Fail[op]; ok {
		return &ledger.StoreError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) SignatureExists(ctx context.Context, signature string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SignatureExists"); err != nil {
		return false, err
	}
	_, ok := s.events[signature]
	return ok, nil
}

func (s *Store) AccountExists(ctx context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AccountExists"); err != nil {
		return false, err
	}
	_, ok := s.accounts[address]
	return ok, nil
}

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveAccount"); err != nil {
		return err
	}
	s.accounts[a.Address] = a
	return nil
}

func (s *Store) SaveEvent(ctx context.Context, e ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveEvent"); err != nil {
		return err
	}
	if _, ok := s.events[e.Signature]; ok {
		return nil
	}
	e.Signers = slices.Clone(e.Signers)
	s.events[e.Signature] = e
	s.order = append(s.order, e.Signature)
	return nil
}

func (s *Store) SaveMint(ctx context.Context, m ledger.Mint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveMint"); err != nil {
		return err
	}
	s.mints[m.Address] = m
	return nil
}

func (s *Store) UpdateBalance(ctx context.Context, address, balance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateBalance"); err != nil {
		return err
	}
	a, ok := s.accounts[address]
	if !ok {
		return nil
	}
	a.Balance = balance
	s.accounts[address] = a
	return nil
}

func (s *Store) UpdateSupply(ctx context.Context, mint, supply string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateSupply"); err != nil {
		return err
	}
	m, ok := s.mints[mint]
	if !ok {
		return nil
	}
	m.Supply = supply
	s.mints[mint] = m
	return nil
}

func (s *Store) GetAccount(ctx context.Context, address string) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetAccount"); err != nil {
		return nil, err
	}
	a, ok := s.accounts[address]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &a, nil
}

func (s *Store) GetMintForAccounts(ctx context.Context, addresses []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetMintForAccounts"); err != nil {
		return "", err
	}
	mints := make(map[string]struct{})
	for _, addr := range addresses {
		if a, ok := s.accounts[addr]; ok {
			mints[a.Mint] = struct{}{}
		}
	}
	if len(mints) != 1 {
		return "", nil
	}
	for m := range mints {
		return m, nil
	}
	return "", nil
}

func (s *Store) GetSupply(ctx context.Context, mint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mints[mint]
	if !ok {
		return "", ledger.ErrNotFound
	}
	return m.Supply, nil
}

func (s *Store) GetMint(ctx context.Context, mint string) (*ledger.Mint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mints[mint]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &m, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *Store) ListBalances(ctx context.Context) ([]ledger.Balance, error) {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Balance, len(accounts))
	for i, a := range accounts {
		out[i] = ledger.Balance{Address: a.Address, Balance: a.Balance}
	}
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context, f ledger.EventFilter) ([]ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Event
	for _, sig := range s.order {
		e := s.events[sig]
		if f.Signature != "" && e.Signature != f.Signature {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Address != "" && !mentions(e, f.Address) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func mentions(e ledger.Event, addr string) bool {
	if e.Owner == addr || slices.Contains(e.Addresses(), addr) {
		return true
	}
	return slices.Contains(e.Signers, addr)
}

// Atomic runs fn against a copy of the store and publishes the copy only
// when fn succeeds.
func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	s.atomicMu.Lock()
	defer s.atomicMu.Unlock()

	tx := s.clone()
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = tx.accounts
	s.mints = tx.mints
	s.events = tx.events
	s.order = tx.order
	return nil
}

func (s *Store) clone() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := New()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.mints {
		c.mints[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	c.order = slices.Clone(s.order)
	c.Fail = s.Fail
	return c
}

func (s *Store) Close() error { return nil }

// EventCount returns how many events are recorded.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

var _ ledger.Store = (*Store)(nil)
