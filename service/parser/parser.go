// Package parser turns confirmed token program transactions into ledger
// mutations: balances, supply and the signed event log.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/metrics"
	"github.com/brojonat/mintledger/service/numeric"
	"github.com/brojonat/mintledger/service/solana"
	lru "github.com/hashicorp/golang-lru"
)

const mintCacheSize = 8192

// MintFinder resolves the mint shared by a set of token accounts when the
// ledger cannot. It returns "" when nothing conclusive is found.
type MintFinder interface {
	FindMint(ctx context.Context, addresses []string) (string, error)
}

// Publisher is notified of every event after it is committed.
type Publisher interface {
	PublishEvent(ctx context.Context, event ledger.Event) error
}

// Result describes what Apply did with a transaction.
type Result int

const (
	// Ignored means the transaction had nothing for the tracked token.
	Ignored Result = iota
	// Applied means the transaction's effects were committed.
	Applied
	// Duplicate means the signature was already in the event log.
	Duplicate
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	default:
		return "ignored"
	}
}

// Parser applies transactions to the ledger for one token.
type Parser struct {
	writer    *Writer
	token     string
	finder    MintFinder
	mints     *lru.Cache
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a parser for token. publisher and m may be nil.
func New(writer *Writer, token string, finder MintFinder, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) (*Parser, error) {
	cache, err := lru.New(mintCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create mint cache: %w", err)
	}
	return &Parser{
		writer:    writer,
		token:     token,
		finder:    finder,
		mints:     cache,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Token returns the tracked mint address.
func (p *Parser) Token() string {
	return p.token
}

// Apply classifies tx's token instructions and commits their effect as one
// unit, keyed by the transaction's signature. Applying the same transaction
// twice changes nothing the second time.
func (p *Parser) Apply(ctx context.Context, tx *solana.ParsedTransaction) (Result, error) {
	sig := tx.Signature()
	if sig == "" {
		return Ignored, errors.New("transaction has no signature")
	}
	if tx.Failed() {
		return Ignored, nil
	}

	store := p.writer.Store()
	seen, err := store.SignatureExists(ctx, sig)
	if err != nil {
		return Ignored, err
	}
	if seen {
		return Duplicate, nil
	}

	// Mint lookups may walk history, so they happen before taking the write lock.
	ops, err := p.classify(ctx, sig, tx)
	if err != nil {
		return Ignored, err
	}
	if len(ops) == 0 {
		return Ignored, nil
	}

	signers := tx.Signers()
	var (
		event  ledger.Event
		result = Ignored
	)
	err = p.writer.Do(ctx, func(ls ledger.Store) error {
		exists, err := ls.SignatureExists(ctx, sig)
		if err != nil {
			return err
		}
		if exists {
			result = Duplicate
			return nil
		}
		for _, op := range ops {
			if err := p.apply(ctx, ls, op); err != nil {
				return fmt.Errorf("apply %s: %w", eventType(op), err)
			}
		}
		// the log keeps one event per signature: the last ledger instruction
		event = p.event(sig, signers, ops[len(ops)-1])
		if err := ls.SaveEvent(ctx, event); err != nil {
			return err
		}
		result = Applied
		return nil
	})
	if err != nil {
		return Ignored, err
	}

	if result == Applied {
		p.afterCommit(ctx, ops, event)
	}
	return result, nil
}

// classify decodes tx's token instructions and keeps those for the tracked
// token, resolving transfer mints as needed.
func (p *Parser) classify(ctx context.Context, sig string, tx *solana.ParsedTransaction) ([]solana.Instruction, error) {
	var ops []solana.Instruction
	for _, raw := range tx.TokenInstructions() {
		ix, err := solana.DecodeInstruction(raw)
		if errors.Is(err, solana.ErrUnsupportedInstruction) {
			p.recordInstruction("other", "unsupported")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode instruction in %s: %w", sig, err)
		}

		mint, err := p.mintOf(ctx, ix)
		if err != nil {
			return nil, err
		}
		if mint != p.token {
			p.recordInstruction(eventType(ix), "foreign_mint")
			p.logger.DebugContext(ctx, "ignoring instruction for other mint",
				"signature", sig,
				"type", eventType(ix),
				"mint", mint,
			)
			continue
		}
		if t, ok := ix.(solana.Transfer); ok {
			t.Mint = mint
			ix = t
		}
		p.recordInstruction(eventType(ix), "matched")
		ops = append(ops, ix)
	}
	return ops, nil
}

func (p *Parser) mintOf(ctx context.Context, ix solana.Instruction) (string, error) {
	switch v := ix.(type) {
	case solana.InitializeAccount:
		return v.Mint, nil
	case solana.MintTo:
		return v.Mint, nil
	case solana.Burn:
		return v.Mint, nil
	case solana.Transfer:
		if v.Mint != "" {
			return v.Mint, nil
		}
		return p.resolveTransferMint(ctx, v.Source, v.Destination)
	}
	return "", fmt.Errorf("unexpected instruction %T", ix)
}

// resolveTransferMint looks in the cache, then the ledger, then history.
func (p *Parser) resolveTransferMint(ctx context.Context, source, destination string) (string, error) {
	for _, addr := range []string{source, destination} {
		if v, ok := p.mints.Get(addr); ok {
			return v.(string), nil
		}
	}

	addresses := []string{source, destination}
	mint, err := p.writer.Store().GetMintForAccounts(ctx, addresses)
	if err != nil {
		return "", err
	}
	if mint != "" {
		p.recordMintSearch("store")
	} else if p.finder != nil {
		mint, err = p.finder.FindMint(ctx, addresses)
		if err != nil {
			return "", fmt.Errorf("find mint for %s/%s: %w", source, destination, err)
		}
		p.recordMintSearch("finder")
	}

	if mint == "" {
		p.recordMintSearch("unresolved")
		return "", nil
	}
	p.mints.Add(source, mint)
	p.mints.Add(destination, mint)
	return mint, nil
}

func (p *Parser) apply(ctx context.Context, ls ledger.Store, ix solana.Instruction) error {
	switch v := ix.(type) {
	case solana.InitializeAccount:
		return p.initAccount(ctx, ls, v)
	case solana.Transfer:
		if err := p.adjustBalance(ctx, ls, v.Source, new(big.Int).Neg(v.Amount)); err != nil {
			return err
		}
		return p.adjustBalance(ctx, ls, v.Destination, v.Amount)
	case solana.MintTo:
		if err := p.adjustBalance(ctx, ls, v.Account, v.Amount); err != nil {
			return err
		}
		return p.adjustSupply(ctx, ls, v.Mint, v.Amount)
	case solana.Burn:
		neg := new(big.Int).Neg(v.Amount)
		if err := p.adjustBalance(ctx, ls, v.Account, neg); err != nil {
			return err
		}
		return p.adjustSupply(ctx, ls, v.Mint, neg)
	}
	return fmt.Errorf("unexpected instruction %T", ix)
}

// initAccount creates the account at zero, or fills in the owner of a
// placeholder created by an earlier-applied (later on chain) movement.
func (p *Parser) initAccount(ctx context.Context, ls ledger.Store, ix solana.InitializeAccount) error {
	acct, err := ls.GetAccount(ctx, ix.Account)
	if errors.Is(err, ledger.ErrNotFound) {
		return ls.SaveAccount(ctx, ledger.Account{
			Address: ix.Account,
			Mint:    p.token,
			Owner:   ix.Owner,
			Balance: numeric.Encode(numeric.Zero()),
		})
	}
	if err != nil {
		return err
	}
	if acct.Owner == "" && ix.Owner != "" {
		acct.Owner = ix.Owner
		return ls.SaveAccount(ctx, *acct)
	}
	return nil
}

// adjustBalance adds delta to address's balance. History is replayed newest
// first, so an address can move tokens before its initializeAccount has been
// seen; such addresses get a placeholder account with no owner.
func (p *Parser) adjustBalance(ctx context.Context, ls ledger.Store, address string, delta *big.Int) error {
	acct, err := ls.GetAccount(ctx, address)
	if errors.Is(err, ledger.ErrNotFound) {
		return ls.SaveAccount(ctx, ledger.Account{
			Address: address,
			Mint:    p.token,
			Balance: numeric.Encode(delta),
		})
	}
	if err != nil {
		return err
	}
	balance, err := numeric.Add(acct.Balance, delta)
	if err != nil {
		return fmt.Errorf("balance of %s: %w", address, err)
	}
	return ls.UpdateBalance(ctx, address, balance)
}

func (p *Parser) adjustSupply(ctx context.Context, ls ledger.Store, mint string, delta *big.Int) error {
	supply, err := ls.GetSupply(ctx, mint)
	if errors.Is(err, ledger.ErrNotFound) {
		p.logger.WarnContext(ctx, "supply change for unseeded mint", "mint", mint)
		return ls.SaveMint(ctx, ledger.Mint{Address: mint, Supply: numeric.Encode(delta)})
	}
	if err != nil {
		return err
	}
	next, err := numeric.Add(supply, delta)
	if err != nil {
		return fmt.Errorf("supply of %s: %w", mint, err)
	}
	return ls.UpdateSupply(ctx, mint, next)
}

func (p *Parser) event(sig string, signers []string, ix solana.Instruction) ledger.Event {
	e := ledger.Event{
		Signature: sig,
		Type:      eventType(ix),
		Signers:   signers,
		Mint:      p.token,
	}
	switch v := ix.(type) {
	case solana.InitializeAccount:
		e.Account = v.Account
		e.Owner = v.Owner
	case solana.Transfer:
		e.Source = v.Source
		e.Destination = v.Destination
		e.Authority = v.Authority
		e.Amount = numeric.Encode(v.Amount)
	case solana.MintTo:
		e.Destination = v.Account
		e.Amount = numeric.Encode(v.Amount)
	case solana.Burn:
		e.Source = v.Account
		e.Amount = numeric.Encode(v.Amount)
	}
	return e
}

func (p *Parser) afterCommit(ctx context.Context, ops []solana.Instruction, event ledger.Event) {
	for _, op := range ops {
		if init, ok := op.(solana.InitializeAccount); ok {
			p.mints.Add(init.Account, p.token)
		}
	}
	p.logger.DebugContext(ctx, "applied transaction",
		"signature", event.Signature,
		"type", event.Type,
		"instructions", len(ops),
	)
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishEvent(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "failed to publish ledger event",
			"signature", event.Signature,
			"error", err,
		)
	}
}

func eventType(ix solana.Instruction) ledger.EventType {
	switch ix.(type) {
	case solana.InitializeAccount:
		return ledger.EventInitAccount
	case solana.Transfer:
		return ledger.EventTransfer
	case solana.MintTo:
		return ledger.EventMint
	case solana.Burn:
		return ledger.EventBurn
	}
	return ""
}

func (p *Parser) recordInstruction(typ ledger.EventType, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordInstruction(string(typ), outcome)
	}
}

func (p *Parser) recordMintSearch(source string) {
	if p.metrics != nil {
		p.metrics.RecordMintSearch(source)
	}
}
