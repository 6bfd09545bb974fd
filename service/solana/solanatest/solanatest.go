// Package solanatest builds jsonParsed transactions and fakes the node for
// tests.
package solanatest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/brojonat/mintledger/service/solana"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Sig returns a deterministic, valid signature for n.
func Sig(n int) string {
	var s sol.Signature
	s[0] = byte(n)
	s[1] = byte(n >> 8)
	s[63] = 0x5a
	return s.String()
}

func ix(typ string, info map[string]any) solana.ParsedInstruction {
	parsed, err := json.Marshal(map[string]any{"type": typ, "info": info})
	if err != nil {
		panic(err)
	}
	return solana.ParsedInstruction{
		Program:   solana.TokenProgramName,
		ProgramID: solana.TokenProgramID.String(),
		Parsed:    parsed,
	}
}

// InitAccount is an initializeAccount3 instruction.
func InitAccount(account, mint, owner string) solana.ParsedInstruction {
	return ix("initializeAccount3", map[string]any{"account": account, "mint": mint, "owner": owner})
}

// Transfer is a transfer instruction, which carries no mint.
func Transfer(source, destination string, amount int64) solana.ParsedInstruction {
	return ix("transfer", map[string]any{
		"source": source, "destination": destination, "authority": "authority",
		"amount": strconv.FormatInt(amount, 10),
	})
}

// TransferChecked is a transferChecked instruction.
func TransferChecked(source, destination, mint string, amount int64) solana.ParsedInstruction {
	return ix("transferChecked", map[string]any{
		"source": source, "destination": destination, "mint": mint, "authority": "authority",
		"tokenAmount": map[string]any{"amount": strconv.FormatInt(amount, 10), "decimals": 6},
	})
}

// MintTo is a mintTo instruction.
func MintTo(mint, account string, amount int64) solana.ParsedInstruction {
	return ix("mintTo", map[string]any{
		"mint": mint, "account": account, "mintAuthority": "authority",
		"amount": strconv.FormatInt(amount, 10),
	})
}

// Burn is a burnChecked instruction.
func Burn(mint, account string, amount int64) solana.ParsedInstruction {
	return ix("burnChecked", map[string]any{
		"mint": mint, "account": account, "authority": "authority",
		"tokenAmount": map[string]any{"amount": strconv.FormatInt(amount, 10), "decimals": 6},
	})
}

// Other is a token instruction the ledger does not track.
func Other(typ string) solana.ParsedInstruction {
	return ix(typ, map[string]any{"account": "x"})
}

// Tx builds a successful transaction whose inner instructions are ixs.
func Tx(sig string, signers []string, ixs ...solana.ParsedInstruction) *solana.ParsedTransaction {
	keys := make([]solana.AccountKey, 0, len(signers)+1)
	for _, s := range signers {
		keys = append(keys, solana.AccountKey{Pubkey: s, Signer: true, Writable: true})
	}
	keys = append(keys, solana.AccountKey{Pubkey: solana.TokenProgramID.String()})
	return &solana.ParsedTransaction{
		Slot: 1,
		Transaction: solana.TransactionBody{
			Signatures: []string{sig},
			Message:    solana.Message{AccountKeys: keys},
		},
		Meta: &solana.TransactionMeta{
			InnerInstructions: []solana.InnerInstructions{{Index: 0, Instructions: ixs}},
		},
	}
}

// FailedTx builds a transaction that executed with an error.
func FailedTx(sig string, ixs ...solana.ParsedInstruction) *solana.ParsedTransaction {
	tx := Tx(sig, nil, ixs...)
	tx.Meta.Err = map[string]any{"InstructionError": []any{0, "Custom"}}
	return tx
}

// Chain is an in-memory node. History lists are newest first.
type Chain struct {
	mu sync.Mutex

	history  map[string][]string
	failed   map[string]bool
	txs      map[string]*solana.ParsedTransaction
	accounts map[string]*rpc.Account
	status   map[string]rpc.ConfirmationStatusType

	// Missing signatures are listed but their bodies never resolve.
	Missing map[string]bool
	// ListErr, when set, is returned by ListSignatures.
	ListErr error
	// FetchErr, when set, is returned by GetTransactions.
	FetchErr error

	ListCalls  int
	FetchCalls int
	Fetched    []string
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{
		history:  make(map[string][]string),
		failed:   make(map[string]bool),
		txs:      make(map[string]*solana.ParsedTransaction),
		accounts: make(map[string]*rpc.Account),
		status:   make(map[string]rpc.ConfirmationStatusType),
		Missing:  make(map[string]bool),
	}
}

// AddTx appends tx to the history of every address, as the newest entry.
func (c *Chain) AddTx(tx *solana.ParsedTransaction, addresses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sig := tx.Signature()
	c.txs[sig] = tx
	if tx.Failed() {
		c.failed[sig] = true
	}
	for _, a := range addresses {
		c.history[a] = append([]string{sig}, c.history[a]...)
	}
}

// SetAccount stores raw account data owned by owner.
func (c *Chain) SetAccount(address string, owner sol.PublicKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[address] = &rpc.Account{
		Owner: owner,
		Data:  rpc.DataBytesOrJSONFromBytes(data),
	}
}

// SetStatus sets the confirmation status PollConfirmation reports.
func (c *Chain) SetStatus(sig string, status rpc.ConfirmationStatusType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[sig] = status
}

func (c *Chain) ListSignatures(ctx context.Context, address string, opts solana.ListSignaturesOpts) ([]*rpc.TransactionSignature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ListCalls++
	if c.ListErr != nil {
		return nil, c.ListErr
	}

	hist := c.history[address]
	start := 0
	if opts.Before != "" {
		start = len(hist)
		for i, s := range hist {
			if s == opts.Before {
				start = i + 1
				break
			}
		}
	}
	end := len(hist)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	out := make([]*rpc.TransactionSignature, 0, end-start)
	for _, s := range hist[start:end] {
		ts := &rpc.TransactionSignature{Signature: sol.MustSignatureFromBase58(s), Slot: 1}
		if c.failed[s] {
			ts.Err = map[string]any{"InstructionError": []any{0, "Custom"}}
		}
		out = append(out, ts)
	}
	return out, nil
}

func (c *Chain) GetTransactions(ctx context.Context, signatures []string) ([]*solana.ParsedTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FetchCalls++
	if c.FetchErr != nil {
		return nil, c.FetchErr
	}
	out := make([]*solana.ParsedTransaction, 0, len(signatures))
	for _, s := range signatures {
		c.Fetched = append(c.Fetched, s)
		if c.Missing[s] {
			continue
		}
		if tx, ok := c.txs[s]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (c *Chain) GetMultipleAccounts(ctx context.Context, addresses []string) ([]*rpc.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*rpc.Account, len(addresses))
	for i, a := range addresses {
		out[i] = c.accounts[a]
	}
	return out, nil
}

func (c *Chain) GetAccountInfo(ctx context.Context, address string) (*rpc.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[address], nil
}

func (c *Chain) PollConfirmation(ctx context.Context, signature string, maxRetries int, interval time.Duration) (rpc.ConfirmationStatusType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch st := c.status[signature]; st {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return st, nil
	case "error":
		return "", fmt.Errorf("status lookup failed for %s", signature)
	}
	return "", nil
}
