// Package verify compares ledger balances against live token accounts.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/metrics"
	"github.com/brojonat/mintledger/service/numeric"
	"github.com/brojonat/mintledger/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
)

// MaxAccountsPerCall is the node's getMultipleAccounts limit.
const MaxAccountsPerCall = 100

// RPC reads token accounts from chain.
type RPC interface {
	GetMultipleAccounts(ctx context.Context, addresses []string) ([]*rpc.Account, error)
}

// BalanceSource lists ledger balances. Both ledger.Store and the HTTP
// client satisfy it.
type BalanceSource interface {
	ListBalances(ctx context.Context) ([]ledger.Balance, error)
}

// Mismatch is an account whose ledger and on-chain balances differ.
// Amounts are base-10 raw units.
type Mismatch struct {
	Address string `json:"address"`
	Ledger  string `json:"ledger"`
	OnChain string `json:"on_chain"`
}

// Report is the outcome of one verification pass.
type Report struct {
	Checked    int        `json:"checked"`
	Matched    int        `json:"matched"`
	Skipped    int        `json:"skipped"`
	Mismatches []Mismatch `json:"mismatches"`
}

// OK reports whether every checked account matched.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

// Verifier checks ledger balances for one token.
type Verifier struct {
	rpc     RPC
	source  BalanceSource
	token   string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a verifier. If metrics is nil, no metrics are recorded.
func New(rpcClient RPC, source BalanceSource, token string, m *metrics.Metrics, logger *slog.Logger) *Verifier {
	return &Verifier{
		rpc:     rpcClient,
		source:  source,
		token:   token,
		metrics: m,
		logger:  logger,
	}
}

// Run compares every ledger balance with its on-chain account. An account
// that no longer exists on chain counts as a zero balance; one that holds a
// different mint is skipped.
func (v *Verifier) Run(ctx context.Context) (*Report, error) {
	balances, err := v.source.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	report := &Report{Mismatches: []Mismatch{}}
	for start := 0; start < len(balances); start += MaxAccountsPerCall {
		end := min(start+MaxAccountsPerCall, len(balances))
		if err := v.check(ctx, balances[start:end], report); err != nil {
			return nil, err
		}
	}

	if v.metrics != nil {
		v.metrics.SetBalanceMismatches(len(report.Mismatches))
	}
	v.logger.InfoContext(ctx, "verified ledger balances",
		"checked", report.Checked,
		"matched", report.Matched,
		"skipped", report.Skipped,
		"mismatches", len(report.Mismatches),
	)
	return report, nil
}

func (v *Verifier) check(ctx context.Context, batch []ledger.Balance, report *Report) error {
	addresses := make([]string, len(batch))
	for i, b := range batch {
		addresses[i] = b.Address
	}
	accounts, err := v.rpc.GetMultipleAccounts(ctx, addresses)
	if err != nil {
		return fmt.Errorf("read token accounts: %w", err)
	}
	if len(accounts) != len(batch) {
		return fmt.Errorf("node returned %d accounts for %d addresses", len(accounts), len(batch))
	}

	for i, b := range batch {
		stored, err := numeric.Decode(b.Balance)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", b.Address, err)
		}

		onChain := new(big.Int)
		if acct := accounts[i]; acct != nil && acct.Data != nil && acct.Owner.Equals(solana.TokenProgramID) {
			layout, err := solana.DecodeTokenAccount(acct.Data.GetBinary())
			if err != nil {
				return fmt.Errorf("decode token account %s: %w", b.Address, err)
			}
			if layout.Mint.String() != v.token {
				v.logger.DebugContext(ctx, "skipping account of another mint", "address", b.Address)
				report.Skipped++
				continue
			}
			onChain.SetUint64(layout.Amount)
		}

		report.Checked++
		if stored.Cmp(onChain) == 0 {
			report.Matched++
			continue
		}
		v.logger.WarnContext(ctx, "balance mismatch",
			"address", b.Address,
			"ledger", stored.String(),
			"on_chain", onChain.String(),
		)
		report.Mismatches = append(report.Mismatches, Mismatch{
			Address: b.Address,
			Ledger:  stored.String(),
			OnChain: onChain.String(),
		})
	}
	return nil
}
