package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ListSignaturesOpts pages through an address's history, newest first.
type ListSignaturesOpts struct {
	Before string // exclusive cursor; empty starts at the newest signature
	Limit  int
}

// ListSignatures returns up to opts.Limit signatures that touched address,
// newest first, at confirmed commitment.
func (c *Client) ListSignatures(ctx context.Context, address string, opts ListSignaturesOpts) ([]*rpc.TransactionSignature, error) {
	cfg := map[string]any{
		"commitment": rpc.CommitmentConfirmed,
	}
	if opts.Limit > 0 {
		cfg["limit"] = opts.Limit
	}
	if opts.Before != "" {
		cfg["before"] = opts.Before
	}

	var out []*rpc.TransactionSignature
	if err := c.Call(ctx, "getSignaturesForAddress", []any{address, cfg}, &out); err != nil {
		return nil, fmt.Errorf("list signatures for %s: %w", address, err)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(out)))
	}
	return out, nil
}

// GetTransactions fetches jsonParsed transaction bodies in one batch.
// Signatures the node could not resolve are left out of the result.
func (c *Client) GetTransactions(ctx context.Context, signatures []string) ([]*ParsedTransaction, error) {
	cfg := map[string]any{
		"encoding":                       solana.EncodingJSONParsed,
		"commitment":                     rpc.CommitmentConfirmed,
		"maxSupportedTransactionVersion": 0,
	}
	reqs := make([]BatchRequest, len(signatures))
	for i, sig := range signatures {
		reqs[i] = BatchRequest{Method: "getTransaction", Params: []any{sig, cfg}}
	}

	results, err := c.BatchCall(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}

	txs := make([]*ParsedTransaction, 0, len(results))
	for _, r := range results {
		if len(r.Result) == 0 || string(r.Result) == "null" {
			continue
		}
		var tx ParsedTransaction
		if err := json.Unmarshal(r.Result, &tx); err != nil {
			c.logger.WarnContext(ctx, "failed to decode transaction",
				"signature", signatures[r.ID],
				"error", err,
			)
			continue
		}
		txs = append(txs, &tx)
	}
	return txs, nil
}

// PollConfirmation asks for the signature's status up to maxRetries times,
// interval apart. It returns the status once the transaction is confirmed
// or finalized, and "" if it never got there.
func (c *Client) PollConfirmation(ctx context.Context, signature string, maxRetries int, interval time.Duration) (rpc.ConfirmationStatusType, error) {
	cfg := map[string]any{"searchTransactionHistory": true}
	for attempt := 0; attempt < maxRetries; attempt++ {
		var out rpc.GetSignatureStatusesResult
		if err := c.Call(ctx, "getSignatureStatuses", []any{[]string{signature}, cfg}, &out); err != nil {
			return "", fmt.Errorf("signature status %s: %w", signature, err)
		}
		if len(out.Value) > 0 && out.Value[0] != nil {
			switch status := out.Value[0].ConfirmationStatus; status {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return status, nil
			}
		}

		c.logger.DebugContext(ctx, "transaction not yet confirmed",
			"signature", signature,
			"attempt", attempt+1,
		)
		if attempt == maxRetries-1 {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return "", err
		}
	}

	c.logger.WarnContext(ctx, "transaction not confirmed",
		"signature", signature,
		"attempts", maxRetries,
	)
	return "", nil
}

// GetAccountInfo returns the account at address, or nil if it does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, address string) (*rpc.Account, error) {
	cfg := map[string]any{
		"encoding":   solana.EncodingBase64,
		"commitment": rpc.CommitmentConfirmed,
	}
	var out rpc.GetAccountInfoResult
	if err := c.Call(ctx, "getAccountInfo", []any{address, cfg}, &out); err != nil {
		return nil, fmt.Errorf("account info %s: %w", address, err)
	}
	return out.Value, nil
}

// GetMultipleAccounts returns one entry per address, nil where the account
// does not exist.
func (c *Client) GetMultipleAccounts(ctx context.Context, addresses []string) ([]*rpc.Account, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	cfg := map[string]any{
		"encoding":   solana.EncodingBase64,
		"commitment": rpc.CommitmentConfirmed,
	}
	var out rpc.GetMultipleAccountsResult
	if err := c.Call(ctx, "getMultipleAccounts", []any{addresses, cfg}, &out); err != nil {
		return nil, fmt.Errorf("multiple accounts: %w", err)
	}
	return out.Value, nil
}
