package solana

import (
	"encoding/json"
	"fmt"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error reported by the node in a response body.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// TransportError means a request never produced a usable response: retries
// were exhausted or the context ended first.
type TransportError struct {
	Method   string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Method, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParsedTransaction is a getTransaction result in jsonParsed encoding,
// reduced to the fields the ledger reads.
type ParsedTransaction struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Transaction TransactionBody  `json:"transaction"`
	Meta        *TransactionMeta `json:"meta"`
}

type TransactionBody struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

type Message struct {
	AccountKeys  []AccountKey        `json:"accountKeys"`
	Instructions []ParsedInstruction `json:"instructions"`
}

type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
	Source   string `json:"source,omitempty"`
}

type TransactionMeta struct {
	Err               any                 `json:"err"`
	Fee               uint64              `json:"fee"`
	InnerInstructions []InnerInstructions `json:"innerInstructions"`
}

type InnerInstructions struct {
	Index        int                 `json:"index"`
	Instructions []ParsedInstruction `json:"instructions"`
}

// ParsedInstruction is an instruction the node could decode. Parsed is
// {"type": ..., "info": {...}} for known programs and absent otherwise.
type ParsedInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed,omitempty"`
}

// Signature returns the transaction's primary signature.
func (t *ParsedTransaction) Signature() string {
	if len(t.Transaction.Signatures) == 0 {
		return ""
	}
	return t.Transaction.Signatures[0]
}

// Signers lists the account keys that signed the transaction.
func (t *ParsedTransaction) Signers() []string {
	signers := make([]string, 0, 1)
	for _, k := range t.Transaction.Message.AccountKeys {
		if k.Signer {
			signers = append(signers, k.Pubkey)
		}
	}
	return signers
}

// Failed reports whether the transaction executed with an error.
func (t *ParsedTransaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// TokenInstructions returns the inner instructions executed by the token
// program, in execution order.
func (t *ParsedTransaction) TokenInstructions() []ParsedInstruction {
	if t.Meta == nil {
		return nil
	}
	var out []ParsedInstruction
	for _, inner := range t.Meta.InnerInstructions {
		for _, ix := range inner.Instructions {
			if ix.Program == TokenProgramName && len(ix.Parsed) > 0 {
				out = append(out, ix)
			}
		}
	}
	return out
}
