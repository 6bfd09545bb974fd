package solana

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/brojonat/mintledger/service/numeric"
	"github.com/gagliardetto/solana-go"
)

// TokenProgramID is the SPL Token program.
var TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// TokenProgramName is how jsonParsed encoding labels token program instructions.
const TokenProgramName = "spl-token"

// ErrUnsupportedInstruction is returned for token instructions that never
// touch balances or supply (approve, closeAccount, setAuthority, ...).
var ErrUnsupportedInstruction = errors.New("unsupported instruction")

// Instruction is one of InitializeAccount, Transfer, MintTo or Burn.
type Instruction interface {
	instructionType() string
}

// InitializeAccount creates a token account. All three initializeAccount
// variants decode to it.
type InitializeAccount struct {
	Account string
	Mint    string
	Owner   string
}

// Transfer moves Amount from Source to Destination. Mint is only present
// on transferChecked.
type Transfer struct {
	Source      string
	Destination string
	Mint        string
	Authority   string
	Amount      *big.Int
	Checked     bool
}

// MintTo credits Account and grows supply.
type MintTo struct {
	Mint    string
	Account string
	Amount  *big.Int
	Checked bool
}

// Burn debits Account and shrinks supply.
type Burn struct {
	Mint    string
	Account string
	Amount  *big.Int
	Checked bool
}

func (InitializeAccount) instructionType() string { return "initializeAccount" }
func (Transfer) instructionType() string          { return "transfer" }
func (MintTo) instructionType() string            { return "mintTo" }
func (Burn) instructionType() string              { return "burn" }

type parsedEnvelope struct {
	Type string          `json:"type"`
	Info instructionInfo `json:"info"`
}

type instructionInfo struct {
	Account           string `json:"account"`
	Mint              string `json:"mint"`
	Owner             string `json:"owner"`
	Source            string `json:"source"`
	Destination       string `json:"destination"`
	Authority         string `json:"authority"`
	MultisigAuthority string `json:"multisigAuthority"`
	Amount            string `json:"amount"`
	TokenAmount       *struct {
		Amount string `json:"amount"`
	} `json:"tokenAmount"`
}

func (i instructionInfo) amount() (*big.Int, error) {
	raw := i.Amount
	if i.TokenAmount != nil {
		raw = i.TokenAmount.Amount
	}
	return numeric.ParseDecimal(raw)
}

func (i instructionInfo) authority() string {
	if i.Authority != "" {
		return i.Authority
	}
	return i.MultisigAuthority
}

// DecodeInstruction classifies a jsonParsed token program instruction.
func DecodeInstruction(ix ParsedInstruction) (Instruction, error) {
	if ix.Program != TokenProgramName {
		return nil, fmt.Errorf("%w: program %q", ErrUnsupportedInstruction, ix.Program)
	}
	var env parsedEnvelope
	if err := json.Unmarshal(ix.Parsed, &env); err != nil {
		return nil, fmt.Errorf("decode parsed instruction: %w", err)
	}
	info := env.Info

	switch {
	case strings.Contains(env.Type, "initializeAccount"):
		return InitializeAccount{Account: info.Account, Mint: info.Mint, Owner: info.Owner}, nil

	case env.Type == "transfer" || env.Type == "transferChecked":
		amount, err := info.amount()
		if err != nil {
			return nil, fmt.Errorf("%s amount: %w", env.Type, err)
		}
		return Transfer{
			Source:      info.Source,
			Destination: info.Destination,
			Mint:        info.Mint,
			Authority:   info.authority(),
			Amount:      amount,
			Checked:     env.Type == "transferChecked",
		}, nil

	case env.Type == "mintTo" || env.Type == "mintToChecked":
		amount, err := info.amount()
		if err != nil {
			return nil, fmt.Errorf("%s amount: %w", env.Type, err)
		}
		return MintTo{Mint: info.Mint, Account: info.Account, Amount: amount, Checked: env.Type == "mintToChecked"}, nil

	case env.Type == "burn" || env.Type == "burnChecked":
		amount, err := info.amount()
		if err != nil {
			return nil, fmt.Errorf("%s amount: %w", env.Type, err)
		}
		return Burn{Mint: info.Mint, Account: info.Account, Amount: amount, Checked: env.Type == "burnChecked"}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedInstruction, env.Type)
}
