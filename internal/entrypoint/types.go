package entrypoint

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/userop"
)

var (
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrNotAnAccount        = errors.New("sender is not an account")
	ErrNonceInvalid        = errors.New("invalid operation nonce")
	ErrValidationFailed    = errors.New("operation validation failed")
	ErrInsufficientPrefund = errors.New("insufficient prefund for operation")
)

// Validator is the account entry point the orchestrator calls before
// executing an operation.
type Validator interface {
	ValidateOperation(env *chain.Env, op *userop.Operation, opHash common.Hash, requiredPrefund *big.Int) (userop.ValidationStatus, error)
}

// Receipt reports the outcome of one handled operation.
type Receipt struct {
	OperationHash common.Hash    `json:"operationHash"`
	Sender        common.Address `json:"sender"`
	Nonce         *big.Int       `json:"nonce"`
	Success       bool           `json:"success"`
	ActualGasCost *big.Int       `json:"actualGasCost"`
	ActualGasUsed uint64         `json:"actualGasUsed"`
	Reason        string         `json:"reason,omitempty"` // Revert reason if failed
	ReturnData    []byte         `json:"returnData,omitempty"`
}

// ABIJSON is the call-data interface of the orchestrator.
const ABIJSON = `
[
	{"type": "function", "name": "depositTo", "stateMutability": "payable", "inputs": [{"name": "account", "type": "address"}], "outputs": []},
	{"type": "function", "name": "withdrawTo", "inputs": [{"name": "withdrawAddress", "type": "address"}, {"name": "withdrawAmount", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "balanceOf", "inputs": [{"name": "account", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "getNonce", "inputs": [{"name": "sender", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}]}
]`
