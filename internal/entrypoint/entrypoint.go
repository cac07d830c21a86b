// Package entrypoint implements the orchestrator that drives accounts
// through validation and execution.
//
// The orchestrator owns what the account deliberately does not: per-sender
// nonces, deposits that pay for operations, and the decision to execute only
// after validation succeeded and the prefund arrived.
package entrypoint

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/gasbank"
	"github.com/R3E-Network/smartaccount/internal/userop"
	"github.com/R3E-Network/smartaccount/pkg/logger"
)

// ABI is the parsed ABIJSON.
var ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// EntryPoint is the orchestrator contract.
type EntryPoint struct {
	ledger  *chain.Ledger
	address common.Address
	chainID *big.Int
	bank    *gasbank.Manager

	mu     sync.RWMutex
	nonces map[common.Address]uint64

	log *logger.Logger
}

// Option configures an EntryPoint.
type Option func(*EntryPoint)

// WithLogger sets the orchestrator logger.
func WithLogger(log *logger.Logger) Option {
	return func(ep *EntryPoint) {
		if log != nil {
			ep.log = log
		}
	}
}

// New creates an orchestrator and pins it on the ledger at address.
func New(l *chain.Ledger, address common.Address, chainID *big.Int, opts ...Option) (*EntryPoint, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero entrypoint address", ErrInvalidOperation)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: chain id must be positive", ErrInvalidOperation)
	}

	ep := &EntryPoint{
		ledger:  l,
		address: address,
		chainID: new(big.Int).Set(chainID),
		bank:    gasbank.NewManager(),
		nonces:  make(map[common.Address]uint64),
	}
	for _, opt := range opts {
		opt(ep)
	}
	if ep.log == nil {
		ep.log = logger.NewDefault("entrypoint")
	}

	if err := l.DeployAt(address, ep); err != nil {
		return nil, fmt.Errorf("deploy entrypoint: %w", err)
	}
	return ep, nil
}

// Address returns the orchestrator address.
func (ep *EntryPoint) Address() common.Address {
	return ep.address
}

// ChainID returns the chain id operation hashes are bound to.
func (ep *EntryPoint) ChainID() *big.Int {
	return new(big.Int).Set(ep.chainID)
}

// OperationHash returns the hash an account owner signs for op.
func (ep *EntryPoint) OperationHash(op *userop.Operation) (common.Hash, error) {
	return userop.Hash(op, ep.address, ep.chainID)
}

// RequiredPrefund computes the maximum cost op may be charged.
func (ep *EntryPoint) RequiredPrefund(op *userop.Operation) *big.Int {
	if op == nil {
		return new(big.Int)
	}
	gas := new(big.Int).SetUint64(op.CallGasLimit)
	gas.Add(gas, new(big.Int).SetUint64(op.VerificationGasLimit))
	gas.Add(gas, new(big.Int).SetUint64(op.PreVerificationGas))
	return gas.Mul(gas, userop.SafeBig(op.MaxFeePerGas))
}

// NonceOf returns the next nonce the orchestrator accepts from sender.
func (ep *EntryPoint) NonceOf(sender common.Address) uint64 {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.nonces[sender]
}

// DepositOf returns account's total deposit.
func (ep *EntryPoint) DepositOf(account common.Address) *big.Int {
	balance, _, _ := ep.bank.GetBalance(account)
	return balance
}

// Transactions returns account's most recent deposit records.
func (ep *EntryPoint) Transactions(account common.Address, limit int) []gasbank.Record {
	return ep.bank.GetTransactions(account, limit)
}

// =============================================================================
// Nonces (journaled)
// =============================================================================

func (ep *EntryPoint) validateNonce(op *userop.Operation) error {
	if op.Nonce == nil || !op.Nonce.IsUint64() {
		return ErrNonceInvalid
	}
	expected := ep.NonceOf(op.Sender)
	if got := op.Nonce.Uint64(); got != expected {
		return fmt.Errorf("%w: expected %d, got %d", ErrNonceInvalid, expected, got)
	}
	return nil
}

func (ep *EntryPoint) incrementNonce(env *chain.Env, sender common.Address) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	prev, had := ep.nonces[sender]
	ep.nonces[sender] = prev + 1
	env.OnRevert(func() {
		ep.mu.Lock()
		defer ep.mu.Unlock()
		if had {
			ep.nonces[sender] = prev
		} else {
			delete(ep.nonces, sender)
		}
	})
}
