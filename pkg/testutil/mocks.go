// Package testutil provides contract test doubles and fixtures shared by
// package tests.
package testutil

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/userop"
)

// RecordedCall is one call observed by a RecordingContract.
type RecordedCall struct {
	Caller common.Address
	Value  *big.Int
	Input  []byte
}

// RecordingContract accepts every call and remembers what it saw.
type RecordingContract struct {
	mu     sync.Mutex
	calls  []RecordedCall
	Return []byte
}

// NewRecordingContract creates a recorder that answers with ret.
func NewRecordingContract(ret []byte) *RecordingContract {
	return &RecordingContract{Return: ret}
}

func (r *RecordingContract) Call(env *chain.Env, input []byte) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, RecordedCall{
		Caller: env.Caller(),
		Value:  env.Value(),
		Input:  append([]byte(nil), input...),
	})
	n := len(r.calls)
	r.mu.Unlock()

	env.OnRevert(func() {
		r.mu.Lock()
		r.calls = r.calls[:n-1]
		r.mu.Unlock()
	})
	return r.Return, nil
}

// Calls returns the committed calls.
func (r *RecordingContract) Calls() []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// RevertingContract fails every call with Data as its revert payload.
type RevertingContract struct {
	Data []byte
}

func (r *RevertingContract) Call(*chain.Env, []byte) ([]byte, error) {
	return nil, chain.RevertWithData(r.Data)
}

// RejectingReceiver refuses plain value transfers and accepts anything else.
// Deployed at an orchestrator address it makes prefund settlement fail.
type RejectingReceiver struct{}

func (RejectingReceiver) Call(_ *chain.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, chain.Revert("receiver: value not accepted")
	}
	return nil, nil
}

// Validator is the account entry point an orchestrator drives.
type Validator interface {
	ValidateOperation(env *chain.Env, op *userop.Operation, opHash common.Hash, requiredPrefund *big.Int) (userop.ValidationStatus, error)
}

// ReplayOrchestrator is a bare orchestrator with no nonce bookkeeping. It
// hands whatever hash it is given to the account, so replaying an operation
// is entirely up to the test.
type ReplayOrchestrator struct {
	Ledger  *chain.Ledger
	Address common.Address
}

// Validate calls ValidateOperation on the account at acct as the orchestrator.
func (o *ReplayOrchestrator) Validate(ctx context.Context, acct common.Address, v Validator, op *userop.Operation, opHash common.Hash, prefund *big.Int) (userop.ValidationStatus, error) {
	status := userop.ValidationFailed
	err := o.Ledger.Invoke(ctx, o.Address, acct, nil, func(env *chain.Env) error {
		var err error
		status, err = v.ValidateOperation(env, op, opHash, prefund)
		return err
	})
	return status, err
}

// Ether converts whole units to wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}
