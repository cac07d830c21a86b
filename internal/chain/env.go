package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Env is the view a contract gets of the frame it is executing in. It is only
// valid for the duration of that frame.
type Env struct {
	ctx    context.Context
	ledger *Ledger
	caller common.Address
	self   common.Address
	value  *big.Int
	depth  int
}

// Context returns the context of the enclosing top-level call.
func (e *Env) Context() context.Context { return e.ctx }

// Caller returns the immediate caller of this frame.
func (e *Env) Caller() common.Address { return e.caller }

// Self returns the address of the executing contract.
func (e *Env) Self() common.Address { return e.self }

// Value returns a copy of the value attached to this frame.
func (e *Env) Value() *big.Int { return new(big.Int).Set(e.value) }

// BalanceOf returns addr's current native balance.
func (e *Env) BalanceOf(addr common.Address) *big.Int {
	return e.ledger.balanceOf(addr)
}

// ContractAt returns the contract deployed at addr.
func (e *Env) ContractAt(addr common.Address) (Contract, bool) {
	c, ok := e.ledger.contracts[addr]
	return c, ok
}

// Call makes a nested call from this contract. A failing callee is rolled
// back on its own; the error is returned for the caller to handle.
func (e *Env) Call(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	return e.ledger.call(e.ctx, e.self, to, value, data, e.depth+1)
}

// Transfer sends native value from this contract with empty call data.
func (e *Env) Transfer(to common.Address, value *big.Int) error {
	_, err := e.Call(to, value, nil)
	return err
}

// Invoke runs fn in a nested frame against the contract at to, with this
// contract as the caller.
func (e *Env) Invoke(to common.Address, value *big.Int, fn func(env *Env) error) error {
	return e.ledger.invoke(e.ctx, e.self, to, value, fn, e.depth+1)
}

// OnRevert registers undo to restore contract-owned state if this frame or
// any enclosing frame fails.
func (e *Env) OnRevert(undo func()) {
	e.ledger.journal.append(undoChange{undo: undo})
}
