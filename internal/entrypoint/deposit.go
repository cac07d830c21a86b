package entrypoint

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/chain"
)

// =============================================================================
// Call Data Dispatch
// =============================================================================

// Call implements chain.Contract. Plain value credits the sender's deposit,
// which is how accounts settle their prefund.
func (ep *EntryPoint) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, ep.credit(env, env.Caller(), "receive")
	}
	if len(input) < 4 {
		return nil, chain.Revert("entrypoint: short call data")
	}

	method, err := ABI.MethodById(input[:4])
	if err != nil {
		return nil, chain.Revert("entrypoint: unknown selector")
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, chain.Revert("entrypoint: malformed " + method.Name + " arguments")
	}
	if !method.IsPayable() && env.Value().Sign() != 0 {
		return nil, chain.Revert("entrypoint: " + method.Name + " is not payable")
	}

	switch method.Name {
	case "depositTo":
		return nil, ep.credit(env, args[0].(common.Address), "depositTo")
	case "withdrawTo":
		return nil, ep.withdraw(env, args[0].(common.Address), args[1].(*big.Int))
	case "balanceOf":
		return method.Outputs.Pack(ep.DepositOf(args[0].(common.Address)))
	case "getNonce":
		return method.Outputs.Pack(new(big.Int).SetUint64(ep.NonceOf(args[0].(common.Address))))
	}
	return nil, chain.Revert("entrypoint: unknown selector")
}

func (ep *EntryPoint) credit(env *chain.Env, account common.Address, ref string) error {
	value := env.Value()
	if value.Sign() == 0 {
		return nil
	}
	if err := ep.bank.Deposit(env, account, env.Caller(), value, ref); err != nil {
		return chain.Revert("entrypoint: " + err.Error())
	}
	ep.log.WithField("account", account.Hex()).
		WithField("from", env.Caller().Hex()).
		WithField("amount", value.String()).
		Debug("deposit credited")
	return nil
}

func (ep *EntryPoint) withdraw(env *chain.Env, to common.Address, amount *big.Int) error {
	if err := ep.bank.Withdraw(env, env.Caller(), to, amount, "withdrawTo"); err != nil {
		return chain.Revert("entrypoint: " + err.Error())
	}
	return env.Transfer(to, amount)
}

// =============================================================================
// Deposit Operations
// =============================================================================

// DepositTo adds amount from from's balance to account's deposit.
func (ep *EntryPoint) DepositTo(ctx context.Context, from, account common.Address, amount *big.Int) error {
	data, err := ABI.Pack("depositTo", account)
	if err != nil {
		return fmt.Errorf("pack depositTo: %w", err)
	}
	_, err = ep.ledger.Call(ctx, chain.Message{From: from, To: ep.address, Value: amount, Data: data})
	return err
}

// WithdrawTo moves amount of account's deposit to to. Only the depositor
// itself may withdraw, so account is the caller.
func (ep *EntryPoint) WithdrawTo(ctx context.Context, account, to common.Address, amount *big.Int) error {
	data, err := WithdrawToCallData(to, amount)
	if err != nil {
		return err
	}
	_, err = ep.ledger.Call(ctx, chain.Message{From: account, To: ep.address, Data: data})
	return err
}

// WithdrawToCallData packs withdrawTo(to, amount), for accounts that
// withdraw through Execute.
func WithdrawToCallData(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := ABI.Pack("withdrawTo", to, amount)
	if err != nil {
		return nil, fmt.Errorf("pack withdrawTo: %w", err)
	}
	return data, nil
}
