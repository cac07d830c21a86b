package entrypoint

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/metrics"
	"github.com/R3E-Network/smartaccount/internal/userop"
)

// HandleOps processes a batch of operations as one top-level call paid for
// by beneficiary's bundle. Each operation runs in its own frame: a failing
// operation is rolled back and reported in its receipt without affecting the
// others.
func (ep *EntryPoint) HandleOps(ctx context.Context, ops []*userop.Operation, beneficiary common.Address) ([]*Receipt, error) {
	if beneficiary == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero beneficiary", ErrInvalidOperation)
	}

	receipts := make([]*Receipt, 0, len(ops))
	err := ep.ledger.Invoke(ctx, beneficiary, ep.address, nil, func(env *chain.Env) error {
		for _, op := range ops {
			var receipt *Receipt
			err := env.Invoke(ep.address, nil, func(opEnv *chain.Env) error {
				var err error
				receipt, err = ep.handleSingleOp(opEnv, op, beneficiary)
				return err
			})
			if err != nil {
				receipt = ep.failedReceipt(op, err)
				ep.log.WithField("sender", receipt.Sender.Hex()).
					WithField("op_hash", receipt.OperationHash.Hex()).
					WithError(err).
					Warn("operation failed")
			}
			metrics.RecordOperation(receipt.Success, receipt.ActualGasUsed)
			receipts = append(receipts, receipt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// handleSingleOp runs one operation through validation, prefund collection,
// execution and charging.
func (ep *EntryPoint) handleSingleOp(env *chain.Env, op *userop.Operation, beneficiary common.Address) (*Receipt, error) {
	if op == nil || op.MaxFeePerGas == nil || op.MaxFeePerGas.Sign() <= 0 {
		return nil, ErrInvalidOperation
	}
	if op.MaxPriorityFeePerGas != nil && op.MaxPriorityFeePerGas.Sign() < 0 {
		return nil, ErrInvalidOperation
	}
	if _, ok := op.TotalGasLimit(); !ok {
		return nil, fmt.Errorf("%w: gas limits overflow", ErrInvalidOperation)
	}
	callData, err := op.CallData()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	opHash, err := ep.OperationHash(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	// Phase 1: Validation
	if err := ep.validateNonce(op); err != nil {
		return nil, err
	}
	requiredPrefund := ep.RequiredPrefund(op)
	if err := ep.validateOp(env, op, opHash, requiredPrefund); err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}

	// Phase 2: Hold the prefund the account just topped up
	reservationID, err := ep.bank.Reserve(env, op.Sender, opHash.Hex(), requiredPrefund)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientPrefund, err)
	}
	ep.incrementNonce(env, op.Sender)

	// Phase 3: Execute through the account's execute entry point
	gasUsed := op.PreVerificationGas + op.VerificationGasLimit
	success := true
	var reason string
	var returnData []byte

	execGas := estimateCallGas(callData)
	if execGas > op.CallGasLimit {
		success = false
		reason = "out of gas during execution"
		// Never charge beyond the signed call gas limit.
		gasUsed += op.CallGasLimit
	} else {
		gasUsed += execGas
		out, err := env.Call(op.Sender, nil, callData)
		if err != nil {
			success = false
			reason = revertReason(err)
		} else if vals, err := userop.AccountABI.Unpack("execute", out); err == nil && len(vals) == 1 {
			returnData, _ = vals[0].([]byte)
		}
	}

	// Phase 4: Charge actual cost and pay the beneficiary
	actualGasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), op.MaxFeePerGas)
	if actualGasCost.Cmp(requiredPrefund) > 0 {
		actualGasCost = new(big.Int).Set(requiredPrefund)
	}
	if actualGasCost.Sign() == 0 {
		// Nothing to charge: hand the hold back without a charge record.
		if err := ep.bank.Release(env, op.Sender, reservationID); err != nil {
			return nil, fmt.Errorf("release: %w", err)
		}
	} else {
		if err := ep.bank.Consume(env, op.Sender, reservationID, actualGasCost); err != nil {
			return nil, fmt.Errorf("charge: %w", err)
		}
		if err := env.Transfer(beneficiary, actualGasCost); err != nil {
			return nil, fmt.Errorf("pay beneficiary: %w", err)
		}
	}

	ep.log.WithField("sender", op.Sender.Hex()).
		WithField("op_hash", opHash.Hex()).
		WithField("success", success).
		WithField("gas_used", gasUsed).
		Debug("operation handled")

	return &Receipt{
		OperationHash: opHash,
		Sender:        op.Sender,
		Nonce:         new(big.Int).Set(op.Nonce),
		Success:       success,
		ActualGasCost: actualGasCost,
		ActualGasUsed: gasUsed,
		Reason:        reason,
		ReturnData:    returnData,
	}, nil
}

// validateOp asks the sender account to validate op and to top up whatever
// part of the prefund its deposit does not cover.
func (ep *EntryPoint) validateOp(env *chain.Env, op *userop.Operation, opHash common.Hash, requiredPrefund *big.Int) error {
	c, ok := env.ContractAt(op.Sender)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAnAccount, op.Sender.Hex())
	}
	validator, ok := c.(Validator)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAnAccount, op.Sender.Hex())
	}

	missingFunds := new(big.Int).Sub(requiredPrefund, ep.bank.Available(op.Sender))
	if missingFunds.Sign() < 0 {
		missingFunds.SetInt64(0)
	}

	status := userop.ValidationFailed
	err := env.Invoke(op.Sender, nil, func(accountEnv *chain.Env) error {
		var err error
		status, err = validator.ValidateOperation(accountEnv, op, opHash, missingFunds)
		return err
	})
	if err != nil {
		return fmt.Errorf("account validation: %w", err)
	}
	if status != userop.ValidationSucceeded {
		return ErrValidationFailed
	}
	return nil
}

func (ep *EntryPoint) failedReceipt(op *userop.Operation, err error) *Receipt {
	receipt := &Receipt{
		ActualGasCost: new(big.Int),
		Reason:        err.Error(),
	}
	if op == nil {
		return receipt
	}
	receipt.Sender = op.Sender
	if op.Nonce != nil {
		receipt.Nonce = new(big.Int).Set(op.Nonce)
	}
	if h, herr := ep.OperationHash(op); herr == nil {
		receipt.OperationHash = h
	}
	return receipt
}

// estimateCallGas prices call data the way intrinsic gas does: 21000 plus
// 16 per non-zero byte and 4 per zero byte.
func estimateCallGas(data []byte) uint64 {
	gas := uint64(21000)
	for _, b := range data {
		if b == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}

func revertReason(err error) string {
	if reason, ok := chain.RevertReason(chain.RevertData(err)); ok {
		return reason
	}
	return err.Error()
}
