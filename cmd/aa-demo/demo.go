package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/account"
	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/config"
	"github.com/R3E-Network/smartaccount/internal/entrypoint"
	"github.com/R3E-Network/smartaccount/internal/keys"
	"github.com/R3E-Network/smartaccount/internal/token"
	"github.com/R3E-Network/smartaccount/internal/userop"
	"github.com/R3E-Network/smartaccount/pkg/logger"
)

// accountFunding is what the demo account starts with: one whole unit.
var accountFunding = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// demo is a single-process world: one ledger with the network's orchestrator,
// its reference token and one owner-controlled account.
type demo struct {
	network *config.Network
	ledger  *chain.Ledger
	ep      *entrypoint.EntryPoint
	tok     *token.Token
	tokAddr common.Address

	owner       common.Address
	ownerSigner func(op *userop.Operation) error
	operator    common.Address
	acctAddr    common.Address

	log *logger.Logger
}

func newDemo(network *config.Network, mnemonic string, log *logger.Logger) (*demo, error) {
	ledger := chain.NewLedger(log.Named("chain"))

	ep, err := entrypoint.New(ledger, network.Orchestrator, network.ChainID, entrypoint.WithLogger(log.Named("entrypoint")))
	if err != nil {
		return nil, err
	}

	ownerKey, err := keys.Derive(mnemonic, keys.LabelOwner)
	if err != nil {
		return nil, fmt.Errorf("derive owner key: %w", err)
	}
	operator := network.Operator
	if operator == (common.Address{}) {
		operatorKey, err := keys.Derive(mnemonic, keys.LabelOperator)
		if err != nil {
			return nil, fmt.Errorf("derive operator key: %w", err)
		}
		operator = keys.Address(operatorKey)
	}

	tok := token.NewMockUSDC()
	tokAddr := network.ReferenceToken
	if tokAddr == (common.Address{}) {
		if tokAddr, err = ledger.Deploy(operator, tok); err != nil {
			return nil, fmt.Errorf("deploy token: %w", err)
		}
	} else if err := ledger.DeployAt(tokAddr, tok); err != nil {
		return nil, fmt.Errorf("deploy token: %w", err)
	}

	owner := keys.Address(ownerKey)
	acctAddr, _, err := account.Deploy(ledger, owner, network.Orchestrator, account.WithLogger(log.Named("account")))
	if err != nil {
		return nil, err
	}
	if err := ledger.Fund(acctAddr, accountFunding); err != nil {
		return nil, fmt.Errorf("fund account: %w", err)
	}

	return &demo{
		network: network,
		ledger:  ledger,
		ep:      ep,
		tok:     tok,
		tokAddr: tokAddr,
		owner:   owner,
		ownerSigner: func(op *userop.Operation) error {
			_, err := keys.SignOperation(ownerKey, op, network.Orchestrator, network.ChainID)
			return err
		},
		operator: operator,
		acctAddr: acctAddr,
		log:      log,
	}, nil
}

// mint has the owner sign an operation minting amount of the reference token
// to the account and has the operator submit it.
func (d *demo) mint(ctx context.Context, amount *big.Int) (*entrypoint.Receipt, error) {
	payload, err := token.MintCallData(d.acctAddr, amount)
	if err != nil {
		return nil, err
	}

	op := &userop.Operation{
		Sender:               d.acctAddr,
		Nonce:                new(big.Int).SetUint64(d.ep.NonceOf(d.acctAddr)),
		Target:               d.tokAddr,
		Value:                new(big.Int),
		Payload:              payload,
		CallGasLimit:         200000,
		VerificationGasLimit: 100000,
		PreVerificationGas:   50000,
		MaxFeePerGas:         big.NewInt(1e9),
		MaxPriorityFeePerGas: big.NewInt(1e9),
	}
	if err := d.ownerSigner(op); err != nil {
		return nil, fmt.Errorf("sign operation: %w", err)
	}

	receipts, err := d.ep.HandleOps(ctx, []*userop.Operation{op}, d.operator)
	if err != nil {
		return nil, fmt.Errorf("handle ops: %w", err)
	}
	receipt := receipts[0]

	entry := d.log.WithField("network", d.network.Name).
		WithField("account", d.acctAddr.Hex()).
		WithField("op_hash", receipt.OperationHash.Hex()).
		WithField("success", receipt.Success).
		WithField("gas_cost", receipt.ActualGasCost.String()).
		WithField("token_balance", d.tok.BalanceOf(d.acctAddr).String())
	if !receipt.Success {
		entry.WithField("reason", receipt.Reason).Warn("mint operation failed")
		return receipt, nil
	}
	entry.Info("mint operation executed")
	return receipt, nil
}
