package entrypoint

import (
	"context"
	"crypto/ecdsa"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/smartaccount/internal/account"
	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/keys"
	"github.com/R3E-Network/smartaccount/internal/metrics"
	"github.com/R3E-Network/smartaccount/internal/token"
	"github.com/R3E-Network/smartaccount/internal/userop"
	"github.com/R3E-Network/smartaccount/pkg/logger"
	mocks "github.com/R3E-Network/smartaccount/pkg/testutil"
)

var (
	entryPointAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	beneficiary    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	funder         = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testChainID    = big.NewInt(31337)
	gwei           = big.NewInt(1e9)
)

type harness struct {
	ctx      context.Context
	ledger   *chain.Ledger
	ep       *EntryPoint
	ownerKey *ecdsa.PrivateKey
	acctAddr common.Address
	acct     *account.Account
	tok      *token.Token
	tokAddr  common.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := chain.NewLedger(logger.NewNop())
	ep, err := New(l, entryPointAddr, testChainID, WithLogger(logger.NewNop()))
	require.NoError(t, err)

	ownerKey, err := keys.Derive(keys.DevMnemonic, keys.LabelOwner)
	require.NoError(t, err)
	acctAddr, acct, err := account.Deploy(l, keys.Address(ownerKey), entryPointAddr, account.WithLogger(logger.NewNop()))
	require.NoError(t, err)

	tok := token.NewMockUSDC()
	tokAddr, err := l.Deploy(funder, tok)
	require.NoError(t, err)

	return &harness{
		ctx:      context.Background(),
		ledger:   l,
		ep:       ep,
		ownerKey: ownerKey,
		acctAddr: acctAddr,
		acct:     acct,
		tok:      tok,
		tokAddr:  tokAddr,
	}
}

func (h *harness) mintOp(t *testing.T, nonce int64, amount *big.Int) *userop.Operation {
	t.Helper()
	mint, err := token.MintCallData(h.acctAddr, amount)
	require.NoError(t, err)
	return h.op(t, nonce, h.tokAddr, mint)
}

func (h *harness) op(t *testing.T, nonce int64, target common.Address, payload []byte) *userop.Operation {
	t.Helper()
	op := &userop.Operation{
		Sender:               h.acctAddr,
		Nonce:                big.NewInt(nonce),
		Target:               target,
		Value:                big.NewInt(0),
		Payload:              payload,
		CallGasLimit:         200000,
		VerificationGasLimit: 100000,
		PreVerificationGas:   50000,
		MaxFeePerGas:         gwei,
		MaxPriorityFeePerGas: gwei,
	}
	h.sign(t, h.ownerKey, op)
	return op
}

func (h *harness) sign(t *testing.T, key *ecdsa.PrivateKey, op *userop.Operation) {
	t.Helper()
	_, err := keys.SignOperation(key, op, entryPointAddr, testChainID)
	require.NoError(t, err)
}

func (h *harness) handle(t *testing.T, ops ...*userop.Operation) []*Receipt {
	t.Helper()
	receipts, err := h.ep.HandleOps(h.ctx, ops, beneficiary)
	require.NoError(t, err)
	require.Len(t, receipts, len(ops))
	return receipts
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_Validation(t *testing.T) {
	l := chain.NewLedger(logger.NewNop())

	_, err := New(l, common.Address{}, testChainID)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = New(l, entryPointAddr, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = New(l, entryPointAddr, testChainID, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	_, err = New(l, entryPointAddr, testChainID, WithLogger(logger.NewNop()))
	assert.ErrorIs(t, err, chain.ErrAlreadyDeployed)
}

func TestRequiredPrefundAndHash(t *testing.T) {
	h := newHarness(t)
	op := h.mintOp(t, 0, big.NewInt(1))

	assert.Equal(t, new(big.Int).Mul(big.NewInt(350000), gwei), h.ep.RequiredPrefund(op))
	assert.Equal(t, 0, h.ep.RequiredPrefund(nil).Sign())

	got, err := h.ep.OperationHash(op)
	require.NoError(t, err)
	want, err := userop.Hash(op, entryPointAddr, testChainID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, testChainID, h.ep.ChainID())
	assert.Equal(t, entryPointAddr, h.ep.Address())
}

func TestEstimateCallGas(t *testing.T) {
	assert.Equal(t, uint64(21000), estimateCallGas(nil))
	assert.Equal(t, uint64(21000+16+4), estimateCallGas([]byte{0x01, 0x00}))
}

// =============================================================================
// HandleOps Tests
// =============================================================================

func TestHandleOps_MintSucceeds(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(h.acctAddr, mocks.Ether(1)))

	op := h.mintOp(t, 0, big.NewInt(1e18))
	required := h.ep.RequiredPrefund(op)
	callData, err := op.CallData()
	require.NoError(t, err)
	before := testutil.ToFloat64(metrics.Operations.WithLabelValues("success"))

	receipts := h.handle(t, op)
	r := receipts[0]
	require.True(t, r.Success, r.Reason)

	wantGas := uint64(50000+100000) + estimateCallGas(callData)
	wantCost := new(big.Int).Mul(new(big.Int).SetUint64(wantGas), gwei)
	assert.Equal(t, wantGas, r.ActualGasUsed)
	assert.Equal(t, wantCost, r.ActualGasCost)
	assert.Equal(t, h.acctAddr, r.Sender)
	assert.Equal(t, big.NewInt(0), r.Nonce)

	assert.Equal(t, big.NewInt(1e18), h.tok.BalanceOf(h.acctAddr))
	assert.Equal(t, uint64(1), h.ep.NonceOf(h.acctAddr))
	assert.Equal(t, new(big.Int).Sub(mocks.Ether(1), required), h.ledger.BalanceOf(h.acctAddr))
	assert.Equal(t, new(big.Int).Sub(required, wantCost), h.ep.DepositOf(h.acctAddr))
	assert.Equal(t, wantCost, h.ledger.BalanceOf(beneficiary))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Operations.WithLabelValues("success")))

	records := h.ep.Transactions(h.acctAddr, 0)
	require.Len(t, records, 2)
	assert.Equal(t, "charge", records[0].TxType)
	assert.Equal(t, "deposit", records[1].TxType)
}

func TestHandleOps_ReplayRejectedByNonce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(h.acctAddr, mocks.Ether(1)))

	op := h.mintOp(t, 0, big.NewInt(5))
	require.True(t, h.handle(t, op)[0].Success)

	acctBalance := h.ledger.BalanceOf(h.acctAddr)
	benBalance := h.ledger.BalanceOf(beneficiary)

	r := h.handle(t, op)[0]
	assert.False(t, r.Success)
	assert.Contains(t, r.Reason, ErrNonceInvalid.Error())
	assert.Equal(t, 0, r.ActualGasCost.Sign())

	assert.Equal(t, big.NewInt(5), h.tok.BalanceOf(h.acctAddr))
	assert.Equal(t, uint64(1), h.ep.NonceOf(h.acctAddr))
	assert.Equal(t, acctBalance, h.ledger.BalanceOf(h.acctAddr))
	assert.Equal(t, benBalance, h.ledger.BalanceOf(beneficiary))
}

func TestHandleOps_ForeignSignatureRejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(h.acctAddr, mocks.Ether(1)))

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	op := h.mintOp(t, 0, big.NewInt(5))
	h.sign(t, otherKey, op)

	r := h.handle(t, op)[0]
	assert.False(t, r.Success)
	assert.Contains(t, r.Reason, ErrValidationFailed.Error())

	// The prefund the account paid during validation is rolled back with the op.
	assert.Equal(t, mocks.Ether(1), h.ledger.BalanceOf(h.acctAddr))
	assert.Equal(t, 0, h.ep.DepositOf(h.acctAddr).Sign())
	assert.Equal(t, uint64(0), h.ep.NonceOf(h.acctAddr))
	assert.Equal(t, 0, h.tok.BalanceOf(h.acctAddr).Sign())
}

func TestHandleOps_ExecutionFailureIsCharged(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(h.acctAddr, mocks.Ether(1)))

	xfer, err := token.TransferCallData(funder, big.NewInt(1))
	require.NoError(t, err)
	op := h.op(t, 0, h.tokAddr, xfer)

	r := h.handle(t, op)[0]
	assert.False(t, r.Success)
	assert.Equal(t, "token: transfer amount exceeds balance", r.Reason)
	assert.Positive(t, r.ActualGasCost.Sign())

	assert.Equal(t, uint64(1), h.ep.NonceOf(h.acctAddr))
	assert.Equal(t, r.ActualGasCost, h.ledger.BalanceOf(beneficiary))
}

func TestHandleOps_OutOfCallGas(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(h.acctAddr, mocks.Ether(1)))

	op := h.mintOp(t, 0, big.NewInt(5))
	op.CallGasLimit = 1000
	h.sign(t, h.ownerKey, op)

	r := h.handle(t, op)[0]
	assert.False(t, r.Success)
	assert.Equal(t, "out of gas during execution", r.Reason)
	assert.Equal(t, uint64(50000+100000+1000), r.ActualGasUsed)
	assert.Equal(t, 0, h.tok.BalanceOf(h.acctAddr).Sign())
	assert.Equal(t, uint64(1), h.ep.NonceOf(h.acctAddr))
}

func TestHandleOps_GasLimitOverflowRejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(h.acctAddr, mocks.Ether(1)))

	op := h.mintOp(t, 0, big.NewInt(1e9))
	op.CallGasLimit = math.MaxUint64
	op.VerificationGasLimit = 2
	h.sign(t, h.ownerKey, op)

	_, ok := op.TotalGasLimit()
	assert.False(t, ok)
	maxGas := new(big.Int).SetUint64(math.MaxUint64)
	assert.Positive(t, h.ep.RequiredPrefund(op).Cmp(new(big.Int).Mul(maxGas, gwei)))

	r := h.handle(t, op)[0]
	assert.False(t, r.Success)
	assert.Contains(t, r.Reason, ErrInvalidOperation.Error())
	assert.Equal(t, 0, r.ActualGasCost.Sign())
	assert.Equal(t, 0, h.tok.BalanceOf(h.acctAddr).Sign())
	assert.Equal(t, uint64(0), h.ep.NonceOf(h.acctAddr))
	assert.Equal(t, 0, h.ledger.BalanceOf(beneficiary).Sign())
	assert.Equal(t, mocks.Ether(1), h.ledger.BalanceOf(h.acctAddr))
}

func TestHandleOps_ZeroCostReleasesReservation(t *testing.T) {
	h := newHarness(t)

	op := h.mintOp(t, 0, big.NewInt(5))
	op.CallGasLimit = 0
	op.VerificationGasLimit = 0
	op.PreVerificationGas = 0
	h.sign(t, h.ownerKey, op)

	r := h.handle(t, op)[0]
	assert.False(t, r.Success)
	assert.Equal(t, "out of gas during execution", r.Reason)
	assert.Equal(t, uint64(0), r.ActualGasUsed)
	assert.Equal(t, 0, r.ActualGasCost.Sign())

	assert.Equal(t, uint64(1), h.ep.NonceOf(h.acctAddr))
	assert.Empty(t, h.ep.Transactions(h.acctAddr, 0))
	assert.Equal(t, 0, h.ledger.BalanceOf(beneficiary).Sign())

	_, reserved, _ := h.ep.bank.GetBalance(h.acctAddr)
	assert.Equal(t, 0, reserved.Sign())
}

func TestHandleOps_UnfundedAccountFailsPrefund(t *testing.T) {
	h := newHarness(t)
	before := testutil.ToFloat64(metrics.SettlementFailures)

	r := h.handle(t, h.mintOp(t, 0, big.NewInt(5)))[0]
	assert.False(t, r.Success)
	assert.Contains(t, r.Reason, ErrInsufficientPrefund.Error())
	assert.Equal(t, uint64(0), h.ep.NonceOf(h.acctAddr))

	// The account swallowed its failed settlement; the orchestrator caught it.
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SettlementFailures))
}

func TestHandleOps_ExistingDepositCoversPrefund(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(funder, mocks.Ether(1)))
	require.NoError(t, h.ep.DepositTo(h.ctx, funder, h.acctAddr, mocks.Ether(1)))
	assert.Equal(t, mocks.Ether(1), h.ep.DepositOf(h.acctAddr))

	r := h.handle(t, h.mintOp(t, 0, big.NewInt(5)))[0]
	require.True(t, r.Success, r.Reason)

	assert.Equal(t, 0, h.ledger.BalanceOf(h.acctAddr).Sign())
	assert.Equal(t, new(big.Int).Sub(mocks.Ether(1), r.ActualGasCost), h.ep.DepositOf(h.acctAddr))
}

func TestHandleOps_NotAnAccount(t *testing.T) {
	h := newHarness(t)
	op := h.mintOp(t, 0, big.NewInt(5))
	op.Sender = h.tokAddr

	r := h.handle(t, op)[0]
	assert.False(t, r.Success)
	assert.Contains(t, r.Reason, ErrNotAnAccount.Error())
}

func TestHandleOps_InvalidOperations(t *testing.T) {
	h := newHarness(t)
	noFee := h.mintOp(t, 0, big.NewInt(5))
	noFee.MaxFeePerGas = nil

	receipts := h.handle(t, nil, noFee)
	for _, r := range receipts {
		assert.False(t, r.Success)
		assert.Contains(t, r.Reason, ErrInvalidOperation.Error())
	}
	assert.Equal(t, h.acctAddr, receipts[1].Sender)
}

func TestHandleOps_BatchIsolation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(h.acctAddr, mocks.Ether(1)))

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	first := h.mintOp(t, 0, big.NewInt(1))
	forged := h.mintOp(t, 1, big.NewInt(100))
	h.sign(t, otherKey, forged)
	second := h.mintOp(t, 1, big.NewInt(2))

	receipts := h.handle(t, first, forged, second)
	assert.True(t, receipts[0].Success)
	assert.False(t, receipts[1].Success)
	assert.True(t, receipts[2].Success)

	assert.Equal(t, big.NewInt(3), h.tok.BalanceOf(h.acctAddr))
	assert.Equal(t, uint64(2), h.ep.NonceOf(h.acctAddr))
}

func TestHandleOps_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.ep.HandleOps(h.ctx, nil, common.Address{})
	assert.ErrorIs(t, err, ErrInvalidOperation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.ep.HandleOps(ctx, []*userop.Operation{h.mintOp(t, 0, big.NewInt(1))}, beneficiary)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Deposit Tests
// =============================================================================

func TestWithdrawThroughAccountExecute(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(funder, big.NewInt(100)))
	require.NoError(t, h.ep.DepositTo(h.ctx, funder, h.acctAddr, big.NewInt(100)))

	data, err := WithdrawToCallData(funder, big.NewInt(60))
	require.NoError(t, err)
	owner := keys.Address(h.ownerKey)
	err = h.ledger.Invoke(h.ctx, owner, h.acctAddr, nil, func(env *chain.Env) error {
		_, err := h.acct.Execute(env, entryPointAddr, nil, data)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(40), h.ep.DepositOf(h.acctAddr))
	assert.Equal(t, big.NewInt(60), h.ledger.BalanceOf(funder))

	err = h.ep.WithdrawTo(h.ctx, h.acctAddr, funder, big.NewInt(41))
	reason, ok := chain.RevertReason(chain.RevertData(err))
	require.True(t, ok)
	assert.Contains(t, reason, "insufficient deposit")
}

func TestCall_Views(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.Fund(funder, big.NewInt(10)))
	require.NoError(t, h.ep.DepositTo(h.ctx, funder, h.acctAddr, big.NewInt(7)))

	data, err := ABI.Pack("balanceOf", h.acctAddr)
	require.NoError(t, err)
	out, err := h.ledger.Call(h.ctx, chain.Message{From: funder, To: entryPointAddr, Data: data})
	require.NoError(t, err)
	vals, err := ABI.Unpack("balanceOf", out)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), vals[0].(*big.Int))

	data, err = ABI.Pack("getNonce", h.acctAddr)
	require.NoError(t, err)
	out, err = h.ledger.Call(h.ctx, chain.Message{From: funder, To: entryPointAddr, Data: data})
	require.NoError(t, err)
	vals, err = ABI.Unpack("getNonce", out)
	require.NoError(t, err)
	assert.Equal(t, 0, vals[0].(*big.Int).Sign())

	_, err = h.ledger.Call(h.ctx, chain.Message{From: funder, To: entryPointAddr, Value: big.NewInt(1), Data: data})
	reason, ok := chain.RevertReason(chain.RevertData(err))
	require.True(t, ok)
	assert.Equal(t, "entrypoint: getNonce is not payable", reason)

	// Plain value credits the sender.
	_, err = h.ledger.Call(h.ctx, chain.Message{From: funder, To: entryPointAddr, Value: big.NewInt(3)})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3), h.ep.DepositOf(funder))
}
