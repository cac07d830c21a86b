// Package userop defines the signed operation an orchestrator hands to an
// account, how it is hashed, and how its signature is checked.
package userop

import (
	"math/big"
	"math/bits"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Operation is a signed request to dispatch one call from Sender.
type Operation struct {
	Sender common.Address `json:"sender"`
	Nonce  *big.Int       `json:"nonce"`

	Target  common.Address `json:"target"`
	Value   *big.Int       `json:"value"`
	Payload []byte         `json:"payload"`

	CallGasLimit         uint64   `json:"callGasLimit"`
	VerificationGasLimit uint64   `json:"verificationGasLimit"`
	PreVerificationGas   uint64   `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas"`

	Signature []byte `json:"signature"`
}

// TotalGasLimit returns the gas the operation may consume end to end. ok is
// false when the limits overflow a uint64 when summed.
func (op *Operation) TotalGasLimit() (total uint64, ok bool) {
	total, carry := bits.Add64(op.CallGasLimit, op.VerificationGasLimit, 0)
	total, carry2 := bits.Add64(total, op.PreVerificationGas, 0)
	return total, carry == 0 && carry2 == 0
}

// CallData encodes the account's execute(target, value, payload) call.
func (op *Operation) CallData() ([]byte, error) {
	return ExecuteCallData(op.Target, SafeBig(op.Value), op.Payload)
}

// Copy returns a deep copy.
func (op *Operation) Copy() *Operation {
	cp := *op
	cp.Nonce = copyBig(op.Nonce)
	cp.Value = copyBig(op.Value)
	cp.MaxFeePerGas = copyBig(op.MaxFeePerGas)
	cp.MaxPriorityFeePerGas = copyBig(op.MaxPriorityFeePerGas)
	cp.Payload = append([]byte(nil), op.Payload...)
	cp.Signature = append([]byte(nil), op.Signature...)
	return &cp
}

var (
	addressT = mustType("address")
	uint256T = mustType("uint256")
	bytes32T = mustType("bytes32")

	packedOpArgs = abi.Arguments{
		{Type: addressT}, // sender
		{Type: uint256T}, // nonce
		{Type: addressT}, // target
		{Type: uint256T}, // value
		{Type: bytes32T}, // keccak(payload)
		{Type: uint256T}, // callGasLimit
		{Type: uint256T}, // verificationGasLimit
		{Type: uint256T}, // preVerificationGas
		{Type: uint256T}, // maxFeePerGas
		{Type: uint256T}, // maxPriorityFeePerGas
	}

	hashArgs = abi.Arguments{
		{Type: bytes32T}, // keccak(packed op)
		{Type: addressT}, // orchestrator
		{Type: uint256T}, // chain id
	}
)

// Hash computes the canonical operation hash, binding the operation to the
// orchestrator that will validate it and to the chain. The signature is not
// part of the hash.
func Hash(op *Operation, orchestrator common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := packedOpArgs.Pack(
		op.Sender,
		SafeBig(op.Nonce),
		op.Target,
		SafeBig(op.Value),
		crypto.Keccak256Hash(op.Payload),
		new(big.Int).SetUint64(op.CallGasLimit),
		new(big.Int).SetUint64(op.VerificationGasLimit),
		new(big.Int).SetUint64(op.PreVerificationGas),
		SafeBig(op.MaxFeePerGas),
		SafeBig(op.MaxPriorityFeePerGas),
	)
	if err != nil {
		return common.Hash{}, err
	}

	enc, err := hashArgs.Pack(crypto.Keccak256Hash(packed), orchestrator, SafeBig(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// SafeBig returns v, or zero when v is nil.
func SafeBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}
