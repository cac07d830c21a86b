// Package token implements a minimal mintable fungible token used as a
// dispatch target. Minting is open to anyone; it is a test fixture, not a
// production asset.
package token

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/chain"
)

// ABIJSON is the call-data interface of the token.
const ABIJSON = `
[
	{"type": "function", "name": "name", "inputs": [], "outputs": [{"name": "", "type": "string"}]},
	{"type": "function", "name": "symbol", "inputs": [], "outputs": [{"name": "", "type": "string"}]},
	{"type": "function", "name": "decimals", "inputs": [], "outputs": [{"name": "", "type": "uint8"}]},
	{"type": "function", "name": "totalSupply", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "balanceOf", "inputs": [{"name": "account", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "mint", "inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "transfer", "inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}], "outputs": [{"name": "", "type": "bool"}]}
]`

// ABI is the parsed ABIJSON.
var ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Token is an in-memory fungible token contract.
type Token struct {
	mu       sync.RWMutex
	name     string
	symbol   string
	decimals uint8
	supply   *big.Int
	balances map[common.Address]*big.Int
}

// New creates an empty token.
func New(name, symbol string, decimals uint8) *Token {
	return &Token{
		name:     name,
		symbol:   symbol,
		decimals: decimals,
		supply:   new(big.Int),
		balances: make(map[common.Address]*big.Int),
	}
}

// NewMockUSDC creates the six-decimal reference token local networks deploy.
func NewMockUSDC() *Token {
	return New("USD Coin", "USDC", 6)
}

// BalanceOf returns addr's token balance.
func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceOf(addr)
}

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.supply)
}

// Call implements chain.Contract.
func (t *Token) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, chain.Revert("token: does not accept value")
	}
	method, err := ABI.MethodById(input[:4])
	if err != nil {
		return nil, chain.Revert("token: unknown selector")
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, chain.Revert("token: malformed " + method.Name + " arguments")
	}
	if env.Value().Sign() != 0 {
		return nil, chain.Revert("token: " + method.Name + " is not payable")
	}

	switch method.Name {
	case "name":
		return method.Outputs.Pack(t.name)
	case "symbol":
		return method.Outputs.Pack(t.symbol)
	case "decimals":
		return method.Outputs.Pack(t.decimals)
	case "totalSupply":
		return method.Outputs.Pack(t.TotalSupply())
	case "balanceOf":
		return method.Outputs.Pack(t.BalanceOf(args[0].(common.Address)))
	case "mint":
		if err := t.mint(env, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return nil, nil
	case "transfer":
		if err := t.transfer(env, env.Caller(), args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)
	}
	return nil, chain.Revert("token: unknown selector")
}

func (t *Token) mint(env *chain.Env, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return chain.Revert("token: mint to the zero address")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setBalance(env, to, new(big.Int).Add(t.balanceOf(to), amount))
	prevSupply := t.supply
	t.supply = new(big.Int).Add(prevSupply, amount)
	env.OnRevert(func() {
		t.mu.Lock()
		t.supply = prevSupply
		t.mu.Unlock()
	})
	return nil
}

func (t *Token) transfer(env *chain.Env, from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return chain.Revert("token: transfer to the zero address")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	fromBal := t.balanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return chain.Revert("token: transfer amount exceeds balance")
	}
	t.setBalance(env, from, new(big.Int).Sub(fromBal, amount))
	t.setBalance(env, to, new(big.Int).Add(t.balanceOf(to), amount))
	return nil
}

// setBalance writes a balance and journals the previous value. Callers hold mu.
func (t *Token) setBalance(env *chain.Env, addr common.Address, v *big.Int) {
	prev := t.balanceOf(addr)
	t.balances[addr] = v
	env.OnRevert(func() {
		t.mu.Lock()
		t.balances[addr] = prev
		t.mu.Unlock()
	})
}

func (t *Token) balanceOf(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// MintCallData packs mint(to, amount).
func MintCallData(to common.Address, amount *big.Int) ([]byte, error) {
	return ABI.Pack("mint", to, amount)
}

// TransferCallData packs transfer(to, amount).
func TransferCallData(to common.Address, amount *big.Int) ([]byte, error) {
	return ABI.Pack("transfer", to, amount)
}

// BalanceOfCallData packs balanceOf(account).
func BalanceOfCallData(account common.Address) ([]byte, error) {
	return ABI.Pack("balanceOf", account)
}
