// Package chain provides the in-memory execution substrate the account runs on.
//
// A Ledger tracks native balances and deployed contracts and serializes every
// top-level call. Each call frame is journaled: when a frame returns an error
// all balance moves and contract state changes made inside it are undone.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/R3E-Network/smartaccount/pkg/logger"
)

// MaxCallDepth bounds nested call frames.
const MaxCallDepth = 1024

// Contract is code deployed at an address. Call receives the raw call data;
// empty input is a plain value transfer.
type Contract interface {
	Call(env *Env, input []byte) ([]byte, error)
}

// Message is a top-level call into the ledger.
type Message struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Transfer records one committed movement of native value.
type Transfer struct {
	ID        string
	From      common.Address
	To        common.Address
	Amount    *big.Int
	Depth     int
	CreatedAt time.Time
}

// Ledger is the serialized state of balances and contracts.
type Ledger struct {
	mu sync.Mutex

	balances    map[common.Address]*big.Int
	contracts   map[common.Address]Contract
	deployNonce map[common.Address]uint64
	transfers   []Transfer
	journal     journal

	log *logger.Logger
}

// NewLedger creates an empty ledger.
func NewLedger(log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewDefault("chain")
	}
	return &Ledger{
		balances:    make(map[common.Address]*big.Int),
		contracts:   make(map[common.Address]Contract),
		deployNonce: make(map[common.Address]uint64),
		log:         log,
	}
}

// =============================================================================
// Genesis and Deployment
// =============================================================================

// Fund mints native value into addr outside of any call frame.
func (l *Ledger) Fund(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeValue
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.journal.reset()

	l.addBalance(addr, amount)
	l.transfers = append(l.transfers, Transfer{
		ID:        uuid.New().String(),
		To:        addr,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now(),
	})
	return nil
}

// Deploy installs c at the address derived from deployer and its deployment
// count, the same derivation a CREATE opcode uses.
func (l *Ledger) Deploy(deployer common.Address, c Contract) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nonce := l.deployNonce[deployer]
	addr := crypto.CreateAddress(deployer, nonce)
	if _, exists := l.contracts[addr]; exists {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr.Hex())
	}
	l.deployNonce[deployer] = nonce + 1
	l.contracts[addr] = c

	l.log.WithField("address", addr.Hex()).
		WithField("deployer", deployer.Hex()).
		Debug("contract deployed")
	return addr, nil
}

// DeployAt installs c at a fixed address, as configured networks pin
// well-known singletons.
func (l *Ledger) DeployAt(addr common.Address, c Contract) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.contracts[addr]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr.Hex())
	}
	l.contracts[addr] = c

	l.log.WithField("address", addr.Hex()).Debug("contract pinned")
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// BalanceOf returns a copy of addr's native balance.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceOf(addr)
}

// ContractAt returns the contract deployed at addr.
func (l *Ledger) ContractAt(addr common.Address) (Contract, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[addr]
	return c, ok
}

// Transfers returns the committed value movements in order.
func (l *Ledger) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transfer, len(l.transfers))
	copy(out, l.transfers)
	return out
}

// =============================================================================
// Execution
// =============================================================================

// Call runs msg as one atomic top-level call.
func (l *Ledger) Call(ctx context.Context, msg Message) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.journal.reset()

	return l.call(ctx, msg.From, msg.To, msg.Value, msg.Data, 0)
}

// Invoke runs fn against the contract at to as one atomic top-level call with
// caller from. Use it for typed entry points that are not reached through
// call data.
func (l *Ledger) Invoke(ctx context.Context, from, to common.Address, value *big.Int, fn func(env *Env) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.journal.reset()

	return l.invoke(ctx, from, to, value, fn, 0)
}

func (l *Ledger) call(ctx context.Context, from, to common.Address, value *big.Int, data []byte, depth int) ([]byte, error) {
	var ret []byte
	err := l.frame(ctx, from, to, value, depth, func(env *Env) error {
		c, ok := l.contracts[to]
		if !ok {
			return nil
		}
		out, err := c.Call(env, data)
		if err != nil {
			return err
		}
		ret = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (l *Ledger) invoke(ctx context.Context, from, to common.Address, value *big.Int, fn func(env *Env) error, depth int) error {
	if _, ok := l.contracts[to]; !ok {
		return fmt.Errorf("%w: %s", ErrNoContract, to.Hex())
	}
	return l.frame(ctx, from, to, value, depth, fn)
}

// frame opens a journaled call frame, moves value and runs body. Any error
// restores the state captured when the frame opened.
func (l *Ledger) frame(ctx context.Context, from, to common.Address, value *big.Int, depth int, body func(env *Env) error) error {
	if depth > MaxCallDepth {
		return ErrCallDepth
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return ErrNegativeValue
	}

	snap := l.journal.snapshot()

	if err := l.move(from, to, value, depth); err != nil {
		l.journal.revertTo(l, snap)
		return err
	}

	env := &Env{
		ctx:    ctx,
		ledger: l,
		caller: from,
		self:   to,
		value:  new(big.Int).Set(value),
		depth:  depth,
	}
	if err := body(env); err != nil {
		l.journal.revertTo(l, snap)
		return err
	}
	return nil
}

func (l *Ledger) move(from, to common.Address, amount *big.Int, depth int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if l.balanceOf(from).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), l.balanceOf(from), amount)
	}
	l.subBalance(from, amount)
	l.addBalance(to, amount)

	l.transfers = append(l.transfers, Transfer{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Depth:     depth,
		CreatedAt: time.Now(),
	})
	l.journal.append(transferChange{})
	return nil
}

// =============================================================================
// Balance Helpers (callers hold mu)
// =============================================================================

func (l *Ledger) balanceOf(addr common.Address) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *Ledger) addBalance(addr common.Address, amount *big.Int) {
	prev := l.balanceOf(addr)
	l.balances[addr] = new(big.Int).Add(prev, amount)
	l.journal.append(balanceChange{addr: addr, prev: prev})
}

func (l *Ledger) subBalance(addr common.Address, amount *big.Int) {
	prev := l.balanceOf(addr)
	l.balances[addr] = new(big.Int).Sub(prev, amount)
	l.journal.append(balanceChange{addr: addr, prev: prev})
}
