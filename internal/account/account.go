// Package account implements the authorization-gated smart account.
//
// The account holds native value and dispatches arbitrary calls, guarded by
// two independent caller checks:
//
//   - Execute runs only for the pinned orchestrator or the current owner.
//   - ValidateOperation runs only for the pinned orchestrator. It checks the
//     owner's signature over the operation hash and settles the requested
//     prefund back to the orchestrator.
//
// The account keeps no nonce or replay state. Ordering and replay protection
// belong to the orchestrator; presenting the same operation hash twice
// validates twice.
package account

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/userop"
	"github.com/R3E-Network/smartaccount/pkg/logger"
)

// Account is a single-owner smart account pinned to one orchestrator.
type Account struct {
	mu           sync.RWMutex
	owner        common.Address
	orchestrator common.Address

	policy SignerPolicy
	log    *logger.Logger
}

// Option configures an Account.
type Option func(*Account)

// WithSignerPolicy replaces the default single-owner signer check.
func WithSignerPolicy(p SignerPolicy) Option {
	return func(a *Account) {
		if p == nil {
			return
		}
		if f, ok := p.(PolicyFunc); ok && f == nil {
			return
		}
		a.policy = p
	}
}

// WithLogger sets the account logger.
func WithLogger(log *logger.Logger) Option {
	return func(a *Account) {
		if log != nil {
			a.log = log
		}
	}
}

// New creates an account owned by owner and pinned to orchestrator.
func New(owner, orchestrator common.Address, opts ...Option) (*Account, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero address", ErrInvalidOwner)
	}
	if orchestrator == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero address", ErrInvalidOrchestrator)
	}

	a := &Account{
		owner:        owner,
		orchestrator: orchestrator,
		policy:       SingleOwner{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.NewDefault("account")
	}
	return a, nil
}

// Deploy creates an account owned by deployer and installs it on the ledger.
func Deploy(l *chain.Ledger, deployer, orchestrator common.Address, opts ...Option) (common.Address, *Account, error) {
	a, err := New(deployer, orchestrator, opts...)
	if err != nil {
		return common.Address{}, nil, err
	}
	addr, err := l.Deploy(deployer, a)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("deploy account: %w", err)
	}

	a.log.WithField("account", addr.Hex()).
		WithField("owner", deployer.Hex()).
		WithField("orchestrator", orchestrator.Hex()).
		Info("account deployed")
	return addr, a, nil
}

// OrchestratorAddress returns the orchestrator fixed at construction.
func (a *Account) OrchestratorAddress() common.Address {
	return a.orchestrator
}

// Owner returns the current owner.
func (a *Account) Owner() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.owner
}

// TransferOwnership hands the account to newOwner. Only the current owner may
// call it.
func (a *Account) TransferOwnership(env *chain.Env, newOwner common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if env.Caller() != a.owner {
		return &CallerError{Entry: "transferOwnership", Caller: env.Caller()}
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidOwner)
	}

	prev := a.owner
	a.owner = newOwner
	env.OnRevert(func() {
		a.mu.Lock()
		a.owner = prev
		a.mu.Unlock()
	})

	a.log.WithField("account", env.Self().Hex()).
		WithField("previous_owner", prev.Hex()).
		WithField("new_owner", newOwner.Hex()).
		Info("ownership transferred")
	return nil
}

// =============================================================================
// Call Data Dispatch
// =============================================================================

// Call implements chain.Contract. Empty input accepts value unconditionally.
func (a *Account) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}
	if len(input) < 4 {
		return nil, chain.Revert("account: short call data")
	}

	method, err := userop.AccountABI.MethodById(input[:4])
	if err != nil {
		return nil, chain.Revert("account: unknown selector")
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, chain.Revert("account: malformed " + method.Name + " arguments")
	}

	switch method.Name {
	case "execute":
		ret, err := a.Execute(env, args[0].(common.Address), args[1].(*big.Int), args[2].([]byte))
		if err != nil {
			return nil, err
		}
		if ret == nil {
			ret = []byte{}
		}
		return method.Outputs.Pack(ret)
	case "owner":
		return method.Outputs.Pack(a.Owner())
	case "getEntryPoint":
		return method.Outputs.Pack(a.orchestrator)
	case "transferOwnership":
		return nil, a.TransferOwnership(env, args[0].(common.Address))
	}
	return nil, chain.Revert("account: unknown selector")
}

// =============================================================================
// Caller Guards
// =============================================================================

const (
	roleOrchestrator = "orchestrator"
	roleOwner        = "owner"
)

// requireFromOrchestrator admits only the pinned orchestrator.
func (a *Account) requireFromOrchestrator(env *chain.Env, entry string) error {
	if env.Caller() != a.orchestrator {
		return &CallerError{Entry: entry, Caller: env.Caller()}
	}
	return nil
}

// requireFromOrchestratorOrOwner admits the pinned orchestrator or the current
// owner and reports which one called.
func (a *Account) requireFromOrchestratorOrOwner(env *chain.Env, entry string) (string, error) {
	caller := env.Caller()
	switch {
	case caller == a.orchestrator:
		return roleOrchestrator, nil
	case caller == a.Owner():
		return roleOwner, nil
	default:
		return "", &CallerError{Entry: entry, Caller: caller}
	}
}
