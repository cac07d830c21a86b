package account

import "github.com/ethereum/go-ethereum/common"

// SignerPolicy decides whether a recovered signer may authorize operations
// for an account with the given owner. It is the only place that decides who
// may sign; the dispatcher and the caller checks never consult it.
type SignerPolicy interface {
	IsAuthorizedSigner(owner, signer common.Address) bool
}

// PolicyFunc adapts a function to SignerPolicy.
type PolicyFunc func(owner, signer common.Address) bool

func (f PolicyFunc) IsAuthorizedSigner(owner, signer common.Address) bool {
	if f == nil {
		return false
	}
	return f(owner, signer)
}

// SingleOwner authorizes exactly the current owner.
type SingleOwner struct{}

func (SingleOwner) IsAuthorizedSigner(owner, signer common.Address) bool {
	return owner != (common.Address{}) && signer == owner
}
