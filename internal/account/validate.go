package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/metrics"
	"github.com/R3E-Network/smartaccount/internal/userop"
)

// ValidateOperation checks that op carries a signature from an authorized
// signer over the signed-message digest of opHash, then pushes
// requiredPrefund to the orchestrator.
//
// Only the orchestrator may call it. A bad or foreign signature is reported
// as userop.ValidationFailed, never as an error. Settlement happens whatever
// the signature outcome.
func (a *Account) ValidateOperation(env *chain.Env, op *userop.Operation, opHash common.Hash, requiredPrefund *big.Int) (userop.ValidationStatus, error) {
	if err := a.requireFromOrchestrator(env, "validateOperation"); err != nil {
		a.log.WithField("account", env.Self().Hex()).
			WithField("caller", env.Caller().Hex()).
			Warn("validateOperation rejected")
		return userop.ValidationFailed, err
	}

	status := a.validateSignature(env, op, opHash)
	a.payPrefund(env, requiredPrefund)

	metrics.RecordValidation(status.String())
	return status, nil
}

func (a *Account) validateSignature(env *chain.Env, op *userop.Operation, opHash common.Hash) userop.ValidationStatus {
	if op == nil {
		return userop.ValidationFailed
	}

	digest := userop.SignedMessageDigest(opHash)
	signer, err := userop.RecoverSigner(digest, op.Signature)
	if err != nil {
		a.log.WithField("account", env.Self().Hex()).
			WithField("op_hash", opHash.Hex()).
			WithError(err).
			Debug("signature recovery failed")
		return userop.ValidationFailed
	}

	if !a.policy.IsAuthorizedSigner(a.Owner(), signer) {
		a.log.WithField("account", env.Self().Hex()).
			WithField("op_hash", opHash.Hex()).
			WithField("signer", signer.Hex()).
			Debug("signer not authorized")
		return userop.ValidationFailed
	}
	return userop.ValidationSucceeded
}

// payPrefund pushes amount to the caller. A failed transfer is logged and
// counted but never returned: the orchestrator checks what it received
// before it proceeds.
func (a *Account) payPrefund(env *chain.Env, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	if err := env.Transfer(env.Caller(), amount); err != nil {
		metrics.RecordSettlementFailure()
		a.log.WithField("account", env.Self().Hex()).
			WithField("orchestrator", env.Caller().Hex()).
			WithField("amount", amount.String()).
			WithError(err).
			Warn("prefund settlement failed, ignoring")
	}
}
