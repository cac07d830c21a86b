package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/R3E-Network/smartaccount/internal/chain"
	"github.com/R3E-Network/smartaccount/internal/metrics"
)

// Execute dispatches one call to target forwarding value and payload
// verbatim, and returns the target's result.
//
// There is no signature check here: a call from the orchestrator has already
// been validated upstream, and the owner is a direct authenticated channel.
// A failing target surfaces as *DownstreamCallError with its raw payload; the
// attempted transfer is rolled back with the failed frame.
func (a *Account) Execute(env *chain.Env, target common.Address, value *big.Int, payload []byte) ([]byte, error) {
	role, err := a.requireFromOrchestratorOrOwner(env, "execute")
	if err != nil {
		metrics.RecordExecution("unauthorized", false)
		a.log.WithField("account", env.Self().Hex()).
			WithField("caller", env.Caller().Hex()).
			Warn("execute rejected")
		return nil, err
	}

	ret, err := env.Call(target, value, payload)
	if err != nil {
		metrics.RecordExecution(role, false)
		data := chain.RevertData(err)
		a.log.WithField("account", env.Self().Hex()).
			WithField("target", target.Hex()).
			WithField("role", role).
			WithField("revert_data", hexutil.Encode(data)).
			WithError(err).
			Info("downstream call failed")
		return nil, &DownstreamCallError{Target: target, Data: data, Err: err}
	}

	metrics.RecordExecution(role, true)
	a.log.WithField("account", env.Self().Hex()).
		WithField("target", target.Hex()).
		WithField("role", role).
		Debug("execute dispatched")
	return ret, nil
}
