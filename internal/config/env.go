package config

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
)

// EnvOverrides are the AA_* environment variables that patch the selected
// network.
type EnvOverrides struct {
	Network               string `env:"AA_NETWORK"`
	ChainID               uint64 `env:"AA_CHAIN_ID"`
	OrchestratorAddress   string `env:"AA_ORCHESTRATOR_ADDRESS"`
	ReferenceTokenAddress string `env:"AA_REFERENCE_TOKEN_ADDRESS"`
	OperatorAddress       string `env:"AA_OPERATOR_ADDRESS"`
}

// LoadEnv decodes the AA_* variables. None being set is not an error.
func LoadEnv() (EnvOverrides, error) {
	var env EnvOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return EnvOverrides{}, fmt.Errorf("decode environment: %w", err)
	}
	return env, nil
}

// Resolve picks a network and applies environment overrides to it. An
// explicit name wins over AA_NETWORK, which wins over the default.
func (p *Provider) Resolve(name string) (*Network, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	return p.ResolveWith(name, env)
}

// ResolveWith is Resolve with the overrides supplied by the caller.
func (p *Provider) ResolveWith(name string, env EnvOverrides) (*Network, error) {
	if name == "" {
		name = env.Network
	}
	if name == "" {
		name = p.defaultNetwork
	}

	cfg, ok := p.Config(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	overlay(&cfg, &NetworkConfig{
		ChainID:               env.ChainID,
		OrchestratorAddress:   env.OrchestratorAddress,
		ReferenceTokenAddress: env.ReferenceTokenAddress,
		OperatorAddress:       env.OperatorAddress,
	})
	return cfg.Resolve()
}
