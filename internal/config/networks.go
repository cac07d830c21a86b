// Package config resolves the network an account runs against: its chain id,
// the pinned orchestrator, the reference token and the operator.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const DefaultNetwork = "local"

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrInvalidNetwork = errors.New("invalid network config")
)

// NetworkConfig is one network entry as written in YAML.
type NetworkConfig struct {
	Name                  string `yaml:"name"`
	ChainID               uint64 `yaml:"chain_id"`
	OrchestratorAddress   string `yaml:"orchestrator_address"`
	ReferenceTokenAddress string `yaml:"reference_token_address,omitempty"`
	OperatorAddress       string `yaml:"operator_address,omitempty"`
}

// File is the layout of a networks YAML file.
type File struct {
	DefaultNetwork string                    `yaml:"default_network,omitempty"`
	Networks       map[string]*NetworkConfig `yaml:"networks"`
}

// Network is a validated NetworkConfig.
type Network struct {
	Name           string
	ChainID        *big.Int
	Orchestrator   common.Address
	ReferenceToken common.Address // zero when the network has none
	Operator       common.Address // zero when the network has none
}

// Provider hands out network configs by name.
type Provider struct {
	defaultNetwork string
	networks       map[string]*NetworkConfig
}

// NewProvider returns a provider with the built-in networks.
func NewProvider() *Provider {
	return &Provider{
		defaultNetwork: DefaultNetwork,
		networks:       DefaultNetworks(),
	}
}

// DefaultNetworks returns the built-in network table.
func DefaultNetworks() map[string]*NetworkConfig {
	return map[string]*NetworkConfig{
		"local": {
			Name:                  "local",
			ChainID:               31337,
			OrchestratorAddress:   "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			ReferenceTokenAddress: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
			OperatorAddress:       "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		},
		"sepolia": {
			Name:                  "sepolia",
			ChainID:               11155111,
			OrchestratorAddress:   "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
			ReferenceTokenAddress: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		},
		"zksync-sepolia": {
			Name:                "zksync-sepolia",
			ChainID:             300,
			OrchestratorAddress: "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		},
	}
}

// LoadFromPath reads a networks file and layers it over the built-in table.
// Fields left empty in the file keep their built-in values.
func LoadFromPath(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks config: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse networks config: %w", err)
	}

	p := NewProvider()
	if file.DefaultNetwork != "" {
		p.defaultNetwork = file.DefaultNetwork
	}
	for name, cfg := range file.Networks {
		if cfg == nil {
			continue
		}
		merged := p.networks[name]
		if merged == nil {
			merged = &NetworkConfig{Name: name}
		}
		overlay(merged, cfg)
		p.networks[name] = merged
	}

	for name := range p.networks {
		if _, err := p.Network(name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LoadOrDefault loads path or falls back to the built-in networks when path
// is empty or missing.
func LoadOrDefault(path string) (*Provider, error) {
	if path == "" {
		return NewProvider(), nil
	}
	p, err := LoadFromPath(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewProvider(), nil
	}
	return p, err
}

// DefaultPath is where the CLI looks for a networks file.
func DefaultPath() string {
	return filepath.Join("config", "networks.yaml")
}

// DefaultName returns the network used when none is requested.
func (p *Provider) DefaultName() string {
	return p.defaultNetwork
}

// Names returns the known network names in order.
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.networks))
	for name := range p.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns a copy of the raw entry for name.
func (p *Provider) Config(name string) (NetworkConfig, bool) {
	cfg, ok := p.networks[name]
	if !ok {
		return NetworkConfig{}, false
	}
	return *cfg, true
}

// Network validates and returns the network called name.
func (p *Provider) Network(name string) (*Network, error) {
	cfg, ok := p.networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	return cfg.Resolve()
}

// NetworkForChainID returns the network configured for chainID.
func (p *Provider) NetworkForChainID(chainID uint64) (*Network, error) {
	for _, name := range p.Names() {
		if p.networks[name].ChainID == chainID {
			return p.Network(name)
		}
	}
	return nil, fmt.Errorf("%w: chain id %d", ErrUnknownNetwork, chainID)
}

// Resolve validates cfg and parses its addresses.
func (cfg *NetworkConfig) Resolve() (*Network, error) {
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("%w: %s: chain_id is required", ErrInvalidNetwork, cfg.Name)
	}
	orchestrator, err := parseAddress(cfg.Name, "orchestrator_address", cfg.OrchestratorAddress, true)
	if err != nil {
		return nil, err
	}
	token, err := parseAddress(cfg.Name, "reference_token_address", cfg.ReferenceTokenAddress, false)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddress(cfg.Name, "operator_address", cfg.OperatorAddress, false)
	if err != nil {
		return nil, err
	}

	return &Network{
		Name:           cfg.Name,
		ChainID:        new(big.Int).SetUint64(cfg.ChainID),
		Orchestrator:   orchestrator,
		ReferenceToken: token,
		Operator:       operator,
	}, nil
}

func parseAddress(network, field, value string, required bool) (common.Address, error) {
	if value == "" {
		if required {
			return common.Address{}, fmt.Errorf("%w: %s: %s is required", ErrInvalidNetwork, network, field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: %s: %s %q is not an address", ErrInvalidNetwork, network, field, value)
	}
	addr := common.HexToAddress(value)
	if required && addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s: %s is the zero address", ErrInvalidNetwork, network, field)
	}
	return addr, nil
}

func overlay(dst, src *NetworkConfig) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.ChainID != 0 {
		dst.ChainID = src.ChainID
	}
	if src.OrchestratorAddress != "" {
		dst.OrchestratorAddress = src.OrchestratorAddress
	}
	if src.ReferenceTokenAddress != "" {
		dst.ReferenceTokenAddress = src.ReferenceTokenAddress
	}
	if src.OperatorAddress != "" {
		dst.OperatorAddress = src.OperatorAddress
	}
}
