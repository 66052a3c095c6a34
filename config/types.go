package config

import (
	"fmt"

	"vaultcore/crypto"
	"vaultcore/native/token"
	"vaultcore/native/vault"
)

// Recognised deployment environments. The backdate override refuses to arm
// itself when the node runs as EnvProduction.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// RPC controls the HTTP surface in front of the engine.
type RPC struct {
	RatePerSecond float64 `toml:"RatePerSecond"`
	RateBurst     int     `toml:"RateBurst"`
	MaxBodyBytes  int64   `toml:"MaxBodyBytes"`
	ReadTimeout   int     `toml:"ReadTimeoutSeconds"`
	WriteTimeout  int     `toml:"WriteTimeoutSeconds"`
	IdleTimeout   int     `toml:"IdleTimeoutSeconds"`
}

// Telemetry carries the OTLP exporter knobs. An empty endpoint disables
// telemetry.
type Telemetry struct {
	OTLPEndpoint string `toml:"OTLPEndpoint"`
	OTLPInsecure bool   `toml:"OTLPInsecure"`
	OTLPHeaders  string `toml:"OTLPHeaders"`
	Traces       bool   `toml:"Traces"`
	Metrics      bool   `toml:"Metrics"`
}

// Pauses flags whole modules as administratively halted. Toggling requires a
// restart.
type Pauses struct {
	Vault bool `toml:"Vault"`
	Token bool `toml:"Token"`
}

// Map renders the pause flags in the form the module guards consume.
func (p Pauses) Map() map[string]bool {
	return map[string]bool{
		vault.ModuleName: p.Vault,
		token.ModuleName: p.Token,
	}
}

// GenesisAlloc funds one address with base asset units at first boot.
type GenesisAlloc struct {
	Address string `toml:"Address"`
	Amount  uint64 `toml:"Amount"`
}

// Genesis lists the balances written exactly once when the node starts on an
// empty database.
type Genesis struct {
	Alloc []GenesisAlloc `toml:"alloc"`
}

// Allocation is a genesis entry with the address already decoded.
type Allocation struct {
	Address crypto.Address
	Amount  uint64
}

// Allocations decodes the configured genesis entries, rejecting malformed
// addresses, zero amounts and duplicates.
func (c *Config) Allocations() ([]Allocation, error) {
	seen := make(map[string]struct{}, len(c.Genesis.Alloc))
	out := make([]Allocation, 0, len(c.Genesis.Alloc))
	for i, alloc := range c.Genesis.Alloc {
		addr, err := crypto.DecodeAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis.alloc[%d]: %w", i, err)
		}
		if alloc.Amount == 0 {
			return nil, fmt.Errorf("genesis.alloc[%d]: amount must be greater than zero", i)
		}
		key := string(addr.Bytes())
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("genesis.alloc[%d]: duplicate address %s", i, alloc.Address)
		}
		seen[key] = struct{}{}
		out = append(out, Allocation{Address: addr, Amount: alloc.Amount})
	}
	return out, nil
}

// IsProduction reports whether the node is configured for the production
// environment.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
