package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the daemon cannot run safely with. Callers
// get the first failure; the file should be fixed rather than papered over.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	switch cfg.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("config: Environment must be one of %s, %s, %s", EnvDevelopment, EnvStaging, EnvProduction)
	}
	if cfg.RPC.RatePerSecond <= 0 {
		return fmt.Errorf("config: rpc.RatePerSecond must be positive")
	}
	if cfg.RPC.RateBurst <= 0 {
		return fmt.Errorf("config: rpc.RateBurst must be positive")
	}
	if cfg.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: rpc.MaxBodyBytes must be positive")
	}
	if cfg.RPC.ReadTimeout <= 0 || cfg.RPC.WriteTimeout <= 0 || cfg.RPC.IdleTimeout <= 0 {
		return fmt.Errorf("config: rpc timeouts must be positive")
	}
	if _, err := cfg.Allocations(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
