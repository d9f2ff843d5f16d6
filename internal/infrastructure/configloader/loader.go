package configloader

import (
	"fmt"
	"os"

	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
)

// Load reads the YAML configuration, expands environment references inside
// RPC endpoint URLs (for provider API keys) and validates the result.
func Load(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	for i := range cfg.Chains {
		for j, url := range cfg.Chains[i].Endpoints {
			cfg.Chains[i].Endpoints[j] = os.ExpandEnv(url)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the aggregator cannot run with. Endpoint
// availability is checked later, once builtin chain definitions are merged in.
func Validate(cfg *config.Config) error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("%w: configure at least one chain", entity.ErrNoChainsConfigured)
	}

	seen := make(map[string]struct{})
	for _, chain := range cfg.Chains {
		if chain.Name == "" {
			return fmt.Errorf("chain with chainID %d has no name", chain.ChainID)
		}
		if _, dup := seen[chain.Name]; dup {
			return fmt.Errorf("duplicate chain name %q", chain.Name)
		}
		seen[chain.Name] = struct{}{}
	}

	names := make(map[string]struct{})
	for _, proto := range cfg.Protocols {
		if proto.Name == "" {
			return fmt.Errorf("protocol entry with empty name")
		}
		if _, dup := names[proto.Name]; dup {
			return fmt.Errorf("duplicate protocol name %q", proto.Name)
		}
		names[proto.Name] = struct{}{}
	}
	return nil
}
