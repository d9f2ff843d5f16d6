package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/pkg/retry"
)

// EVMClientProvider implements port.ChainClientProvider. Clients are built
// lazily and cached per chain; the shared call cache is handed to each client.
type EVMClientProvider struct {
	descriptors []entity.ChainDescriptor
	byName      map[string]entity.ChainDescriptor
	opts        ClientOptions
	cache       *CallCache
	logger      port.Logger

	mu      sync.Mutex
	clients map[string]port.ChainClient
}

// NewEVMClientProvider creates a provider for the configured chains.
func NewEVMClientProvider(descriptors []entity.ChainDescriptor, rpcCfg config.RpcClientConfig, cache *CallCache, logger port.Logger) *EVMClientProvider {
	opts := ClientOptions{
		CallTimeout: time.Duration(rpcCfg.DefaultTimeoutMs) * time.Millisecond,
		Retry: retry.Config{
			MaxRetries:     rpcCfg.MaxRetries,
			InitialBackoff: time.Duration(rpcCfg.RetryDelayMs) * time.Millisecond,
			MaxBackoff:     time.Duration(rpcCfg.RetryMaxDelayMs) * time.Millisecond,
			BackoffFactor:  2.0,
			Jitter:         true,
		},
		RateLimit:  rpcCfg.RateLimit,
		BurstLimit: rpcCfg.BurstLimit,
	}

	byName := make(map[string]entity.ChainDescriptor, len(descriptors))
	for _, desc := range descriptors {
		byName[desc.Identifier] = desc
	}

	return &EVMClientProvider{
		descriptors: descriptors,
		byName:      byName,
		opts:        opts,
		cache:       cache,
		logger:      logger,
		clients:     make(map[string]port.ChainClient),
	}
}

var _ port.ChainClientProvider = (*EVMClientProvider)(nil)

// Chains returns the configured chain descriptors in config order.
func (p *EVMClientProvider) Chains() []entity.ChainDescriptor {
	out := make([]entity.ChainDescriptor, len(p.descriptors))
	copy(out, p.descriptors)
	return out
}

// GetClient returns the cached client for a chain, creating it on first use.
func (p *EVMClientProvider) GetClient(chain string) (port.ChainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.clients[chain]; ok {
		return existing, nil
	}

	desc, ok := p.byName[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownChain, chain)
	}

	created, err := NewEVMClient(desc, p.opts, p.cache, p.logger)
	if err != nil {
		p.logger.Error("Failed to create EVM client", "chain", chain, "error", err)
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", chain, err)
	}

	p.clients[chain] = created
	p.logger.Info("Created EVM client", "chain", chain, "endpoints", len(desc.RPCEndpoints))
	return created, nil
}

// NewBatcher returns a fresh multicall batcher for the chain.
func (p *EVMClientProvider) NewBatcher(chain string) (port.CallBatcher, error) {
	chainClient, err := p.GetClient(chain)
	if err != nil {
		return nil, err
	}
	desc := chainClient.Descriptor()
	if desc.MulticallAddress == "" {
		return nil, fmt.Errorf("chain %s has no multicall contract configured", chain)
	}
	return NewMulticallBatcher(chainClient, common.HexToAddress(desc.MulticallAddress)), nil
}
