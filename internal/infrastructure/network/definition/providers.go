package networkdefinition

import (
	"fmt"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
)

// Predefined chain descriptors. Configuration entries referencing these
// identifiers inherit endpoints and contract addresses and may override any
// field individually.
var ( //nolint:gochecknoglobals // Global for definitions
	Ethereum = entity.ChainDescriptor{
		ChainID:        1,
		Name:           "Ethereum Mainnet",
		Identifier:     "ethereum",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		RPCEndpoints: []string{
			"https://ethereum-rpc.publicnode.com",
			"https://rpc.ankr.com/eth",
			"https://eth.llamarpc.com",
		},
		MulticallAddress: "0xcA11bde05977b3631167028862bE2a173976CA11",
		WrappedNative:    "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", // WETH
		LookbackBlocks:   1_000_000,
		LlamaIdentifier:  "ethereum",
	}
	Base = entity.ChainDescriptor{
		ChainID:        8453,
		Name:           "Base Mainnet",
		Identifier:     "base",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		RPCEndpoints: []string{
			"https://base-rpc.publicnode.com",
			"https://mainnet.base.org",
			"https://base.llamarpc.com",
		},
		MulticallAddress: "0xcA11bde05977b3631167028862bE2a173976CA11",
		WrappedNative:    "0x4200000000000000000000000000000000000006", // WETH on Base
		LookbackBlocks:   1_000_000,
		LlamaIdentifier:  "base",
	}
)

// builtinDescriptors is a helper to quickly access all hardcoded descriptors.
var builtinDescriptors = map[string]entity.ChainDescriptor{
	Ethereum.Identifier: Ethereum,
	Base.Identifier:     Base,
}

// Builtin returns the hardcoded descriptor for an identifier, if one exists.
func Builtin(identifier string) (entity.ChainDescriptor, bool) {
	def, ok := builtinDescriptors[identifier]
	return def, ok
}

// ResolveChains turns configured chain nodes into usable chain descriptors.
// Nodes naming a builtin chain start from its descriptor and overlay whatever
// the configuration sets; unknown chains are built entirely from the node.
// Chains that end up without a single RPC endpoint are dropped.
func ResolveChains(nodes []config.ChainNode, log port.Logger) ([]entity.ChainDescriptor, error) {
	active := make([]entity.ChainDescriptor, 0, len(nodes))

	for _, node := range nodes {
		desc, known := builtinDescriptors[node.Name]
		if !known {
			desc = entity.ChainDescriptor{Name: node.Name, Identifier: node.Name}
		}

		if node.ChainID != 0 {
			desc.ChainID = node.ChainID
		}
		if node.NativeSymbol != "" {
			desc.NativeSymbol = node.NativeSymbol
		}
		if node.NativeDecimals != 0 {
			desc.NativeDecimals = node.NativeDecimals
		}
		if len(node.Endpoints) > 0 {
			desc.RPCEndpoints = node.Endpoints
		}
		if node.Multicall != "" {
			desc.MulticallAddress = node.Multicall
		}
		if node.WrappedNative != "" {
			desc.WrappedNative = node.WrappedNative
		}
		if node.LookbackBlocks != 0 {
			desc.LookbackBlocks = node.LookbackBlocks
		}
		if node.LlamaChainID != "" {
			desc.LlamaIdentifier = node.LlamaChainID
		}

		if len(desc.RPCEndpoints) == 0 {
			log.Warn(fmt.Sprintf("Chain '%s' has no RPC endpoints and no builtin definition. Skipping.", node.Name))
			continue
		}

		active = append(active, desc)
		log.Debug(fmt.Sprintf("Chain '%s' activated (ChainID: %d, endpoints: %d)", desc.Identifier, desc.ChainID, len(desc.RPCEndpoints)))
	}

	if len(active) == 0 {
		return nil, fmt.Errorf("%w: no configured chain has RPC endpoints", entity.ErrNoChainsConfigured)
	}

	log.Info(fmt.Sprintf("Chain definitions resolved. Active chains: %d", len(active)))
	return active, nil
}
