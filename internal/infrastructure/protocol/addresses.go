package protocol

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Contract roles used by the builtin address book and by configuration
// overrides. A protocol's handler looks its contracts up by role.
const (
	RoleAavePool    = "pool"
	RoleStETH       = "steth"
	RoleWstETH      = "wsteth"
	RoleEETH        = "eeth"
	RoleWeETH       = "weeth"
	RoleLiquidVault = "liquid_vault"
	RoleAccountant  = "accountant"
)

// Builtin mainnet deployments. Configuration may override any role per chain
// or add chains the builtin book does not know about.
var builtinAddresses = map[string]map[string]map[string]string{
	AaveProtocolName: {
		"ethereum": {
			RoleAavePool: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
		},
		"base": {
			RoleAavePool: "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5",
		},
	},
	LidoProtocolName: {
		"ethereum": {
			RoleStETH:  "0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84",
			RoleWstETH: "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0",
		},
	},
	EtherFiProtocolName: {
		"ethereum": {
			RoleEETH:        "0x35fA164735182de50811E8e2E824cFb9B6118ac2",
			RoleWeETH:       "0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee",
			RoleLiquidVault: "0x08c6F91e2B681FaF5e17227F2a44C307b3C1364C",
			RoleAccountant:  "0xc315D6e14DDCDC7407784e2Caf815d131Bc1D3E7",
		},
	},
}

// resolveAddresses merges configured overrides into the builtin book for one
// protocol. An override set to the empty string removes the role, which lets
// configuration disable a single contract without disabling the protocol.
func resolveAddresses(protocolName string, overrides map[string]map[string]string) map[string]map[string]common.Address {
	merged := make(map[string]map[string]string)
	for chain, roles := range builtinAddresses[protocolName] {
		dst := make(map[string]string, len(roles))
		for role, addr := range roles {
			dst[role] = addr
		}
		merged[chain] = dst
	}
	for chain, roles := range overrides {
		dst, ok := merged[chain]
		if !ok {
			dst = make(map[string]string, len(roles))
			merged[chain] = dst
		}
		for role, addr := range roles {
			dst[role] = addr
		}
	}

	resolved := make(map[string]map[string]common.Address, len(merged))
	for chain, roles := range merged {
		dst := make(map[string]common.Address, len(roles))
		for role, addr := range roles {
			if addr == "" {
				continue
			}
			dst[role] = common.HexToAddress(addr)
		}
		if len(dst) > 0 {
			resolved[chain] = dst
		}
	}
	return resolved
}

// chainsWithRole lists the chains where a role is deployed, sorted for
// deterministic SupportedChains output.
func chainsWithRole(addrs map[string]map[string]common.Address, role string) []string {
	chains := make([]string, 0, len(addrs))
	for chain, roles := range addrs {
		if _, ok := roles[role]; ok {
			chains = append(chains, chain)
		}
	}
	sort.Strings(chains)
	return chains
}
