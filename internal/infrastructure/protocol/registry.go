package protocol

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
)

// defaultProtocolOrder is the registration order when building from
// configuration. Positions are reported grouped by protocol in this order.
var defaultProtocolOrder = []string{
	AaveProtocolName,
	LidoProtocolName,
	EtherFiProtocolName,
	BeefyProtocolName,
}

type registration struct {
	handler     port.ProtocolHandler
	alwaysProbe bool
}

// Registry keeps protocol handlers in registration order.
type Registry struct {
	ordered []registration
	byName  map[string]int
}

var _ port.HandlerRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register appends a handler. alwaysProbe marks protocols whose handlers run
// even when the activity scan saw no matching events, for protocols whose
// positions can exist without any recent transaction (e.g. airdropped or
// transferred tokens).
func (r *Registry) Register(handler port.ProtocolHandler, alwaysProbe bool) error {
	name := handler.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("protocol %q registered twice", name)
	}
	r.byName[name] = len(r.ordered)
	r.ordered = append(r.ordered, registration{handler: handler, alwaysProbe: alwaysProbe})
	return nil
}

func (r *Registry) HandlersFor(chain string) []port.ProtocolHandler {
	handlers := make([]port.ProtocolHandler, 0, len(r.ordered))
	for _, reg := range r.ordered {
		if supportsChain(reg.handler, chain) {
			handlers = append(handlers, reg.handler)
		}
	}
	return handlers
}

func (r *Registry) DiscoveryTargets(chain string) []port.ScanTarget {
	targets := make([]port.ScanTarget, 0, len(r.ordered))
	for _, reg := range r.ordered {
		if !supportsChain(reg.handler, chain) {
			continue
		}
		topics := reg.handler.DiscoveryTopics()
		if len(topics) == 0 {
			continue
		}
		targets = append(targets, port.ScanTarget{Protocol: reg.handler.Name(), Topics: topics})
	}
	return targets
}

func (r *Registry) Get(name string) (port.ProtocolHandler, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.ordered[idx].handler, true
}

func (r *Registry) Protocols() []entity.ProtocolInfo {
	infos := make([]entity.ProtocolInfo, 0, len(r.ordered))
	for _, reg := range r.ordered {
		infos = append(infos, entity.ProtocolInfo{
			Name:        reg.handler.Name(),
			Chains:      reg.handler.SupportedChains(),
			AlwaysProbe: reg.alwaysProbe,
		})
	}
	return infos
}

func supportsChain(handler port.ProtocolHandler, chain string) bool {
	for _, supported := range handler.SupportedChains() {
		if supported == chain {
			return true
		}
	}
	return false
}

// BuildRegistry constructs handlers for every known protocol in the default
// order, honoring per-protocol configuration (disabling, address overrides,
// vault lists, probe policy). Configured protocols without a handler are
// reported and skipped. tokens may be nil; when present it fills in want
// token metadata that vault configs leave out.
func BuildRegistry(cfg *config.Config, tokens port.TokenCatalog, log port.Logger) (*Registry, error) {
	byName := make(map[string]config.ProtocolConfig, len(cfg.Protocols))
	for _, pc := range cfg.Protocols {
		byName[pc.Name] = pc
	}
	for name := range byName {
		if !knownProtocol(name) {
			log.Warn("Configured protocol has no handler, skipping", "protocol", name)
		}
	}

	registry := NewRegistry()
	for _, name := range defaultProtocolOrder {
		pc := byName[name]
		if pc.Disabled {
			log.Info("Protocol disabled by configuration", "protocol", name)
			continue
		}

		var handler port.ProtocolHandler
		switch name {
		case AaveProtocolName:
			handler = NewAaveHandler(resolveAddresses(name, pc.Addresses), log)
		case LidoProtocolName:
			handler = NewLidoHandler(resolveAddresses(name, pc.Addresses), log)
		case EtherFiProtocolName:
			handler = NewEtherFiHandler(resolveAddresses(name, pc.Addresses), log)
		case BeefyProtocolName:
			handler = NewBeefyHandler(vaultSpecs(pc.Vaults, tokens), log)
		}

		if err := registry.Register(handler, pc.AlwaysProbe); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func knownProtocol(name string) bool {
	for _, known := range defaultProtocolOrder {
		if known == name {
			return true
		}
	}
	return false
}

func vaultSpecs(configured map[string][]config.VaultConfig, tokens port.TokenCatalog) map[string][]VaultSpec {
	specs := make(map[string][]VaultSpec, len(configured))
	for chain, vaults := range configured {
		converted := make([]VaultSpec, 0, len(vaults))
		for _, vault := range vaults {
			spec := VaultSpec{
				Address:       common.HexToAddress(vault.Address),
				Name:          vault.Name,
				ShareDecimals: vault.ShareDecimals,
				Want: entity.Token{
					Symbol:   vault.WantSymbol,
					Decimals: vault.WantDecimals,
				},
			}
			if vault.WantAddress != "" {
				spec.Want.Address = common.HexToAddress(vault.WantAddress).Hex()
				if tokens != nil {
					if known, ok := tokens.TokenByAddress(chain, vault.WantAddress); ok {
						if spec.Want.Symbol == "" {
							spec.Want.Symbol = known.Symbol
						}
						if spec.Want.Decimals == 0 {
							spec.Want.Decimals = known.Decimals
						}
						if spec.Want.Name == "" {
							spec.Want.Name = known.Name
						}
					}
				}
			}
			converted = append(converted, spec)
		}
		specs[chain] = converted
	}
	return specs
}
