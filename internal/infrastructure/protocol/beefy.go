package protocol

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/pkg/utils"
)

// BeefyProtocolName identifies the Beefy Finance yield optimizer.
const BeefyProtocolName = "beefy"

// Beefy vaults quote getPricePerFullShare in 1e18 regardless of the want
// token's decimals.
const beefyShareRateDecimals = 18

// Vault share tokens mint a Transfer on deposit, so scanning uses the plain
// ERC-20 Transfer topic. Activity hints for Beefy are therefore very loose;
// balance checks do the real filtering.
var beefyDiscoveryTopics = []common.Hash{
	common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"), // Transfer
}

// VaultSpec describes one Beefy vault to check. Beefy runs hundreds of vaults
// per chain, so the tracked set comes from configuration instead of a builtin
// book.
type VaultSpec struct {
	Address common.Address
	Name    string

	// Want is the vault's deposit token. When its address is empty it is
	// resolved on chain via want().
	Want entity.Token

	// ShareDecimals defaults to 18 (moo tokens).
	ShareDecimals uint8
}

// BeefyHandler checks configured Beefy vaults for share balances and converts
// shares to the want token using getPricePerFullShare from the same batch.
type BeefyHandler struct {
	logger port.Logger
	vaults map[string][]VaultSpec
	chains []string
}

var _ port.ProtocolHandler = (*BeefyHandler)(nil)

func NewBeefyHandler(vaults map[string][]VaultSpec, log port.Logger) *BeefyHandler {
	chains := make([]string, 0, len(vaults))
	for chain, specs := range vaults {
		if len(specs) > 0 {
			chains = append(chains, chain)
		}
	}
	sort.Strings(chains)
	return &BeefyHandler{logger: log, vaults: vaults, chains: chains}
}

func (h *BeefyHandler) Name() string { return BeefyProtocolName }

func (h *BeefyHandler) SupportedChains() []string { return h.chains }

func (h *BeefyHandler) DiscoveryTopics() []common.Hash { return beefyDiscoveryTopics }

func (h *BeefyHandler) Discover(ctx context.Context, address common.Address, chain string, batch port.CallBatcher) ([]entity.Position, error) {
	specs := h.vaults[chain]
	if len(specs) == 0 {
		return nil, nil
	}

	balData, err := balanceOfData(address)
	if err != nil {
		return nil, fmt.Errorf("%s: pack balanceOf: %w", BeefyProtocolName, err)
	}

	type vaultCalls struct {
		spec    VaultSpec
		balIdx  int
		ppfsIdx int
		wantIdx int
	}

	calls := make([]vaultCalls, 0, len(specs))
	for _, spec := range specs {
		vc := vaultCalls{spec: spec, wantIdx: -1}
		vc.balIdx = batch.Add(spec.Address, balData)
		vc.ppfsIdx = batch.Add(spec.Address, pricePerFullShareData())
		if spec.Want.Address == "" {
			vc.wantIdx = batch.Add(spec.Address, wantData())
		}
		calls = append(calls, vc)
	}

	if err := batch.Execute(ctx); err != nil {
		return nil, fmt.Errorf("%s: execute batch on %s: %w", BeefyProtocolName, chain, err)
	}

	positions := make([]entity.Position, 0, len(calls))
	for _, vc := range calls {
		raw, ok := h.readBalance(batch, vc.balIdx, chain, vc.spec.Name)
		if !ok || raw.Sign() == 0 {
			continue
		}

		shareDecimals := vc.spec.ShareDecimals
		if shareDecimals == 0 {
			shareDecimals = 18
		}
		shares := utils.FromBaseUnits(raw, shareDecimals)

		want := vc.spec.Want
		if want.Address == "" && vc.wantIdx >= 0 {
			if addr, ok := h.readWant(batch, vc.wantIdx, chain, vc.spec.Name); ok {
				want.Address = addr.Hex()
			}
		}
		if want.Decimals == 0 {
			want.Decimals = 18
		}

		position := entity.Position{
			Protocol: BeefyProtocolName,
			Chain:    chain,
			Kind:     entity.PositionVault,
			Token: entity.Token{
				Address:  vc.spec.Address.Hex(),
				Name:     "Beefy Vault " + vc.spec.Name,
				Symbol:   vc.spec.Name,
				Decimals: shareDecimals,
			},
			Balance:  shares,
			Metadata: map[string]string{"vault": vc.spec.Address.Hex()},
		}

		if ppfs, ok := h.readPricePerFullShare(batch, vc.ppfsIdx, chain, vc.spec.Name); ok && want.Address != "" {
			rate := utils.FromBaseUnits(ppfs, beefyShareRateDecimals)
			underlying := shares.Mul(rate)
			position.Underlying = &want
			position.UnderlyingBalance = &underlying
			position.Metadata["price_per_full_share"] = rate.String()
		}

		positions = append(positions, position)
	}

	return positions, nil
}

func (h *BeefyHandler) readBalance(batch port.CallBatcher, idx int, chain, vault string) (*big.Int, bool) {
	outcome, err := batch.Result(idx)
	if err != nil {
		h.logger.Warn("Beefy balance result missing", "chain", chain, "vault", vault, "error", err)
		return nil, false
	}
	if !outcome.Success {
		h.logger.Warn("Beefy balance call unavailable", "chain", chain, "vault", vault)
		return nil, false
	}
	value, err := unpackBalance(outcome.ReturnData)
	if err != nil {
		h.logger.Warn("Beefy balance decode failed", "chain", chain, "vault", vault, "error", err)
		return nil, false
	}
	return value, true
}

func (h *BeefyHandler) readPricePerFullShare(batch port.CallBatcher, idx int, chain, vault string) (*big.Int, bool) {
	outcome, err := batch.Result(idx)
	if err != nil || !outcome.Success {
		h.logger.Warn("getPricePerFullShare unavailable, shares left unconverted", "chain", chain, "vault", vault)
		return nil, false
	}
	value, err := unpackPricePerFullShare(outcome.ReturnData)
	if err != nil {
		h.logger.Warn("getPricePerFullShare decode failed", "chain", chain, "vault", vault, "error", err)
		return nil, false
	}
	return value, true
}

func (h *BeefyHandler) readWant(batch port.CallBatcher, idx int, chain, vault string) (common.Address, bool) {
	outcome, err := batch.Result(idx)
	if err != nil || !outcome.Success {
		h.logger.Warn("want() unavailable", "chain", chain, "vault", vault)
		return common.Address{}, false
	}
	addr, err := unpackWant(outcome.ReturnData)
	if err != nil {
		h.logger.Warn("want() decode failed", "chain", chain, "vault", vault, "error", err)
		return common.Address{}, false
	}
	return addr, true
}
