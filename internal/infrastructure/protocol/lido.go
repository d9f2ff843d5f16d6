package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/pkg/utils"
)

// LidoProtocolName identifies the Lido liquid staking protocol.
const LidoProtocolName = "lido"

const lidoTokenDecimals = 18

var lidoDiscoveryTopics = []common.Hash{
	common.HexToHash("0x96a25c8ce0baabc1fdefd93e9ed25d8e092a3332f3aa9a41722b5697231d1d1a"), // Submitted
}

// LidoHandler tracks stETH and wstETH balances. stETH rebases and maps 1:1 to
// staked ETH; wstETH is unwrapped into stETH using the on-chain exchange rate
// fetched in the same batch as the balances.
type LidoHandler struct {
	logger port.Logger
	addrs  map[string]map[string]common.Address
	chains []string
}

var _ port.ProtocolHandler = (*LidoHandler)(nil)

func NewLidoHandler(addresses map[string]map[string]common.Address, log port.Logger) *LidoHandler {
	return &LidoHandler{
		logger: log,
		addrs:  addresses,
		chains: chainsWithRole(addresses, RoleStETH),
	}
}

func (h *LidoHandler) Name() string { return LidoProtocolName }

func (h *LidoHandler) SupportedChains() []string { return h.chains }

func (h *LidoHandler) DiscoveryTopics() []common.Hash { return lidoDiscoveryTopics }

func (h *LidoHandler) Discover(ctx context.Context, address common.Address, chain string, batch port.CallBatcher) ([]entity.Position, error) {
	roles := h.addrs[chain]
	stethAddr, hasSteth := roles[RoleStETH]
	wstethAddr, hasWsteth := roles[RoleWstETH]
	if !hasSteth && !hasWsteth {
		return nil, nil
	}

	balData, err := balanceOfData(address)
	if err != nil {
		return nil, fmt.Errorf("%s: pack balanceOf: %w", LidoProtocolName, err)
	}

	stethIdx, wstethIdx, rateIdx := -1, -1, -1
	if hasSteth {
		stethIdx = batch.Add(stethAddr, balData)
	}
	if hasWsteth {
		wstethIdx = batch.Add(wstethAddr, balData)
		rateIdx = batch.Add(wstethAddr, stEthPerTokenData())
	}

	if err := batch.Execute(ctx); err != nil {
		return nil, fmt.Errorf("%s: execute batch on %s: %w", LidoProtocolName, chain, err)
	}

	stethToken := entity.Token{
		Address:  stethAddr.Hex(),
		Name:     "Lido Staked Ether",
		Symbol:   "stETH",
		Decimals: lidoTokenDecimals,
	}
	ethToken := entity.Token{
		Address:  entity.ZeroAddress,
		Name:     "Ethereum",
		Symbol:   "ETH",
		Decimals: 18,
	}

	positions := make([]entity.Position, 0, 2)

	if raw, ok := h.readBalance(batch, stethIdx, chain, "stETH"); ok && raw.Sign() > 0 {
		amount := utils.FromBaseUnits(raw, lidoTokenDecimals)
		underlying := amount // rebasing token, 1:1 with staked ETH
		positions = append(positions, entity.Position{
			Protocol:          LidoProtocolName,
			Chain:             chain,
			Kind:              entity.PositionLiquidStaking,
			Token:             stethToken,
			Balance:           amount,
			Underlying:        &ethToken,
			UnderlyingBalance: &underlying,
			Metadata:          map[string]string{"rebasing": "true"},
		})
	}

	if raw, ok := h.readBalance(batch, wstethIdx, chain, "wstETH"); ok && raw.Sign() > 0 {
		amount := utils.FromBaseUnits(raw, lidoTokenDecimals)
		position := entity.Position{
			Protocol: LidoProtocolName,
			Chain:    chain,
			Kind:     entity.PositionLiquidStaking,
			Token: entity.Token{
				Address:  wstethAddr.Hex(),
				Name:     "Wrapped liquid staked Ether 2.0",
				Symbol:   "wstETH",
				Decimals: lidoTokenDecimals,
			},
			Balance:  amount,
			Metadata: map[string]string{"wrapped": "true"},
		}

		// Unwrap into stETH using the exchange rate from the same batch. If
		// the rate is unavailable the position still surfaces and is priced
		// directly as wstETH.
		if rate, ok := h.readRate(batch, rateIdx, chain); ok && hasSteth {
			rateDec := utils.FromBaseUnits(rate, lidoTokenDecimals)
			underlying := amount.Mul(rateDec)
			position.Underlying = &stethToken
			position.UnderlyingBalance = &underlying
			position.Metadata["steth_per_token"] = rateDec.String()
		}
		positions = append(positions, position)
	}

	return positions, nil
}

func (h *LidoHandler) readBalance(batch port.CallBatcher, idx int, chain, label string) (*big.Int, bool) {
	if idx < 0 {
		return nil, false
	}
	outcome, err := batch.Result(idx)
	if err != nil {
		h.logger.Warn("Lido balance result missing", "chain", chain, "token", label, "error", err)
		return nil, false
	}
	if !outcome.Success {
		h.logger.Warn("Lido balance call unavailable", "chain", chain, "token", label)
		return nil, false
	}
	value, err := unpackBalance(outcome.ReturnData)
	if err != nil {
		h.logger.Warn("Lido balance decode failed", "chain", chain, "token", label, "error", err)
		return nil, false
	}
	return value, true
}

func (h *LidoHandler) readRate(batch port.CallBatcher, idx int, chain string) (*big.Int, bool) {
	if idx < 0 {
		return nil, false
	}
	outcome, err := batch.Result(idx)
	if err != nil || !outcome.Success {
		h.logger.Warn("stEthPerToken unavailable, pricing wstETH directly", "chain", chain)
		return nil, false
	}
	value, err := unpackStEthPerToken(outcome.ReturnData)
	if err != nil {
		h.logger.Warn("stEthPerToken decode failed", "chain", chain, "error", err)
		return nil, false
	}
	return value, true
}
