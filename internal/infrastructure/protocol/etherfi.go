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

// EtherFiProtocolName identifies the ether.fi liquid restaking protocol.
const EtherFiProtocolName = "etherfi"

// The Liquid USD vault accountant quotes its rate in the base asset's
// decimals (USDC, 6).
const liquidVaultRateDecimals = 6

const usdcEthereumAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

var etherfiDiscoveryTopics = []common.Hash{
	common.HexToHash("0xea00f88768a86184a6e515238a549c171769fe7460a011d6fd0bcd48ca078ea4"), // Enter
	common.HexToHash("0xe96d7872363f475d18b2f5390caaa5eaa96b2d38e42c62afe4ac08ebd2b13c3a"), // Deposit
}

// EtherFiHandler tracks eETH and weETH restaking balances plus Liquid USD
// vault shares. All balances, token decimals and exchange rates are read in a
// single batch; weETH unwraps into eETH via getRate and vault shares convert
// to USDC via the accountant's rate.
type EtherFiHandler struct {
	logger port.Logger
	addrs  map[string]map[string]common.Address
	chains []string
}

var _ port.ProtocolHandler = (*EtherFiHandler)(nil)

func NewEtherFiHandler(addresses map[string]map[string]common.Address, log port.Logger) *EtherFiHandler {
	return &EtherFiHandler{
		logger: log,
		addrs:  addresses,
		chains: chainsWithRole(addresses, RoleEETH),
	}
}

func (h *EtherFiHandler) Name() string { return EtherFiProtocolName }

func (h *EtherFiHandler) SupportedChains() []string { return h.chains }

func (h *EtherFiHandler) DiscoveryTopics() []common.Hash { return etherfiDiscoveryTopics }

func (h *EtherFiHandler) Discover(ctx context.Context, address common.Address, chain string, batch port.CallBatcher) ([]entity.Position, error) {
	roles := h.addrs[chain]
	eethAddr, hasEeth := roles[RoleEETH]
	weethAddr, hasWeeth := roles[RoleWeETH]
	vaultAddr, hasVault := roles[RoleLiquidVault]
	accountantAddr, hasAccountant := roles[RoleAccountant]
	if !hasEeth && !hasWeeth && !hasVault {
		return nil, nil
	}

	balData, err := balanceOfData(address)
	if err != nil {
		return nil, fmt.Errorf("%s: pack balanceOf: %w", EtherFiProtocolName, err)
	}

	eethBal, eethDec := -1, -1
	weethBal, weethDec, weethRate := -1, -1, -1
	vaultBal, vaultDec, vaultRate := -1, -1, -1

	if hasEeth {
		eethBal = batch.Add(eethAddr, balData)
		eethDec = batch.Add(eethAddr, decimalsData())
	}
	if hasWeeth {
		weethBal = batch.Add(weethAddr, balData)
		weethDec = batch.Add(weethAddr, decimalsData())
		weethRate = batch.Add(weethAddr, rateData())
	}
	if hasVault {
		vaultBal = batch.Add(vaultAddr, balData)
		vaultDec = batch.Add(vaultAddr, decimalsData())
		if hasAccountant {
			vaultRate = batch.Add(accountantAddr, rateData())
		}
	}

	if err := batch.Execute(ctx); err != nil {
		return nil, fmt.Errorf("%s: execute batch on %s: %w", EtherFiProtocolName, chain, err)
	}

	eethToken := entity.Token{
		Address:  eethAddr.Hex(),
		Name:     "ether.fi Staked ETH",
		Symbol:   "eETH",
		Decimals: h.readDecimals(batch, eethDec, 18),
	}
	ethToken := entity.Token{
		Address:  entity.ZeroAddress,
		Name:     "Ethereum",
		Symbol:   "ETH",
		Decimals: 18,
	}

	positions := make([]entity.Position, 0, 3)

	if raw, ok := h.readBalance(batch, eethBal, chain, "eETH"); ok && raw.Sign() > 0 {
		amount := utils.FromBaseUnits(raw, eethToken.Decimals)
		underlying := amount // rebasing, approximately 1:1 with restaked ETH
		positions = append(positions, entity.Position{
			Protocol:          EtherFiProtocolName,
			Chain:             chain,
			Kind:              entity.PositionRestaking,
			Token:             eethToken,
			Balance:           amount,
			Underlying:        &ethToken,
			UnderlyingBalance: &underlying,
			Metadata:          map[string]string{"eigenlayer_points": "true"},
		})
	}

	if raw, ok := h.readBalance(batch, weethBal, chain, "weETH"); ok && raw.Sign() > 0 {
		decimals := h.readDecimals(batch, weethDec, 18)
		amount := utils.FromBaseUnits(raw, decimals)
		position := entity.Position{
			Protocol: EtherFiProtocolName,
			Chain:    chain,
			Kind:     entity.PositionRestaking,
			Token: entity.Token{
				Address:  weethAddr.Hex(),
				Name:     "Wrapped eETH",
				Symbol:   "weETH",
				Decimals: decimals,
			},
			Balance:  amount,
			Metadata: map[string]string{"wrapped": "true", "eigenlayer_points": "true"},
		}
		if rate, ok := h.readBigInt(batch, weethRate, chain, "weETH getRate"); ok && hasEeth {
			rateDec := utils.FromBaseUnits(rate, 18)
			underlying := amount.Mul(rateDec)
			position.Underlying = &eethToken
			position.UnderlyingBalance = &underlying
			position.Metadata["eeth_per_weeth"] = rateDec.String()
		}
		positions = append(positions, position)
	}

	if raw, ok := h.readBalance(batch, vaultBal, chain, "LiquidVault"); ok && raw.Sign() > 0 {
		decimals := h.readDecimals(batch, vaultDec, liquidVaultRateDecimals)
		shares := utils.FromBaseUnits(raw, decimals)
		usdcToken := entity.Token{
			Address:  usdcEthereumAddress,
			Name:     "USD Coin",
			Symbol:   "USDC",
			Decimals: 6,
		}

		// Shares convert to USDC through the accountant's rate; without it
		// they are assumed 1:1 with the base asset.
		underlying := shares
		metadata := map[string]string{"liquid_vault": "true"}
		if rate, ok := h.readBigInt(batch, vaultRate, chain, "accountant getRate"); ok {
			rateDec := utils.FromBaseUnits(rate, liquidVaultRateDecimals)
			underlying = shares.Mul(rateDec)
			metadata["share_rate"] = rateDec.String()
		}

		positions = append(positions, entity.Position{
			Protocol: EtherFiProtocolName,
			Chain:    chain,
			Kind:     entity.PositionVault,
			Token: entity.Token{
				Address:  vaultAddr.Hex(),
				Name:     "ether.fi Liquid USD",
				Symbol:   "liquidUSD",
				Decimals: decimals,
			},
			Balance:           shares,
			Underlying:        &usdcToken,
			UnderlyingBalance: &underlying,
			Metadata:          metadata,
		})
	}

	return positions, nil
}

func (h *EtherFiHandler) readBalance(batch port.CallBatcher, idx int, chain, label string) (*big.Int, bool) {
	if idx < 0 {
		return nil, false
	}
	outcome, err := batch.Result(idx)
	if err != nil {
		h.logger.Warn("ether.fi balance result missing", "chain", chain, "token", label, "error", err)
		return nil, false
	}
	if !outcome.Success {
		h.logger.Warn("ether.fi balance call unavailable", "chain", chain, "token", label)
		return nil, false
	}
	value, err := unpackBalance(outcome.ReturnData)
	if err != nil {
		h.logger.Warn("ether.fi balance decode failed", "chain", chain, "token", label, "error", err)
		return nil, false
	}
	return value, true
}

func (h *EtherFiHandler) readBigInt(batch port.CallBatcher, idx int, chain, label string) (*big.Int, bool) {
	if idx < 0 {
		return nil, false
	}
	outcome, err := batch.Result(idx)
	if err != nil || !outcome.Success {
		h.logger.Warn("ether.fi rate call unavailable", "chain", chain, "call", label)
		return nil, false
	}
	value, err := unpackRate(outcome.ReturnData)
	if err != nil {
		h.logger.Warn("ether.fi rate decode failed", "chain", chain, "call", label, "error", err)
		return nil, false
	}
	return value, true
}

// readDecimals falls back to the given default when the decimals call failed,
// matching how tokens without a decimals view are treated elsewhere.
func (h *EtherFiHandler) readDecimals(batch port.CallBatcher, idx int, fallback uint8) uint8 {
	if idx < 0 {
		return fallback
	}
	outcome, err := batch.Result(idx)
	if err != nil || !outcome.Success {
		return fallback
	}
	decimals, err := unpackDecimals(outcome.ReturnData)
	if err != nil {
		return fallback
	}
	return decimals
}
