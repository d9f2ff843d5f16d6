package protocol

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/pkg/utils"
)

// AaveProtocolName identifies the Aave v3 lending protocol.
const AaveProtocolName = "aave_v3"

// Aave v3 reports account aggregates in its USD base currency with 8
// decimals; the health factor is WAD scaled.
const (
	aaveBaseDecimals = 8
	wadDecimals      = 18
)

var aaveDiscoveryTopics = []common.Hash{
	common.HexToHash("0x2b627736bca15cd5381dcf80b0bf11fd197d01a037c52b927a881a10fb73ba61"), // Supply
	common.HexToHash("0xb3d084820fb1a9decffb176436bd02558d15fac9b0ddfed8c465bc7359d7dce0"), // Borrow
}

// AaveHandler reads a wallet's aggregate lending account from the Aave v3
// pool via getUserAccountData. Because the pool denominates the aggregates in
// USD, these positions carry their USD value straight from the contract
// instead of going through the pricing pipeline.
type AaveHandler struct {
	logger port.Logger
	pools  map[string]common.Address
	chains []string
}

var _ port.ProtocolHandler = (*AaveHandler)(nil)

// NewAaveHandler creates the handler from a resolved address book.
func NewAaveHandler(addresses map[string]map[string]common.Address, log port.Logger) *AaveHandler {
	pools := make(map[string]common.Address)
	for chain, roles := range addresses {
		if pool, ok := roles[RoleAavePool]; ok {
			pools[chain] = pool
		}
	}
	return &AaveHandler{
		logger: log,
		pools:  pools,
		chains: chainsWithRole(addresses, RoleAavePool),
	}
}

func (h *AaveHandler) Name() string { return AaveProtocolName }

func (h *AaveHandler) SupportedChains() []string { return h.chains }

func (h *AaveHandler) DiscoveryTopics() []common.Hash { return aaveDiscoveryTopics }

// Discover builds at most two positions: one for total collateral and one for
// total debt. The debt position carries a negative USD value so portfolio
// totals reflect the owed amount. A wallet with neither collateral nor debt
// yields no positions.
func (h *AaveHandler) Discover(ctx context.Context, address common.Address, chain string, batch port.CallBatcher) ([]entity.Position, error) {
	pool, ok := h.pools[chain]
	if !ok {
		return nil, nil
	}

	callData, err := userAccountDataCalldata(address)
	if err != nil {
		return nil, fmt.Errorf("%s: pack getUserAccountData: %w", AaveProtocolName, err)
	}

	idx := batch.Add(pool, callData)
	if err := batch.Execute(ctx); err != nil {
		return nil, fmt.Errorf("%s: execute batch on %s: %w", AaveProtocolName, chain, err)
	}

	outcome, err := batch.Result(idx)
	if err != nil {
		return nil, err
	}
	if !outcome.Success {
		return nil, fmt.Errorf("%s: getUserAccountData unavailable on %s", AaveProtocolName, chain)
	}

	account, err := unpackUserAccountData(outcome.ReturnData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", AaveProtocolName, err)
	}

	collateral := utils.FromBaseUnits(account.TotalCollateralBase, aaveBaseDecimals)
	debt := utils.FromBaseUnits(account.TotalDebtBase, aaveBaseDecimals)
	if collateral.IsZero() && debt.IsZero() {
		return []entity.Position{}, nil
	}

	// Without debt the pool reports the health factor as max uint256, which
	// means "infinite" and is reported as absent.
	var healthFactor *decimal.Decimal
	if debt.Sign() > 0 {
		hf := utils.FromBaseUnits(account.HealthFactor, wadDecimals)
		healthFactor = &hf
	}

	metadata := map[string]string{
		"ltv_bps":                   account.LTV.String(),
		"liquidation_threshold_bps": account.CurrentLiquidationThreshold.String(),
		"available_borrows_usd":     utils.FromBaseUnits(account.AvailableBorrowsBase, aaveBaseDecimals).String(),
	}

	positions := make([]entity.Position, 0, 2)
	if collateral.Sign() > 0 {
		value := collateral
		positions = append(positions, entity.Position{
			Protocol: AaveProtocolName,
			Chain:    chain,
			Kind:     entity.PositionLendingSupply,
			Token: entity.Token{
				Name:     "Aave v3 collateral (USD base)",
				Symbol:   "USD",
				Decimals: aaveBaseDecimals,
			},
			Balance:      collateral,
			USDValue:     &value,
			HealthFactor: healthFactor,
			Metadata:     metadata,
		})
	}
	if debt.Sign() > 0 {
		value := debt.Neg()
		positions = append(positions, entity.Position{
			Protocol: AaveProtocolName,
			Chain:    chain,
			Kind:     entity.PositionLendingBorrow,
			Token: entity.Token{
				Name:     "Aave v3 debt (USD base)",
				Symbol:   "USD",
				Decimals: aaveBaseDecimals,
			},
			Balance:      debt,
			USDValue:     &value,
			HealthFactor: healthFactor,
			Metadata:     metadata,
		})
	}

	h.logger.Debug("Aave account discovered",
		"chain", chain, "collateral", collateral.String(), "debt", debt.String())
	return positions, nil
}
