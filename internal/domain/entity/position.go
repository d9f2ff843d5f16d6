package entity

import "github.com/shopspring/decimal"

// PositionKind classifies what a protocol position represents.
type PositionKind string

const (
	// PositionLendingSupply is collateral supplied to a lending market.
	PositionLendingSupply PositionKind = "lending_supply"
	// PositionLendingBorrow is outstanding debt against a lending market.
	PositionLendingBorrow PositionKind = "lending_borrow"
	// PositionLiquidStaking is a liquid staking receipt token position.
	PositionLiquidStaking PositionKind = "liquid_staking"
	// PositionVault is a yield vault share position.
	PositionVault PositionKind = "vault"
	// PositionRestaking is a restaking receipt token position.
	PositionRestaking PositionKind = "restaking"
)

// Position is a single holding discovered in a protocol for one wallet on one chain.
// Balance is expressed in whole token units, already adjusted for decimals.
type Position struct {
	Protocol string       `json:"protocol"`
	Chain    string       `json:"chain"`
	Kind     PositionKind `json:"kind"`

	Token   Token           `json:"token"`
	Balance decimal.Decimal `json:"balance"`

	// Underlying describes the asset the position resolves to (e.g. the ETH behind
	// stETH, or a vault's want token). UnderlyingBalance is kept unrounded so
	// valuation happens in a single step.
	Underlying        *Token           `json:"underlying,omitempty"`
	UnderlyingBalance *decimal.Decimal `json:"underlyingBalance,omitempty"`

	// USDValue is nil when no price could be resolved for the position.
	// Borrow positions carry a negative value so plain summation nets a portfolio.
	USDValue *decimal.Decimal `json:"usdValue"`

	APY          *decimal.Decimal `json:"apy,omitempty"`
	HealthFactor *decimal.Decimal `json:"healthFactor,omitempty"`

	Rewards  []Reward          `json:"rewards,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Reward is an unclaimed incentive attached to a position.
type Reward struct {
	Token    Token            `json:"token"`
	Amount   decimal.Decimal  `json:"amount"`
	USDValue *decimal.Decimal `json:"usdValue"`
}
