package entity

import "github.com/shopspring/decimal"

// ChainFailure records why a whole chain produced no positions.
// An empty FailedChains list together with zero positions means the wallet
// genuinely holds nothing, which is a different outcome from a failed scan.
type ChainFailure struct {
	Chain  string `json:"chain"`
	Stage  string `json:"stage"` // "connect", "scan", "discover" or "deadline"
	Reason string `json:"reason"`
}

// PortfolioSummary is the aggregated result of scanning one wallet across chains.
type PortfolioSummary struct {
	WalletAddress string     `json:"walletAddress"`
	Positions     []Position `json:"positions"`

	TotalValueUSD   decimal.Decimal            `json:"totalValueUsd"`
	ValueByChain    map[string]decimal.Decimal `json:"valueByChain"`
	ValueByProtocol map[string]decimal.Decimal `json:"valueByProtocol"`
	TotalRewardsUSD decimal.Decimal            `json:"totalRewardsUsd"`

	// UnpricedPositions counts positions carried with a nil USD value.
	UnpricedPositions int `json:"unpricedPositions"`

	Activity     []ChainActivity `json:"activity,omitempty"`
	FailedChains []ChainFailure  `json:"failedChains,omitempty"`
}

// ScannedChains returns the identifiers of chains that completed, in position order.
func (s *PortfolioSummary) ScannedChains() []string {
	seen := make(map[string]struct{})
	var chains []string
	for _, act := range s.Activity {
		if _, ok := seen[act.Chain]; ok {
			continue
		}
		seen[act.Chain] = struct{}{}
		chains = append(chains, act.Chain)
	}
	return chains
}
