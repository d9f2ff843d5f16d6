package entity

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ZeroAddress represents the EVM zero address, used for native asset references.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Token holds the details of a specific token.
type Token struct {
	Address  string `json:"address" yaml:"address"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// TokenRef identifies a token on a specific chain for pricing lookups.
// Addresses are stored lowercased so refs are usable as map keys.
type TokenRef struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

// NewTokenRef builds a TokenRef with the address lowercased.
func NewTokenRef(chain, address string) TokenRef {
	return TokenRef{Chain: chain, Address: strings.ToLower(address)}
}

// PriceQuote is a resolved USD price for a single token.
type PriceQuote struct {
	Chain    string          `json:"chain"`
	Address  string          `json:"address"`
	PriceUSD decimal.Decimal `json:"priceUsd"`
	Source   string          `json:"source"` // "chainlink" or "defillama"
}
