package port

import (
	"context"

	"github.com/shopspring/decimal"

	"portfolio_tracker/internal/domain/entity"
)

// PriceService resolves USD prices for tokens across chains. Tokens with a
// configured on-chain feed are read from the feed, the rest fall back to a
// batched off-chain lookup. A token that cannot be priced anywhere is simply
// absent from the result; the service never fails the whole request over a
// single token.
type PriceService interface {
	GetPrices(ctx context.Context, refs []entity.TokenRef) (map[entity.TokenRef]entity.PriceQuote, error)
}

// PriceFeedSource reads USD prices from on-chain aggregator feeds for tokens
// that have one configured. Tokens without a feed are outside its scope.
type PriceFeedSource interface {
	// HasFeed reports whether the token has a feed on the chain.
	HasFeed(chain, token string) bool

	// FetchChainPrices reads the feeds for the given tokens in one batch.
	// Tokens whose feed cannot be read are absent from the result.
	FetchChainPrices(ctx context.Context, chain string, tokens []string) (map[string]decimal.Decimal, error)
}
