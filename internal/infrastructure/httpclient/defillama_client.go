package httpclient

import (
	"context"

	"portfolio_tracker/internal/entity"
)

// DefiLlamaClient describes the subset of the DefiLlama coins API the
// application layer consumes. Coin identifiers use the "chain:address" form.
type DefiLlamaClient interface {
	GetCurrentPrices(ctx context.Context, coinIDs []string) (map[string]entity.LlamaCoinPrice, error)
}
