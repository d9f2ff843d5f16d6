package port

import "portfolio_tracker/internal/domain/entity"

// TokenCatalog serves token metadata loaded from the per-chain catalog files.
// Handlers use it to resolve well-known tokens without extra RPC calls.
type TokenCatalog interface {
	// TokenByAddress finds a token by its lowercased or checksummed address.
	TokenByAddress(chain, address string) (entity.Token, bool)

	// TokenBySymbol finds a token by symbol, case-insensitive.
	TokenBySymbol(chain, symbol string) (entity.Token, bool)

	// TokensForChain returns every cataloged token for a chain.
	TokensForChain(chain string) []entity.Token
}
