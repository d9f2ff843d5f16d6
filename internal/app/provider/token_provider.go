package provider

import (
	"strings"
	"sync"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/infrastructure/tokenloader"
)

// tokenCatalogImpl implements port.TokenCatalog over the per-chain catalog
// files. Catalogs load once on first use; a missing directory means an empty
// catalog, not a startup failure.
type tokenCatalogImpl struct {
	tokenDir string
	chains   []entity.ChainDescriptor
	logger   port.Logger

	loadOnce  sync.Once
	byAddress map[string]map[string]entity.Token // chain -> lowercase address
	bySymbol  map[string]map[string]entity.Token // chain -> lowercase symbol
	byChain   map[string][]entity.Token
}

// NewTokenCatalog creates a new TokenCatalog backed by tokenDir.
func NewTokenCatalog(tokenDir string, chains []entity.ChainDescriptor, logger port.Logger) port.TokenCatalog {
	return &tokenCatalogImpl{
		tokenDir: tokenDir,
		chains:   chains,
		logger:   logger,
	}
}

func (p *tokenCatalogImpl) load() {
	p.loadOnce.Do(func() {
		p.byAddress = make(map[string]map[string]entity.Token)
		p.bySymbol = make(map[string]map[string]entity.Token)
		p.byChain = make(map[string][]entity.Token)

		tokens, err := tokenloader.LoadChainTokens(p.tokenDir, p.chains, p.logger.Info, p.logger.Warn)
		if err != nil {
			p.logger.Warn("Token catalog unavailable, continuing without it", "directory", p.tokenDir, "error", err)
			return
		}

		total := 0
		for chain, chainTokens := range tokens {
			addrIndex := make(map[string]entity.Token, len(chainTokens))
			symbolIndex := make(map[string]entity.Token, len(chainTokens))
			for _, token := range chainTokens {
				addrIndex[strings.ToLower(token.Address)] = token
				symbolIndex[strings.ToLower(token.Symbol)] = token
			}
			p.byAddress[chain] = addrIndex
			p.bySymbol[chain] = symbolIndex
			p.byChain[chain] = chainTokens
			total += len(chainTokens)
		}
		p.logger.Info("Token catalog loaded", "chains", len(tokens), "tokens", total)
	})
}

// TokenByAddress implements port.TokenCatalog.
func (p *tokenCatalogImpl) TokenByAddress(chain, address string) (entity.Token, bool) {
	p.load()
	token, ok := p.byAddress[chain][strings.ToLower(address)]
	return token, ok
}

// TokenBySymbol implements port.TokenCatalog.
func (p *tokenCatalogImpl) TokenBySymbol(chain, symbol string) (entity.Token, bool) {
	p.load()
	token, ok := p.bySymbol[chain][strings.ToLower(symbol)]
	return token, ok
}

// TokensForChain implements port.TokenCatalog.
func (p *tokenCatalogImpl) TokensForChain(chain string) []entity.Token {
	p.load()
	return p.byChain[chain]
}
