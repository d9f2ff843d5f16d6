package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/infrastructure/httpclient"
	"portfolio_tracker/internal/infrastructure/network/client"
	"portfolio_tracker/internal/pkg/metrics"
)

const (
	priceSourceChainlink = "chainlink"
	priceSourceDefiLlama = "defillama"
)

// priceServiceImpl implements port.PriceService. Tokens with a configured
// Chainlink feed are priced on-chain, everything else goes through DefiLlama
// in one batched request. Tokens neither source can price are left out of the
// result rather than failing the lookup.
type priceServiceImpl struct {
	feeds       port.PriceFeedSource
	llama       httpclient.DefiLlamaClient
	cache       *client.CallCache
	llamaIDs    map[string]string // chain identifier -> DefiLlama chain id
	quoteTTL    time.Duration
	maxParallel int
	logger      port.Logger
}

// NewPriceService creates a new instance of priceServiceImpl.
func NewPriceService(
	provider port.ChainClientProvider,
	feeds port.PriceFeedSource,
	llama httpclient.DefiLlamaClient,
	cache *client.CallCache,
	cfg *config.Config,
	l port.Logger,
) port.PriceService {
	llamaIDs := make(map[string]string)
	for _, descriptor := range provider.Chains() {
		llamaIDs[descriptor.Identifier] = descriptor.LlamaID()
	}

	maxParallel := cfg.Aggregator.MaxConcurrentChains
	if maxParallel <= 0 {
		maxParallel = 4
	}

	s := &priceServiceImpl{
		feeds:       feeds,
		llama:       llama,
		cache:       cache,
		llamaIDs:    llamaIDs,
		quoteTTL:    time.Duration(cfg.Cache.QuoteTTLSeconds) * time.Second,
		maxParallel: maxParallel,
		logger:      l,
	}
	l.Info("PriceService initialized", "chains", len(llamaIDs), "quoteTTL", s.quoteTTL.String())
	return s
}

// GetPrices implements port.PriceService.
func (s *priceServiceImpl) GetPrices(ctx context.Context, refs []entity.TokenRef) (map[entity.TokenRef]entity.PriceQuote, error) {
	result := make(map[entity.TokenRef]entity.PriceQuote, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	pending := make([]entity.TokenRef, 0, len(refs))
	seen := make(map[entity.TokenRef]struct{}, len(refs))
	for _, ref := range refs {
		ref = entity.NewTokenRef(ref.Chain, ref.Address)
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		if quote, ok := s.cachedQuote(ref); ok {
			result[ref] = quote
			continue
		}
		pending = append(pending, ref)
	}
	if len(pending) == 0 {
		return result, nil
	}

	// Feed-backed tokens first. Anything the feeds cannot resolve, including
	// whole chains whose feed read failed, falls through to DefiLlama.
	byChain := make(map[string][]entity.TokenRef)
	fallback := make([]entity.TokenRef, 0, len(pending))
	for _, ref := range pending {
		if s.feeds.HasFeed(ref.Chain, ref.Address) {
			byChain[ref.Chain] = append(byChain[ref.Chain], ref)
		} else {
			fallback = append(fallback, ref)
		}
	}

	var mu sync.Mutex
	if len(byChain) > 0 {
		g, feedCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.maxParallel)
		for chain, chainRefs := range byChain {
			g.Go(func() error {
				resolved, missed := s.readChainFeeds(feedCtx, chain, chainRefs)
				mu.Lock()
				for ref, quote := range resolved {
					result[ref] = quote
				}
				fallback = append(fallback, missed...)
				mu.Unlock()
				return nil
			})
		}
		// Goroutines report failures by falling back, never by error.
		_ = g.Wait()
	}

	if len(fallback) > 0 {
		s.resolveLlamaPrices(ctx, fallback, result)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// readChainFeeds prices one chain's feed-backed tokens. Tokens the feeds did
// not answer for are returned as misses for the off-chain fallback.
func (s *priceServiceImpl) readChainFeeds(ctx context.Context, chain string, refs []entity.TokenRef) (map[entity.TokenRef]entity.PriceQuote, []entity.TokenRef) {
	tokens := make([]string, len(refs))
	for i, ref := range refs {
		tokens[i] = ref.Address
	}

	prices, err := s.feeds.FetchChainPrices(ctx, chain, tokens)
	if err != nil {
		s.logger.Warn("On-chain price feeds unavailable, falling back to DefiLlama",
			"chain", chain, "tokens", len(tokens), "error", err)
		metrics.CollectPriceLookups(priceSourceChainlink, 0, len(refs))
		return nil, refs
	}

	resolved := make(map[entity.TokenRef]entity.PriceQuote, len(prices))
	var missed []entity.TokenRef
	for _, ref := range refs {
		price, ok := prices[ref.Address]
		if !ok {
			missed = append(missed, ref)
			continue
		}
		quote := entity.PriceQuote{
			Chain:    ref.Chain,
			Address:  ref.Address,
			PriceUSD: price,
			Source:   priceSourceChainlink,
		}
		resolved[ref] = quote
		s.storeQuote(ref, quote)
	}
	metrics.CollectPriceLookups(priceSourceChainlink, len(resolved), len(missed))
	return resolved, missed
}

// resolveLlamaPrices fetches the remaining tokens from DefiLlama in one pass
// and merges resolved quotes into out. A failed lookup leaves tokens unpriced.
func (s *priceServiceImpl) resolveLlamaPrices(ctx context.Context, refs []entity.TokenRef, out map[entity.TokenRef]entity.PriceQuote) {
	coinIDs := make([]string, 0, len(refs))
	byCoinID := make(map[string][]entity.TokenRef, len(refs))
	for _, ref := range refs {
		id := s.llamaCoinID(ref)
		if _, ok := byCoinID[id]; !ok {
			coinIDs = append(coinIDs, id)
		}
		byCoinID[id] = append(byCoinID[id], ref)
	}

	prices, err := s.llama.GetCurrentPrices(ctx, coinIDs)
	if err != nil {
		s.logger.Warn("DefiLlama price lookup failed, tokens stay unpriced",
			"tokens", len(refs), "error", err)
		metrics.CollectPriceLookups(priceSourceDefiLlama, 0, len(refs))
		return
	}

	var resolved, missed int
	for id, coinRefs := range byCoinID {
		coin, ok := prices[id]
		if !ok || coin.Price <= 0 {
			s.logger.Debug("No DefiLlama price for coin", "coin", id)
			missed += len(coinRefs)
			continue
		}
		price := decimal.NewFromFloat(coin.Price)
		for _, ref := range coinRefs {
			quote := entity.PriceQuote{
				Chain:    ref.Chain,
				Address:  ref.Address,
				PriceUSD: price,
				Source:   priceSourceDefiLlama,
			}
			out[ref] = quote
			s.storeQuote(ref, quote)
			resolved++
		}
	}
	metrics.CollectPriceLookups(priceSourceDefiLlama, resolved, missed)
}

// llamaCoinID renders a token reference in the "chain:address" form the
// DefiLlama coins API expects, using the chain's DefiLlama identifier.
func (s *priceServiceImpl) llamaCoinID(ref entity.TokenRef) string {
	chainID := s.llamaIDs[ref.Chain]
	if chainID == "" {
		chainID = ref.Chain
	}
	return chainID + ":" + ref.Address
}

func (s *priceServiceImpl) quoteKey(ref entity.TokenRef) string {
	return client.CallKey(ref.Chain, "quote", ref.Address)
}

func (s *priceServiceImpl) cachedQuote(ref entity.TokenRef) (entity.PriceQuote, bool) {
	if s.cache == nil {
		return entity.PriceQuote{}, false
	}
	v, ok := s.cache.Get(client.ClassQuote, s.quoteKey(ref))
	if !ok {
		return entity.PriceQuote{}, false
	}
	quote, ok := v.(entity.PriceQuote)
	return quote, ok
}

func (s *priceServiceImpl) storeQuote(ref entity.TokenRef, quote entity.PriceQuote) {
	if s.cache == nil {
		return
	}
	s.cache.Set(client.ClassQuote, s.quoteKey(ref), quote, s.quoteTTL)
}
