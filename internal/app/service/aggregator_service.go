package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/pkg/metrics"
)

// positionAggregatorImpl implements port.PositionAggregator. Chains are
// scanned concurrently behind a semaphore; within one chain the activity scan
// runs first and protocol handlers run sequentially, each with a fresh call
// batch. A chain that fails at any stage is recorded in the summary instead of
// failing the scan, so a wallet that holds nothing and a wallet whose chain
// was unreachable stay distinguishable.
type positionAggregatorImpl struct {
	provider port.ChainClientProvider
	registry port.HandlerRegistry
	scanner  port.ActivityScanner
	prices   port.PriceService
	logger   port.Logger

	maxConcurrentChains int
	scanTimeout         time.Duration
	pricingTimeout      time.Duration
}

// NewPositionAggregator creates a new instance of positionAggregatorImpl.
func NewPositionAggregator(
	provider port.ChainClientProvider,
	registry port.HandlerRegistry,
	scanner port.ActivityScanner,
	prices port.PriceService,
	cfg *config.Config,
	l port.Logger,
) port.PositionAggregator {
	maxConcurrent := cfg.Aggregator.MaxConcurrentChains
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &positionAggregatorImpl{
		provider:            provider,
		registry:            registry,
		scanner:             scanner,
		prices:              prices,
		logger:              l,
		maxConcurrentChains: maxConcurrent,
		scanTimeout:         time.Duration(cfg.Aggregator.ScanTimeoutSeconds) * time.Second,
		pricingTimeout:      time.Duration(cfg.Aggregator.PricingTimeoutSeconds) * time.Second,
	}
}

// chainResult carries the outcome of scanning one chain. Exactly one of
// failure or the data fields is meaningful.
type chainResult struct {
	chain     string
	positions []entity.Position
	activity  *entity.ChainActivity
	failure   *entity.ChainFailure
}

// ScanAddress implements port.PositionAggregator.
func (s *positionAggregatorImpl) ScanAddress(ctx context.Context, address string, chains []string) (*entity.PortfolioSummary, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidAddress, address)
	}
	wallet := common.HexToAddress(address)

	selected, err := s.selectChains(chains)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Scanning wallet", "address", wallet.Hex(), "chains", len(selected))

	scanCtx, cancelScan := context.WithTimeout(ctx, s.scanTimeout)
	defer cancelScan()

	results := make(chan chainResult, len(selected))
	sem := make(chan struct{}, s.maxConcurrentChains)
	var wg sync.WaitGroup

	for _, descriptor := range selected {
		wg.Add(1)
		sem <- struct{}{}
		go func(d entity.ChainDescriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- s.scanChain(scanCtx, wallet, d)
		}(descriptor)
	}

	wg.Wait()
	close(results)

	byChain := make(map[string]chainResult, len(selected))
	for res := range results {
		byChain[res.chain] = res
	}

	summary := &entity.PortfolioSummary{
		WalletAddress: wallet.Hex(),
		Positions:     []entity.Position{},
	}

	// Merge in config chain order so output is stable regardless of which
	// goroutine finished first.
	var failures []entity.ChainFailure
	for _, d := range selected {
		res, ok := byChain[d.Identifier]
		if !ok {
			continue
		}
		if res.failure != nil {
			failures = append(failures, *res.failure)
			continue
		}
		summary.Positions = append(summary.Positions, res.positions...)
		if res.activity != nil {
			summary.Activity = append(summary.Activity, *res.activity)
		}
	}
	summary.FailedChains = failures

	if len(failures) == len(selected) {
		s.logger.Error("All chains failed for wallet", "address", wallet.Hex(), "chains", len(selected))
		return nil, &entity.AllChainsFailedError{WalletAddress: wallet.Hex(), Failures: failures}
	}

	priceCtx, cancelPricing := context.WithTimeout(ctx, s.pricingTimeout)
	defer cancelPricing()
	s.valuePositions(priceCtx, summary)

	s.summarize(summary)

	s.logger.Info("Wallet scan finished",
		"address", wallet.Hex(),
		"positions", len(summary.Positions),
		"totalValueUSD", summary.TotalValueUSD.String(),
		"unpriced", summary.UnpricedPositions,
		"failedChains", len(summary.FailedChains))
	return summary, nil
}

// selectChains resolves the requested chain names against the configured set,
// keeping config order. An empty request means every configured chain.
func (s *positionAggregatorImpl) selectChains(requested []string) ([]entity.ChainDescriptor, error) {
	configured := s.provider.Chains()
	if len(configured) == 0 {
		return nil, entity.ErrNoChainsConfigured
	}
	if len(requested) == 0 {
		return configured, nil
	}

	known := make(map[string]struct{}, len(configured))
	for _, d := range configured {
		known[d.Identifier] = struct{}{}
	}

	wanted := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%w: %s", entity.ErrUnknownChain, name)
		}
		wanted[name] = struct{}{}
	}
	if len(wanted) == 0 {
		return configured, nil
	}

	selected := make([]entity.ChainDescriptor, 0, len(wanted))
	for _, d := range configured {
		if _, ok := wanted[d.Identifier]; ok {
			selected = append(selected, d)
		}
	}
	return selected, nil
}

// scanChain runs the activity scan and protocol discovery for one chain.
func (s *positionAggregatorImpl) scanChain(ctx context.Context, wallet common.Address, d entity.ChainDescriptor) chainResult {
	start := time.Now()
	chain := d.Identifier
	s.logger.Debug("Scanning chain", "chain", chain, "address", wallet.Hex())

	client, err := s.provider.GetClient(chain)
	if err != nil {
		return s.chainFailure(chain, "connect", err, start)
	}

	activity, err := s.scanner.Scan(ctx, client, wallet, s.registry.DiscoveryTargets(chain))
	if err != nil {
		return s.chainFailure(chain, "scan", err, start)
	}

	probe := s.alwaysProbeSet()
	var positions []entity.Position
	for _, handler := range s.registry.HandlersFor(chain) {
		name := handler.Name()
		if !activity.Has(name) {
			if _, always := probe[name]; !always {
				continue
			}
		}

		batch, err := s.provider.NewBatcher(chain)
		if err != nil {
			return s.chainFailure(chain, "discover", err, start)
		}

		discovered, err := handler.Discover(ctx, wallet, chain, batch)
		if err != nil {
			// An interrupted chain must not pass off partial data as complete.
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				return s.chainFailure(chain, "discover", err, start)
			}
			s.logger.Warn("Protocol discovery failed, skipping protocol on chain",
				"chain", chain, "protocol", name, "error", err)
			continue
		}
		positions = append(positions, discovered...)
	}

	metrics.CollectChainScan(chain, nil, start)
	s.logger.Debug("Chain scan complete",
		"chain", chain,
		"detected", len(activity.Detected),
		"positions", len(positions),
		"took", time.Since(start).String())
	return chainResult{chain: chain, positions: positions, activity: &activity}
}

func (s *positionAggregatorImpl) chainFailure(chain, stage string, err error, start time.Time) chainResult {
	if errors.Is(err, context.DeadlineExceeded) {
		stage = "deadline"
	}
	s.logger.Error("Chain scan failed", "chain", chain, "stage", stage, "error", err)
	metrics.CollectChainScan(chain, err, start)
	return chainResult{
		chain:   chain,
		failure: &entity.ChainFailure{Chain: chain, Stage: stage, Reason: err.Error()},
	}
}

func (s *positionAggregatorImpl) alwaysProbeSet() map[string]struct{} {
	probe := make(map[string]struct{})
	for _, info := range s.registry.Protocols() {
		if info.AlwaysProbe {
			probe[info.Name] = struct{}{}
		}
	}
	return probe
}

// valuePositions resolves USD values for every position and reward that does
// not already carry one. Pricing is best effort: a token without a resolvable
// price leaves its position with a nil USD value.
func (s *positionAggregatorImpl) valuePositions(ctx context.Context, summary *entity.PortfolioSummary) {
	refs := collectPriceRefs(summary.Positions)
	if len(refs) == 0 {
		return
	}

	quotes, err := s.prices.GetPrices(ctx, refs)
	if err != nil {
		s.logger.Warn("Pricing pass incomplete, some positions stay unpriced",
			"requested", len(refs), "resolved", len(quotes), "error", err)
	}

	for i := range summary.Positions {
		s.valuePosition(&summary.Positions[i], quotes)
	}
}

// collectPriceRefs gathers the tokens a pricing pass must resolve. Positions
// already valued at the source are skipped, their rewards are not.
func collectPriceRefs(positions []entity.Position) []entity.TokenRef {
	var refs []entity.TokenRef
	for _, p := range positions {
		if p.USDValue == nil {
			if p.Underlying != nil && p.UnderlyingBalance != nil && p.Underlying.Address != "" {
				refs = append(refs, entity.NewTokenRef(p.Chain, p.Underlying.Address))
			}
			if p.Token.Address != "" {
				refs = append(refs, entity.NewTokenRef(p.Chain, p.Token.Address))
			}
		}
		for _, r := range p.Rewards {
			if r.USDValue == nil && r.Token.Address != "" {
				refs = append(refs, entity.NewTokenRef(p.Chain, r.Token.Address))
			}
		}
	}
	return refs
}

func (s *positionAggregatorImpl) valuePosition(p *entity.Position, quotes map[entity.TokenRef]entity.PriceQuote) {
	if p.USDValue == nil {
		if value, ok := positionValue(p, quotes); ok {
			p.USDValue = &value
		} else {
			s.logger.Debug("No price resolved for position",
				"chain", p.Chain, "protocol", p.Protocol, "token", p.Token.Symbol)
		}
	}

	for i := range p.Rewards {
		r := &p.Rewards[i]
		if r.USDValue != nil || r.Token.Address == "" {
			continue
		}
		if quote, ok := quotes[entity.NewTokenRef(p.Chain, r.Token.Address)]; ok {
			value := r.Amount.Mul(quote.PriceUSD).Round(int32(r.Token.Decimals))
			r.USDValue = &value
		}
	}
}

// positionValue prices one position. The underlying asset wins when both it
// and the position token are priceable, so receipt tokens are valued through
// what they redeem for; rounding happens once, at the valued token's decimals.
func positionValue(p *entity.Position, quotes map[entity.TokenRef]entity.PriceQuote) (decimal.Decimal, bool) {
	if p.Underlying != nil && p.UnderlyingBalance != nil && p.Underlying.Address != "" {
		if quote, ok := quotes[entity.NewTokenRef(p.Chain, p.Underlying.Address)]; ok {
			return p.UnderlyingBalance.Mul(quote.PriceUSD).Round(int32(p.Underlying.Decimals)), true
		}
	}
	if p.Token.Address != "" {
		if quote, ok := quotes[entity.NewTokenRef(p.Chain, p.Token.Address)]; ok {
			return p.Balance.Mul(quote.PriceUSD).Round(int32(p.Token.Decimals)), true
		}
	}
	return decimal.Decimal{}, false
}

// summarize fills the aggregate totals from the final position list.
func (s *positionAggregatorImpl) summarize(summary *entity.PortfolioSummary) {
	total := decimal.Zero
	rewardsTotal := decimal.Zero
	byChain := make(map[string]decimal.Decimal)
	byProtocol := make(map[string]decimal.Decimal)
	unpriced := 0

	for _, p := range summary.Positions {
		if p.USDValue != nil {
			total = total.Add(*p.USDValue)
			byChain[p.Chain] = byChain[p.Chain].Add(*p.USDValue)
			byProtocol[p.Protocol] = byProtocol[p.Protocol].Add(*p.USDValue)
		} else {
			unpriced++
		}
		for _, r := range p.Rewards {
			if r.USDValue != nil {
				rewardsTotal = rewardsTotal.Add(*r.USDValue)
			}
		}
	}

	summary.TotalValueUSD = total
	summary.TotalRewardsUSD = rewardsTotal
	summary.ValueByChain = byChain
	summary.ValueByProtocol = byProtocol
	summary.UnpricedPositions = unpriced
}
