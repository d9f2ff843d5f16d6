package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
	llama_types "portfolio_tracker/internal/entity"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func testConfig() *config.Config {
	return &config.Config{
		Aggregator: config.AggregatorConfig{
			MaxConcurrentChains:   2,
			ScanTimeoutSeconds:    5,
			PricingTimeoutSeconds: 5,
		},
		Cache: config.CacheConfig{
			CleanupIntervalMinutes: 10,
			BalanceTTLSeconds:      30,
			MetadataTTLMinutes:     60,
			QuoteTTLSeconds:        60,
		},
	}
}

// fakeChainProvider serves canned descriptors and per-chain fake clients.
type fakeChainProvider struct {
	descriptors []entity.ChainDescriptor
	clients     map[string]port.ChainClient
	batchers    map[string]func() port.CallBatcher
}

func (f *fakeChainProvider) GetClient(chain string) (port.ChainClient, error) {
	if c, ok := f.clients[chain]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("no client for chain %s", chain)
}

func (f *fakeChainProvider) NewBatcher(chain string) (port.CallBatcher, error) {
	if f.batchers == nil {
		return &nopBatcher{}, nil
	}
	if factory, ok := f.batchers[chain]; ok {
		return factory(), nil
	}
	return nil, fmt.Errorf("no batcher for chain %s", chain)
}

func (f *fakeChainProvider) Chains() []entity.ChainDescriptor {
	return f.descriptors
}

// fakeFeedSource prices tokens from a fixed book. Chains listed in errs fail
// every fetch while still advertising their feeds.
type fakeFeedSource struct {
	mu    sync.Mutex
	feeds map[string]map[string]decimal.Decimal // chain -> lowercase token -> price
	errs  map[string]error
	calls map[string][][]string
}

func (f *fakeFeedSource) HasFeed(chain, token string) bool {
	chainFeeds, ok := f.feeds[chain]
	if !ok {
		return false
	}
	_, ok = chainFeeds[strings.ToLower(token)]
	return ok
}

func (f *fakeFeedSource) FetchChainPrices(_ context.Context, chain string, tokens []string) (map[string]decimal.Decimal, error) {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string][][]string)
	}
	f.calls[chain] = append(f.calls[chain], sorted)
	f.mu.Unlock()

	if err := f.errs[chain]; err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal)
	for _, token := range tokens {
		if price, ok := f.feeds[chain][strings.ToLower(token)]; ok {
			out[token] = price
		}
	}
	return out, nil
}

func (f *fakeFeedSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, batches := range f.calls {
		total += len(batches)
	}
	return total
}

// fakeLlamaClient answers price lookups from a fixed book and records every
// requested coin id batch.
type fakeLlamaClient struct {
	mu     sync.Mutex
	prices map[string]llama_types.LlamaCoinPrice
	err    error
	calls  [][]string
}

func (f *fakeLlamaClient) GetCurrentPrices(_ context.Context, coinIDs []string) (map[string]llama_types.LlamaCoinPrice, error) {
	sorted := append([]string(nil), coinIDs...)
	sort.Strings(sorted)
	f.mu.Lock()
	f.calls = append(f.calls, sorted)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]llama_types.LlamaCoinPrice)
	for _, id := range coinIDs {
		if price, ok := f.prices[id]; ok {
			out[id] = price
		}
	}
	return out, nil
}

func (f *fakeLlamaClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func llamaPrice(price float64) llama_types.LlamaCoinPrice {
	return llama_types.LlamaCoinPrice{Price: price, Confidence: 0.99}
}

func ref(chain, address string) entity.TokenRef {
	return entity.NewTokenRef(chain, address)
}

var (
	wethAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2").Hex()
	usdcAddress = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48").Hex()
	daiAddress  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F").Hex()
)

// nopBatcher satisfies port.CallBatcher for handlers that ignore batching.
type nopBatcher struct{ n int }

func (b *nopBatcher) Add(common.Address, []byte) int { b.n++; return b.n - 1 }

func (b *nopBatcher) Len() int { return b.n }

func (b *nopBatcher) Execute(context.Context) error { return nil }
func (b *nopBatcher) Result(int) (entity.CallOutcome, error) {
	return entity.CallOutcome{}, nil
}

// fakeChainClient carries a descriptor and nothing else; aggregator tests
// route all chain traffic through the fake scanner and handlers.
type fakeChainClient struct {
	descriptor entity.ChainDescriptor
}

func (c *fakeChainClient) Descriptor() entity.ChainDescriptor { return c.descriptor }

func (c *fakeChainClient) BlockNumber(context.Context) (uint64, error) {
	return 0, fmt.Errorf("not implemented")
}

func (c *fakeChainClient) CallContract(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (c *fakeChainClient) CallContractCached(context.Context, common.Address, []byte, time.Duration) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (c *fakeChainClient) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, fmt.Errorf("not implemented")
}

func (c *fakeChainClient) BatchFilterLogs(context.Context, []ethereum.FilterQuery) ([]port.LogBatch, error) {
	return nil, fmt.Errorf("not implemented")
}

// fakeScanner detects every offered target unless a chain has an override or
// a scripted error.
type fakeScanner struct {
	mu         sync.Mutex
	activities map[string]entity.ChainActivity
	errs       map[string]error
	scans      []string
}

func (f *fakeScanner) Scan(_ context.Context, client port.ChainClient, _ common.Address, targets []port.ScanTarget) (entity.ChainActivity, error) {
	chain := client.Descriptor().Identifier
	f.mu.Lock()
	f.scans = append(f.scans, chain)
	f.mu.Unlock()

	if err := f.errs[chain]; err != nil {
		return entity.ChainActivity{}, err
	}
	if activity, ok := f.activities[chain]; ok {
		return activity, nil
	}
	activity := entity.ChainActivity{Chain: chain, FromBlock: 100, ToBlock: 200}
	for _, target := range targets {
		activity.Detected = append(activity.Detected, target.Protocol)
	}
	return activity, nil
}

func (f *fakeScanner) scannedChains() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := append([]string(nil), f.scans...)
	sort.Strings(sorted)
	return sorted
}

// fakeHandler replays scripted positions per chain and records where it ran.
type fakeHandler struct {
	name     string
	chains   []string
	topics   []common.Hash
	discover func(ctx context.Context, chain string) ([]entity.Position, error)

	mu    sync.Mutex
	calls []string
}

func (h *fakeHandler) Name() string { return h.name }

func (h *fakeHandler) SupportedChains() []string { return h.chains }

func (h *fakeHandler) DiscoveryTopics() []common.Hash { return h.topics }

func (h *fakeHandler) Discover(ctx context.Context, _ common.Address, chain string, _ port.CallBatcher) ([]entity.Position, error) {
	h.mu.Lock()
	h.calls = append(h.calls, chain)
	h.mu.Unlock()
	if h.discover != nil {
		return h.discover(ctx, chain)
	}
	return nil, nil
}

func (h *fakeHandler) discoveredOn() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	sorted := append([]string(nil), h.calls...)
	sort.Strings(sorted)
	return sorted
}

// fakeRegistry serves fake handlers in registration order.
type fakeRegistry struct {
	handlers []*fakeHandler
	probe    map[string]bool
}

func (r *fakeRegistry) HandlersFor(chain string) []port.ProtocolHandler {
	var out []port.ProtocolHandler
	for _, h := range r.handlers {
		if handlerSupports(h, chain) {
			out = append(out, h)
		}
	}
	return out
}

func (r *fakeRegistry) DiscoveryTargets(chain string) []port.ScanTarget {
	var out []port.ScanTarget
	for _, h := range r.handlers {
		if handlerSupports(h, chain) {
			out = append(out, port.ScanTarget{Protocol: h.name, Topics: h.topics})
		}
	}
	return out
}

func (r *fakeRegistry) Get(name string) (port.ProtocolHandler, bool) {
	for _, h := range r.handlers {
		if h.name == name {
			return h, true
		}
	}
	return nil, false
}

func (r *fakeRegistry) Protocols() []entity.ProtocolInfo {
	out := make([]entity.ProtocolInfo, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, entity.ProtocolInfo{Name: h.name, Chains: h.chains, AlwaysProbe: r.probe[h.name]})
	}
	return out
}

func handlerSupports(h *fakeHandler, chain string) bool {
	for _, c := range h.chains {
		if c == chain {
			return true
		}
	}
	return false
}

// fakePriceService serves quotes from a fixed book keyed by normalized refs.
type fakePriceService struct {
	mu       sync.Mutex
	prices   map[entity.TokenRef]decimal.Decimal
	err      error
	requests [][]entity.TokenRef
}

func (f *fakePriceService) GetPrices(_ context.Context, refs []entity.TokenRef) (map[entity.TokenRef]entity.PriceQuote, error) {
	f.mu.Lock()
	f.requests = append(f.requests, append([]entity.TokenRef(nil), refs...))
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	out := make(map[entity.TokenRef]entity.PriceQuote)
	for _, r := range refs {
		norm := entity.NewTokenRef(r.Chain, r.Address)
		if price, ok := f.prices[norm]; ok {
			out[norm] = entity.PriceQuote{Chain: norm.Chain, Address: norm.Address, PriceUSD: price, Source: "chainlink"}
		}
	}
	return out, nil
}

func (f *fakePriceService) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
