package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/infrastructure/network/client"
	"portfolio_tracker/internal/pkg/utils"
)

const feedABIJSON = `[
	{"inputs":[],"name":"latestAnswer","outputs":[{"internalType":"int256","name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var (
	feedABIOnce sync.Once
	feedABI     abi.ABI
)

func initFeedABI() {
	feedABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(feedABIJSON))
		if err != nil {
			panic(fmt.Sprintf("failed to parse price feed ABI: %v", err))
		}
		feedABI = parsed
	})
}

func latestAnswerData() []byte {
	initFeedABI()
	return feedABI.Methods["latestAnswer"].ID
}

func feedDecimalsData() []byte {
	initFeedABI()
	return feedABI.Methods["decimals"].ID
}

func unpackLatestAnswer(data []byte) (*big.Int, error) {
	initFeedABI()
	out, err := feedABI.Unpack("latestAnswer", data)
	if err != nil {
		return nil, fmt.Errorf("unpack latestAnswer: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack latestAnswer: expected 1 output, got %d", len(out))
	}
	answer, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack latestAnswer: unexpected output type %T", out[0])
	}
	return answer, nil
}

func unpackFeedDecimals(data []byte) (uint8, error) {
	initFeedABI()
	out, err := feedABI.Unpack("decimals", data)
	if err != nil {
		return 0, fmt.Errorf("unpack feed decimals: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("unpack feed decimals: expected 1 output, got %d", len(out))
	}
	value, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack feed decimals: unexpected output type %T", out[0])
	}
	return value, nil
}

// Builtin Chainlink USD aggregators, token address (lowercase) to feed. The
// zero address keys the chain's native coin; wrapped native shares its feed.
var builtinFeeds = map[string]map[string]string{
	"ethereum": {
		entity.ZeroAddress:                           "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", // ETH/USD
		"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", // WETH -> ETH/USD
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6", // USDC/USD
		"0xae7ab96520de3a18e5e111b5eaab095312d7fe84": "0xCfE54B5cD566aB89272946F602D76Ea879CAb4a8", // stETH/USD
	},
	"base": {
		entity.ZeroAddress:                           "0x71041dddad3595F9CEd3DcCFBe3D1F4b0a16Bb70", // ETH/USD
		"0x4200000000000000000000000000000000000006": "0x71041dddad3595F9CEd3DcCFBe3D1F4b0a16Bb70", // WETH -> ETH/USD
		"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913": "0x7e860098F58bBFC8648a4311b374B1D669a2bc6B", // USDC/USD
	},
}

// FeedReader resolves token prices from Chainlink aggregators. All answers
// for one chain are fetched in a single multicall; feed decimals are fetched
// once and cached because they never change for a deployed aggregator.
type FeedReader struct {
	provider port.ChainClientProvider
	feeds    map[string]map[string]common.Address
	cache    *client.CallCache
	metaTTL  time.Duration
	logger   port.Logger
}

var _ port.PriceFeedSource = (*FeedReader)(nil)

// NewFeedReader merges configured feed overrides into the builtin book. An
// override with an empty feed address removes the builtin entry.
func NewFeedReader(provider port.ChainClientProvider, overrides map[string]map[string]string, cache *client.CallCache, metaTTL time.Duration, log port.Logger) *FeedReader {
	feeds := make(map[string]map[string]common.Address)
	for chain, tokens := range builtinFeeds {
		dst := make(map[string]common.Address, len(tokens))
		for token, feed := range tokens {
			dst[strings.ToLower(token)] = common.HexToAddress(feed)
		}
		feeds[chain] = dst
	}
	for chain, tokens := range overrides {
		dst, ok := feeds[chain]
		if !ok {
			dst = make(map[string]common.Address, len(tokens))
			feeds[chain] = dst
		}
		for token, feed := range tokens {
			key := strings.ToLower(token)
			if feed == "" {
				delete(dst, key)
				continue
			}
			dst[key] = common.HexToAddress(feed)
		}
	}

	return &FeedReader{
		provider: provider,
		feeds:    feeds,
		cache:    cache,
		metaTTL:  metaTTL,
		logger:   log,
	}
}

// HasFeed reports whether a Chainlink feed is known for the token.
func (r *FeedReader) HasFeed(chain, token string) bool {
	_, ok := r.feeds[chain][strings.ToLower(token)]
	return ok
}

// FetchChainPrices resolves USD prices for the given token addresses on one
// chain. Tokens without a feed, or whose feed read fails or reports a
// non-positive answer, are absent from the result rather than failing the
// whole fetch.
func (r *FeedReader) FetchChainPrices(ctx context.Context, chain string, tokens []string) (map[string]decimal.Decimal, error) {
	chainFeeds := r.feeds[chain]
	prices := make(map[string]decimal.Decimal, len(tokens))
	if len(chainFeeds) == 0 || len(tokens) == 0 {
		return prices, nil
	}

	batch, err := r.provider.NewBatcher(chain)
	if err != nil {
		return nil, err
	}

	type feedCall struct {
		token     string
		feed      common.Address
		answerIdx int
		decIdx    int
		decimals  uint8
	}

	calls := make([]feedCall, 0, len(tokens))
	for _, token := range tokens {
		feed, ok := chainFeeds[strings.ToLower(token)]
		if !ok {
			continue
		}
		fc := feedCall{token: token, feed: feed, decIdx: -1}
		fc.answerIdx = batch.Add(feed, latestAnswerData())
		if dec, ok := r.cachedDecimals(chain, feed); ok {
			fc.decimals = dec
		} else {
			fc.decIdx = batch.Add(feed, feedDecimalsData())
		}
		calls = append(calls, fc)
	}
	if len(calls) == 0 {
		return prices, nil
	}

	if err := batch.Execute(ctx); err != nil {
		return nil, fmt.Errorf("price feed batch on %s: %w", chain, err)
	}

	for _, fc := range calls {
		if fc.decIdx >= 0 {
			dec, ok := r.decodeDecimals(batch, fc.decIdx, chain, fc.feed)
			if !ok {
				continue
			}
			fc.decimals = dec
			r.storeDecimals(chain, fc.feed, dec)
		}

		outcome, err := batch.Result(fc.answerIdx)
		if err != nil || !outcome.Success {
			r.logger.Warn("Price feed answer unavailable", "chain", chain, "feed", fc.feed.Hex())
			continue
		}
		answer, err := unpackLatestAnswer(outcome.ReturnData)
		if err != nil {
			r.logger.Warn("Price feed answer decode failed", "chain", chain, "feed", fc.feed.Hex(), "error", err)
			continue
		}
		if answer.Sign() <= 0 {
			r.logger.Warn("Price feed returned non-positive answer", "chain", chain, "feed", fc.feed.Hex(), "answer", answer.String())
			continue
		}

		prices[fc.token] = utils.FromBaseUnits(answer, fc.decimals)
	}
	return prices, nil
}

func (r *FeedReader) decodeDecimals(batch port.CallBatcher, idx int, chain string, feed common.Address) (uint8, bool) {
	outcome, err := batch.Result(idx)
	if err != nil || !outcome.Success {
		r.logger.Warn("Price feed decimals unavailable", "chain", chain, "feed", feed.Hex())
		return 0, false
	}
	dec, err := unpackFeedDecimals(outcome.ReturnData)
	if err != nil {
		r.logger.Warn("Price feed decimals decode failed", "chain", chain, "feed", feed.Hex(), "error", err)
		return 0, false
	}
	return dec, true
}

func (r *FeedReader) cachedDecimals(chain string, feed common.Address) (uint8, bool) {
	if r.cache == nil {
		return 0, false
	}
	v, ok := r.cache.Get(client.ClassFeedMeta, client.CallKey(chain, "feed-decimals", feed.Hex()))
	if !ok {
		return 0, false
	}
	dec, ok := v.(uint8)
	return dec, ok
}

func (r *FeedReader) storeDecimals(chain string, feed common.Address, dec uint8) {
	if r.cache == nil {
		return
	}
	r.cache.Set(client.ClassFeedMeta, client.CallKey(chain, "feed-decimals", feed.Hex()), dec, r.metaTTL)
}
