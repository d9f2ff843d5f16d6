package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_tracker/internal/domain/entity"
	llama_types "portfolio_tracker/internal/entity"
	"portfolio_tracker/internal/infrastructure/network/client"
)

func testDescriptors() []entity.ChainDescriptor {
	return []entity.ChainDescriptor{
		{ChainID: 1, Identifier: "ethereum", Name: "Ethereum"},
		{ChainID: 8453, Identifier: "base", Name: "Base"},
	}
}

func newPriceServiceForTest(t *testing.T, feeds *fakeFeedSource, llama *fakeLlamaClient, cache *client.CallCache) *priceServiceImpl {
	t.Helper()
	provider := &fakeChainProvider{descriptors: testDescriptors()}
	svc := NewPriceService(provider, feeds, llama, cache, testConfig(), nopLogger{})
	impl, ok := svc.(*priceServiceImpl)
	require.True(t, ok)
	return impl
}

func TestGetPricesPartitionsBySource(t *testing.T) {
	feeds := &fakeFeedSource{
		feeds: map[string]map[string]decimal.Decimal{
			"ethereum": {
				"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": decimal.RequireFromString("2500.12"),
				"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": decimal.RequireFromString("0.99970951"),
			},
		},
	}
	llama := &fakeLlamaClient{
		prices: map[string]llama_types.LlamaCoinPrice{
			"ethereum:0x6b175474e89094c44da98b954eedeac495271d0f": llamaPrice(0.9998),
		},
	}
	svc := newPriceServiceForTest(t, feeds, llama, nil)

	refs := []entity.TokenRef{
		ref("ethereum", wethAddress),
		ref("ethereum", usdcAddress),
		ref("ethereum", daiAddress),
	}
	quotes, err := svc.GetPrices(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	weth := quotes[ref("ethereum", wethAddress)]
	assert.Equal(t, "chainlink", weth.Source)
	assert.Equal(t, "2500.12", weth.PriceUSD.String())

	dai := quotes[ref("ethereum", daiAddress)]
	assert.Equal(t, "defillama", dai.Source)
	assert.Equal(t, "0.9998", dai.PriceUSD.String())

	require.Equal(t, 1, feeds.fetchCount())
	require.Equal(t, 1, llama.callCount())
	assert.Equal(t, []string{"ethereum:0x6b175474e89094c44da98b954eedeac495271d0f"}, llama.calls[0])
}

func TestGetPricesFeedFailureFallsBackToLlama(t *testing.T) {
	feeds := &fakeFeedSource{
		feeds: map[string]map[string]decimal.Decimal{
			"ethereum": {
				"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": decimal.RequireFromString("2500"),
			},
		},
		errs: map[string]error{"ethereum": fmt.Errorf("all endpoints down")},
	}
	llama := &fakeLlamaClient{
		prices: map[string]llama_types.LlamaCoinPrice{
			"ethereum:0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": llamaPrice(2498.5),
		},
	}
	svc := newPriceServiceForTest(t, feeds, llama, nil)

	quotes, err := svc.GetPrices(context.Background(), []entity.TokenRef{ref("ethereum", wethAddress)})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "defillama", quotes[ref("ethereum", wethAddress)].Source)
	assert.Equal(t, "2498.5", quotes[ref("ethereum", wethAddress)].PriceUSD.String())
}

func TestGetPricesLlamaFailureLeavesTokensUnpriced(t *testing.T) {
	feeds := &fakeFeedSource{
		feeds: map[string]map[string]decimal.Decimal{
			"ethereum": {
				"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": decimal.RequireFromString("2500"),
			},
		},
	}
	llama := &fakeLlamaClient{err: fmt.Errorf("llama is down")}
	svc := newPriceServiceForTest(t, feeds, llama, nil)

	refs := []entity.TokenRef{
		ref("ethereum", wethAddress),
		ref("ethereum", daiAddress),
	}
	quotes, err := svc.GetPrices(context.Background(), refs)
	require.NoError(t, err)

	require.Len(t, quotes, 1)
	assert.Contains(t, quotes, ref("ethereum", wethAddress))
	assert.NotContains(t, quotes, ref("ethereum", daiAddress))
}

func TestGetPricesSkipsNonPositiveLlamaPrices(t *testing.T) {
	llama := &fakeLlamaClient{
		prices: map[string]llama_types.LlamaCoinPrice{
			"ethereum:" + ref("ethereum", daiAddress).Address: llamaPrice(0),
		},
	}
	svc := newPriceServiceForTest(t, &fakeFeedSource{}, llama, nil)

	quotes, err := svc.GetPrices(context.Background(), []entity.TokenRef{ref("ethereum", daiAddress)})
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestGetPricesCachesQuotes(t *testing.T) {
	feeds := &fakeFeedSource{
		feeds: map[string]map[string]decimal.Decimal{
			"ethereum": {
				"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": decimal.RequireFromString("2500"),
			},
		},
	}
	llama := &fakeLlamaClient{
		prices: map[string]llama_types.LlamaCoinPrice{
			"ethereum:0x6b175474e89094c44da98b954eedeac495271d0f": llamaPrice(1.0001),
		},
	}
	cache := client.NewCallCache(time.Minute)
	svc := newPriceServiceForTest(t, feeds, llama, cache)

	refs := []entity.TokenRef{ref("ethereum", wethAddress), ref("ethereum", daiAddress)}

	first, err := svc.GetPrices(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 1, feeds.fetchCount())
	require.Equal(t, 1, llama.callCount())

	second, err := svc.GetPrices(context.Background(), refs)
	require.NoError(t, err)
	require.Equal(t, first, second)
	assert.Equal(t, 1, feeds.fetchCount(), "cached quotes must not hit the feeds again")
	assert.Equal(t, 1, llama.callCount(), "cached quotes must not hit DefiLlama again")
}

func TestGetPricesDeduplicatesMixedCaseRefs(t *testing.T) {
	llama := &fakeLlamaClient{
		prices: map[string]llama_types.LlamaCoinPrice{
			"ethereum:0x6b175474e89094c44da98b954eedeac495271d0f": llamaPrice(1),
		},
	}
	svc := newPriceServiceForTest(t, &fakeFeedSource{}, llama, nil)

	refs := []entity.TokenRef{
		{Chain: "ethereum", Address: daiAddress},
		ref("ethereum", daiAddress),
	}
	quotes, err := svc.GetPrices(context.Background(), refs)
	require.NoError(t, err)

	require.Len(t, quotes, 1)
	require.Equal(t, 1, llama.callCount())
	assert.Len(t, llama.calls[0], 1)
}

func TestGetPricesUsesLlamaChainIdentifier(t *testing.T) {
	provider := &fakeChainProvider{descriptors: []entity.ChainDescriptor{
		{ChainID: 1, Identifier: "mainnet", LlamaIdentifier: "ethereum"},
	}}
	llama := &fakeLlamaClient{
		prices: map[string]llama_types.LlamaCoinPrice{
			"ethereum:0x6b175474e89094c44da98b954eedeac495271d0f": llamaPrice(1),
		},
	}
	svc := NewPriceService(provider, &fakeFeedSource{}, llama, nil, testConfig(), nopLogger{})

	quotes, err := svc.GetPrices(context.Background(), []entity.TokenRef{ref("mainnet", daiAddress)})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, []string{"ethereum:0x6b175474e89094c44da98b954eedeac495271d0f"}, llama.calls[0])
}

func TestGetPricesEmptyInput(t *testing.T) {
	svc := newPriceServiceForTest(t, &fakeFeedSource{}, &fakeLlamaClient{}, nil)
	quotes, err := svc.GetPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}
