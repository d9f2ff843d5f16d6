package pricing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/require"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/infrastructure/network/client"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type recordedCall struct {
	target common.Address
	data   []byte
}

type fakeBatcher struct {
	calls    []recordedCall
	script   func(target common.Address, data []byte) entity.CallOutcome
	executes int
}

func (b *fakeBatcher) Add(target common.Address, data []byte) int {
	b.calls = append(b.calls, recordedCall{target: target, data: data})
	return len(b.calls) - 1
}

func (b *fakeBatcher) Len() int { return len(b.calls) }

func (b *fakeBatcher) Execute(context.Context) error {
	b.executes++
	return nil
}

func (b *fakeBatcher) Result(i int) (entity.CallOutcome, error) {
	if i < 0 || i >= len(b.calls) {
		return entity.CallOutcome{}, fmt.Errorf("result index %d out of range", i)
	}
	return b.script(b.calls[i].target, b.calls[i].data), nil
}

// fakeProvider hands out a fresh scripted batcher per call.
type fakeProvider struct {
	script  func(target common.Address, data []byte) entity.CallOutcome
	batches []*fakeBatcher
}

func (p *fakeProvider) GetClient(string) (port.ChainClient, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) NewBatcher(string) (port.CallBatcher, error) {
	b := &fakeBatcher{script: p.script}
	p.batches = append(p.batches, b)
	return b, nil
}

func (p *fakeProvider) Chains() []entity.ChainDescriptor { return nil }

// word encodes v as a 256-bit ABI word, two's complement for negatives.
func word(v *big.Int) []byte { return math.U256Bytes(new(big.Int).Set(v)) }

var (
	ethFeed  = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	usdcFeed = common.HexToAddress("0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6")
	usdcEth  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func feedScript(answers map[common.Address]*big.Int) func(target common.Address, data []byte) entity.CallOutcome {
	return func(target common.Address, data []byte) entity.CallOutcome {
		if bytes.Equal(data[:4], feedDecimalsData()[:4]) {
			return entity.CallOutcome{Success: true, ReturnData: word(big.NewInt(8))}
		}
		answer, ok := answers[target]
		if !ok {
			return entity.CallOutcome{Success: false}
		}
		return entity.CallOutcome{Success: true, ReturnData: word(answer)}
	}
}

func TestFetchChainPricesResolvesViaFeeds(t *testing.T) {
	provider := &fakeProvider{script: feedScript(map[common.Address]*big.Int{
		ethFeed:  big.NewInt(250_012_345_678), // 2500.12345678 USD
		usdcFeed: big.NewInt(99_970_951),      // 0.99970951 USD
	})}
	reader := NewFeedReader(provider, nil, nil, time.Minute, nopLogger{})

	prices, err := reader.FetchChainPrices(context.Background(), "ethereum", []string{entity.ZeroAddress, usdcEth})
	require.NoError(t, err)

	require.Len(t, provider.batches, 1)
	require.Equal(t, 1, provider.batches[0].executes)
	require.Len(t, provider.batches[0].calls, 4, "two answers plus two uncached decimals")

	require.Equal(t, "2500.12345678", prices[entity.ZeroAddress].String())
	require.Equal(t, "0.99970951", prices[usdcEth].String())
}

func TestFetchChainPricesCachesFeedDecimals(t *testing.T) {
	provider := &fakeProvider{script: feedScript(map[common.Address]*big.Int{
		ethFeed: big.NewInt(250_000_000_000),
	})}
	cache := client.NewCallCache(time.Minute)
	reader := NewFeedReader(provider, nil, cache, time.Hour, nopLogger{})

	_, err := reader.FetchChainPrices(context.Background(), "ethereum", []string{entity.ZeroAddress})
	require.NoError(t, err)
	require.Len(t, provider.batches[0].calls, 2)

	_, err = reader.FetchChainPrices(context.Background(), "ethereum", []string{entity.ZeroAddress})
	require.NoError(t, err)
	require.Len(t, provider.batches[1].calls, 1, "decimals are cached after the first read")
}

func TestFetchChainPricesSkipsBadAnswers(t *testing.T) {
	provider := &fakeProvider{script: feedScript(map[common.Address]*big.Int{
		ethFeed:  big.NewInt(-5), // stale or broken aggregator
		usdcFeed: big.NewInt(100_000_000),
	})}
	reader := NewFeedReader(provider, nil, nil, time.Minute, nopLogger{})

	prices, err := reader.FetchChainPrices(context.Background(), "ethereum", []string{entity.ZeroAddress, usdcEth})
	require.NoError(t, err)
	require.NotContains(t, prices, entity.ZeroAddress)
	require.Equal(t, "1", prices[usdcEth].String())
}

func TestFetchChainPricesIgnoresTokensWithoutFeeds(t *testing.T) {
	provider := &fakeProvider{script: feedScript(nil)}
	reader := NewFeedReader(provider, nil, nil, time.Minute, nopLogger{})

	prices, err := reader.FetchChainPrices(context.Background(), "ethereum",
		[]string{"0x9999999999999999999999999999999999999999"})
	require.NoError(t, err)
	require.Empty(t, prices)
	require.Equal(t, 0, provider.batches[0].executes, "nothing to fetch, no round trip")
}

func TestHasFeedHonorsOverrides(t *testing.T) {
	overrides := map[string]map[string]string{
		"ethereum": {
			entity.ZeroAddress: "", // drop the builtin ETH/USD feed
			"0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0": "0x164b276057258d81941e97B0a900D4C7B358bCe0", // wstETH
		},
	}
	reader := NewFeedReader(&fakeProvider{}, overrides, nil, time.Minute, nopLogger{})

	require.False(t, reader.HasFeed("ethereum", entity.ZeroAddress))
	require.True(t, reader.HasFeed("ethereum", "0x7f39c581f595b53c5cb19bd0b3f8da6c935e2ca0"))
	require.True(t, reader.HasFeed("ethereum", usdcEth), "builtin entries survive unrelated overrides")
	require.False(t, reader.HasFeed("solana", usdcEth))
}
