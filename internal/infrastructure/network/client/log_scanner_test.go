package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
)

var (
	supplyTopic    = common.HexToHash("0x2b627736bca15cd5381dcf80b0bf11fd197d01a037c52b927a881a10fb73ba61")
	submittedTopic = common.HexToHash("0x96a25c8ce0baabc1fdefd93e9ed25d8e092a3332f3aa9a41722b5697231d1d1a")
	testWallet     = common.HexToAddress("0x1234567890AbcdEF1234567890aBcdef12345678")
)

func scanTargets() []port.ScanTarget {
	return []port.ScanTarget{
		{Protocol: "aave_v3", Topics: []common.Hash{supplyTopic}},
		{Protocol: "lido", Topics: []common.Hash{submittedTopic}},
	}
}

func emptyBatches(queries []ethereum.FilterQuery) []port.LogBatch {
	return make([]port.LogBatch, len(queries))
}

func TestScannerBoundsWindowToLookback(t *testing.T) {
	var captured []ethereum.FilterQuery
	stub := &stubChainClient{
		desc:          entity.ChainDescriptor{Identifier: "ethereum", LookbackBlocks: 1_000_000},
		blockNumberFn: func(context.Context) (uint64, error) { return 2_000_000, nil },
		batchFilterFn: func(_ context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
			captured = queries
			return emptyBatches(queries), nil
		},
	}

	scanner := NewActivityScanner(nil, 0, 0, nopLogger{})
	activity, err := scanner.Scan(context.Background(), stub, testWallet, scanTargets())
	require.NoError(t, err)

	require.Equal(t, uint64(1_000_000), activity.FromBlock)
	require.Equal(t, uint64(2_000_000), activity.ToBlock)
	require.NotEmpty(t, captured)
	for _, q := range captured {
		require.Equal(t, uint64(1_000_000), q.FromBlock.Uint64())
		require.Equal(t, uint64(2_000_000), q.ToBlock.Uint64())
	}
}

func TestScannerClampsWindowToGenesis(t *testing.T) {
	stub := &stubChainClient{
		desc:          entity.ChainDescriptor{Identifier: "ethereum", LookbackBlocks: 1_000_000},
		blockNumberFn: func(context.Context) (uint64, error) { return 500, nil },
		batchFilterFn: func(_ context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
			return emptyBatches(queries), nil
		},
	}

	scanner := NewActivityScanner(nil, 0, 0, nopLogger{})
	activity, err := scanner.Scan(context.Background(), stub, testWallet, scanTargets())
	require.NoError(t, err)
	require.Equal(t, uint64(0), activity.FromBlock)
	require.Equal(t, uint64(500), activity.ToBlock)
}

func TestScannerProbesAllTopicPositions(t *testing.T) {
	padded := common.BytesToHash(common.LeftPadBytes(testWallet.Bytes(), 32))

	var captured []ethereum.FilterQuery
	stub := &stubChainClient{
		desc:          entity.ChainDescriptor{Identifier: "ethereum", LookbackBlocks: 100},
		blockNumberFn: func(context.Context) (uint64, error) { return 1000, nil },
		batchFilterFn: func(_ context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
			captured = queries
			return emptyBatches(queries), nil
		},
	}

	scanner := NewActivityScanner(nil, 0, 0, nopLogger{})
	_, err := scanner.Scan(context.Background(), stub, testWallet, scanTargets())
	require.NoError(t, err)

	// 2 targets, 1 signature each, 3 indexed positions.
	require.Len(t, captured, 6)

	q := captured[0] // signature at position 0, wallet at position 1
	require.Equal(t, []common.Hash{supplyTopic}, q.Topics[0])
	require.Equal(t, []common.Hash{padded}, q.Topics[1])

	q = captured[1] // wallet at position 2, wildcard in between
	require.Len(t, q.Topics, 3)
	require.Nil(t, q.Topics[1])
	require.Equal(t, []common.Hash{padded}, q.Topics[2])

	q = captured[2] // wallet at position 3
	require.Len(t, q.Topics, 4)
	require.Nil(t, q.Topics[1])
	require.Nil(t, q.Topics[2])
	require.Equal(t, []common.Hash{padded}, q.Topics[3])
}

func TestScannerDetectsProtocolsWithMatchingLogs(t *testing.T) {
	stub := &stubChainClient{
		desc:          entity.ChainDescriptor{Identifier: "ethereum", LookbackBlocks: 100},
		blockNumberFn: func(context.Context) (uint64, error) { return 1000, nil },
		batchFilterFn: func(_ context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
			batches := emptyBatches(queries)
			for i, q := range queries {
				// Only the aave supply signature matches, at topic position 2.
				if q.Topics[0][0] == supplyTopic && len(q.Topics) == 3 {
					batches[i] = port.LogBatch{Logs: []types.Log{{BlockNumber: 950}}}
				}
			}
			return batches, nil
		},
	}

	scanner := NewActivityScanner(nil, 0, 0, nopLogger{})
	activity, err := scanner.Scan(context.Background(), stub, testWallet, scanTargets())
	require.NoError(t, err)

	require.Equal(t, []string{"aave_v3"}, activity.Detected)
	require.True(t, activity.Has("aave_v3"))
	require.False(t, activity.Has("lido"))
}

func TestScannerSplitsOversizedRanges(t *testing.T) {
	tooMany := errors.New("query returned more than 10000 results")

	var chunkCalls [][2]uint64
	stub := &stubChainClient{
		desc:          entity.ChainDescriptor{Identifier: "ethereum", LookbackBlocks: 10_000},
		blockNumberFn: func(context.Context) (uint64, error) { return 10_000, nil },
		batchFilterFn: func(_ context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
			batches := emptyBatches(queries)
			// The first probe is rejected as oversized, the rest are empty.
			batches[0] = port.LogBatch{Err: tooMany}
			return batches, nil
		},
		filterLogsFn: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
			chunkCalls = append(chunkCalls, [2]uint64{from, to})
			if to-from >= 10_000 {
				return nil, tooMany
			}
			// Logs only live in the upper half of the window.
			if from > 5000 {
				return []types.Log{{BlockNumber: from + 1}}, nil
			}
			return nil, nil
		},
	}

	scanner := NewActivityScanner(nil, 0, 0, nopLogger{})
	activity, err := scanner.Scan(context.Background(), stub, testWallet, scanTargets())
	require.NoError(t, err)

	require.Equal(t, []string{"aave_v3"}, activity.Detected)
	// Full range rejected, then both halves probed.
	require.Equal(t, [][2]uint64{{0, 10_000}, {0, 5000}, {5001, 10_000}}, chunkCalls)
}

func TestScannerSurfacesNonSplittableProbeErrors(t *testing.T) {
	stub := &stubChainClient{
		desc:          entity.ChainDescriptor{Identifier: "ethereum", LookbackBlocks: 100},
		blockNumberFn: func(context.Context) (uint64, error) { return 1000, nil },
		batchFilterFn: func(_ context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
			batches := emptyBatches(queries)
			batches[2] = port.LogBatch{Err: errors.New("invalid params")}
			return batches, nil
		},
	}

	scanner := NewActivityScanner(nil, 0, 0, nopLogger{})
	_, err := scanner.Scan(context.Background(), stub, testWallet, scanTargets())
	require.ErrorContains(t, err, "invalid params")
}

func TestScannerCachesResultPerWallet(t *testing.T) {
	headCalls := 0
	stub := &stubChainClient{
		desc:          entity.ChainDescriptor{Identifier: "ethereum", LookbackBlocks: 100},
		blockNumberFn: func(context.Context) (uint64, error) { headCalls++; return 1000, nil },
		batchFilterFn: func(_ context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
			return emptyBatches(queries), nil
		},
	}

	scanner := NewActivityScanner(NewCallCache(time.Minute), time.Minute, 0, nopLogger{})

	first, err := scanner.Scan(context.Background(), stub, testWallet, scanTargets())
	require.NoError(t, err)
	second, err := scanner.Scan(context.Background(), stub, testWallet, scanTargets())
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, headCalls, "second scan must be served from cache")

	// A different wallet misses the cache.
	_, err = scanner.Scan(context.Background(), stub, common.HexToAddress("0x00000000000000000000000000000000000000bb"), scanTargets())
	require.NoError(t, err)
	require.Equal(t, 2, headCalls)
}

func TestScannerNoTargetsMeansNoRPC(t *testing.T) {
	stub := &stubChainClient{
		desc: entity.ChainDescriptor{Identifier: "ethereum"},
		blockNumberFn: func(context.Context) (uint64, error) {
			t.Fatal("head must not be fetched without targets")
			return 0, nil
		},
	}

	scanner := NewActivityScanner(nil, 0, 0, nopLogger{})
	activity, err := scanner.Scan(context.Background(), stub, testWallet, nil)
	require.NoError(t, err)
	require.Empty(t, activity.Detected)
}

func TestSplitRange(t *testing.T) {
	require.Equal(t, [][2]uint64{{0, 100}}, splitRange(0, 100, 0))
	require.Equal(t, [][2]uint64{{0, 100}}, splitRange(0, 100, 200))
	require.Equal(t, [][2]uint64{{0, 49}, {50, 99}, {100, 100}}, splitRange(0, 100, 49))
}
