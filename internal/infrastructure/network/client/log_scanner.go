package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
)

// Wallet addresses appear as an indexed topic in positions 1 to 3 depending
// on the event, so every signature is probed at all three.
const topicPositions = 3

// Ranges narrower than this are not split further; the provider error is
// surfaced instead.
const minChunkSpan = 2048

// ActivityScanner probes a bounded window of recent logs for protocol events
// involving a wallet. One batched eth_getLogs request covers every
// (signature, topic position) pair; ranges the provider rejects as too large
// are split and retried. Results are cached per wallet and chain, a scan is
// cheap to repeat within the TTL.
type ActivityScanner struct {
	cache    *CallCache
	cacheTTL time.Duration
	maxRange uint64 // initial span per query, 0 probes the whole window at once
	logger   port.Logger
}

// NewActivityScanner creates a scanner. cache may be nil to disable caching.
func NewActivityScanner(cache *CallCache, cacheTTL time.Duration, maxRange uint64, logger port.Logger) *ActivityScanner {
	return &ActivityScanner{cache: cache, cacheTTL: cacheTTL, maxRange: maxRange, logger: logger}
}

var _ port.ActivityScanner = (*ActivityScanner)(nil)

// Scan reports which of the targeted protocols the wallet has likely touched
// on the client's chain within the lookback window.
func (s *ActivityScanner) Scan(ctx context.Context, chainClient port.ChainClient, address common.Address, targets []port.ScanTarget) (entity.ChainActivity, error) {
	desc := chainClient.Descriptor()
	if len(targets) == 0 {
		return entity.ChainActivity{Chain: desc.Identifier}, nil
	}

	if s.cache == nil {
		return s.scan(ctx, chainClient, address, targets)
	}

	key := CallKey(desc.Identifier, "activity", address.Hex())
	v, err := s.cache.GetOrFetch(ClassActivity, key, s.cacheTTL, func() (interface{}, error) {
		return s.scan(ctx, chainClient, address, targets)
	})
	if err != nil {
		return entity.ChainActivity{}, err
	}
	return v.(entity.ChainActivity), nil
}

func (s *ActivityScanner) scan(ctx context.Context, chainClient port.ChainClient, address common.Address, targets []port.ScanTarget) (entity.ChainActivity, error) {
	desc := chainClient.Descriptor()

	head, err := chainClient.BlockNumber(ctx)
	if err != nil {
		return entity.ChainActivity{}, fmt.Errorf("failed to resolve head block for %s: %w", desc.Identifier, err)
	}

	from := uint64(0)
	if desc.LookbackBlocks > 0 && head > desc.LookbackBlocks {
		from = head - desc.LookbackBlocks
	}

	detected, err := s.probe(ctx, chainClient, address, targets, from, head)
	if err != nil {
		return entity.ChainActivity{}, err
	}

	s.logger.Debug("Activity scan finished",
		"chain", desc.Identifier, "address", address.Hex(),
		"from_block", from, "to_block", head, "detected", detected)

	return entity.ChainActivity{
		Chain:     desc.Identifier,
		FromBlock: from,
		ToBlock:   head,
		Detected:  detected,
	}, nil
}

// probe issues the batched log queries and resolves oversized ranges by
// splitting. Detected protocols keep the order of targets.
func (s *ActivityScanner) probe(ctx context.Context, chainClient port.ChainClient, address common.Address, targets []port.ScanTarget, from, to uint64) ([]string, error) {
	padded := common.BytesToHash(common.LeftPadBytes(address.Bytes(), 32))
	ranges := splitRange(from, to, s.maxRange)

	var queries []ethereum.FilterQuery
	var owner []int // query index -> target index
	for ti, target := range targets {
		for _, sig := range target.Topics {
			for pos := 1; pos <= topicPositions; pos++ {
				for _, span := range ranges {
					queries = append(queries, ethereum.FilterQuery{
						FromBlock: new(big.Int).SetUint64(span[0]),
						ToBlock:   new(big.Int).SetUint64(span[1]),
						Topics:    topicsWithAddressAt(sig, padded, pos),
					})
					owner = append(owner, ti)
				}
			}
		}
	}

	batches, err := chainClient.BatchFilterLogs(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("activity probe failed: %w", err)
	}

	hit := make(map[int]bool)
	for qi, batch := range batches {
		ti := owner[qi]
		if hit[ti] {
			continue
		}
		if batch.Err == nil {
			if len(batch.Logs) > 0 {
				hit[ti] = true
			}
			continue
		}
		if !isTooManyResults(batch.Err) {
			return nil, fmt.Errorf("activity probe for %s failed: %w", targets[ti].Protocol, batch.Err)
		}

		q := queries[qi]
		found, chunkErr := s.chunkedProbe(ctx, chainClient, q.Topics, q.FromBlock.Uint64(), q.ToBlock.Uint64())
		if chunkErr != nil {
			return nil, fmt.Errorf("chunked activity probe for %s failed: %w", targets[ti].Protocol, chunkErr)
		}
		if found {
			hit[ti] = true
		}
	}

	var detected []string
	for ti, target := range targets {
		if hit[ti] {
			detected = append(detected, target.Protocol)
		}
	}
	return detected, nil
}

// chunkedProbe re-runs one oversized query over halved ranges until the
// provider accepts it, stopping as soon as any log is found.
func (s *ActivityScanner) chunkedProbe(ctx context.Context, chainClient port.ChainClient, topics [][]common.Hash, from, to uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	logs, err := chainClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    topics,
	})
	if err == nil {
		return len(logs) > 0, nil
	}
	if !isTooManyResults(err) {
		return false, err
	}

	span := to - from
	if span < minChunkSpan {
		return false, err
	}

	mid := from + span/2
	s.logger.Debug("Splitting oversized log query", "from", from, "to", to, "mid", mid)

	found, err := s.chunkedProbe(ctx, chainClient, topics, from, mid)
	if err != nil || found {
		return found, err
	}
	return s.chunkedProbe(ctx, chainClient, topics, mid+1, to)
}

// topicsWithAddressAt builds a topic filter with the event signature at
// position 0 and the padded wallet address at the given indexed position.
// Intermediate positions are wildcards.
func topicsWithAddressAt(sig, padded common.Hash, pos int) [][]common.Hash {
	topics := make([][]common.Hash, pos+1)
	topics[0] = []common.Hash{sig}
	topics[pos] = []common.Hash{padded}
	return topics
}

// splitRange cuts [from, to] into spans of at most maxRange blocks.
func splitRange(from, to, maxRange uint64) [][2]uint64 {
	if maxRange == 0 || to-from <= maxRange {
		return [][2]uint64{{from, to}}
	}
	var ranges [][2]uint64
	for start := from; start <= to; start += maxRange + 1 {
		end := start + maxRange
		if end > to {
			end = to
		}
		ranges = append(ranges, [2]uint64{start, end})
	}
	return ranges
}

// isTooManyResults matches the provider errors that mean "narrow the block
// range", which is recoverable by splitting, unlike other query errors.
func isTooManyResults(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"more than 10000 results",
		"too many results",
		"response size exceeded",
		"block range is too",
		"query returned more than",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
