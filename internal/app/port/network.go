package port

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"portfolio_tracker/internal/domain/entity"
)

// ChainClient is a failover RPC client bound to one chain. Every call walks
// the configured endpoint list in order, retrying transient failures with
// backoff before moving to the next endpoint. Permanent failures (reverts,
// malformed requests) surface immediately.
type ChainClient interface {
	// Descriptor returns the chain this client serves.
	Descriptor() entity.ChainDescriptor

	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// CallContract performs a read-only eth_call against the latest block.
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// CallContractCached is CallContract behind the call cache with the given TTL.
	CallContractCached(ctx context.Context, to common.Address, data []byte, ttl time.Duration) ([]byte, error)

	// FilterLogs fetches event logs matching the query.
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// BatchFilterLogs runs several log queries in a single JSON-RPC batch.
	// The outer error covers the whole batch, per-query failures are reported
	// in the matching LogBatch entry.
	BatchFilterLogs(ctx context.Context, queries []ethereum.FilterQuery) ([]LogBatch, error)
}

// LogBatch is the per-query result of a batched log fetch.
type LogBatch struct {
	Logs []types.Log
	Err  error
}

// ChainClientProvider hands out chain clients and call batchers by chain name.
type ChainClientProvider interface {
	// GetClient returns the client for a configured chain.
	GetClient(chain string) (ChainClient, error)

	// NewBatcher returns a fresh multicall batcher for the chain. Results of
	// one Execute never leak into the next batch.
	NewBatcher(chain string) (CallBatcher, error)

	// Chains returns descriptors for every configured chain, in config order.
	Chains() []entity.ChainDescriptor
}

// CallBatcher accumulates read-only contract calls and executes them as a
// single aggregated multicall. Individual calls may fail without failing the
// batch; a failed call is reported as an unavailable CallOutcome, which is
// distinct from a successful call returning zero.
type CallBatcher interface {
	// Add schedules a call and returns its index for correlating the result.
	Add(target common.Address, callData []byte) int

	// Len reports how many calls are scheduled in the current batch.
	Len() int

	// Execute runs all scheduled calls in one aggregate call. A batch with no
	// calls is a no-op.
	Execute(ctx context.Context) error

	// Result returns the outcome of the call previously added at index i.
	Result(i int) (entity.CallOutcome, error)
}

// ScanTarget pairs a protocol with the event topics that betray its use.
type ScanTarget struct {
	Protocol string
	Topics   []common.Hash
}

// ActivityScanner probes recent event logs to decide which protocols a wallet
// has likely touched on a chain. The result is a superset hint: handlers still
// verify on-chain state before reporting positions.
type ActivityScanner interface {
	Scan(ctx context.Context, client ChainClient, address common.Address, targets []ScanTarget) (entity.ChainActivity, error)
}
