package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/pkg/metrics"
	"portfolio_tracker/internal/pkg/retry"
)

// errAttemptTimeout marks a per-call timeout while the parent context is still
// alive. It is transient: the next attempt or endpoint may answer in time.
var errAttemptTimeout = errors.New("rpc call timed out")

// ClientOptions tunes a single chain client.
type ClientOptions struct {
	CallTimeout time.Duration
	Retry       retry.Config
	RateLimit   int // requests per second per chain, 0 disables limiting
	BurstLimit  int
}

// DefaultClientOptions returns the options used when the config leaves the
// rpcClient section empty.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		CallTimeout: 10 * time.Second,
		Retry:       retry.DefaultConfig(),
	}
}

// endpoint wraps lazily dialed connections to one RPC URL.
type endpoint struct {
	url string
	rpc *rpc.Client
	eth *ethclient.Client
}

// EVMClient implements port.ChainClient for EVM-compatible chains. Every
// logical call walks the endpoint list in config order: transient failures
// are retried with backoff on the same endpoint, then the next endpoint is
// tried. The walk starts from the first endpoint again on the next call, so a
// recovered primary is picked up without any blacklist bookkeeping.
type EVMClient struct {
	desc    entity.ChainDescriptor
	opts    ClientOptions
	limiter *rate.Limiter
	cache   *CallCache
	logger  port.Logger

	mu     sync.Mutex
	dialed map[string]*endpoint
}

// NewEVMClient creates a new failover client for the given chain descriptor.
func NewEVMClient(desc entity.ChainDescriptor, opts ClientOptions, cache *CallCache, logger port.Logger) (*EVMClient, error) {
	if len(desc.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("chain %s: %w: no RPC endpoints configured", desc.Identifier, entity.ErrNoChainsConfigured)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultClientOptions().CallTimeout
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.BurstLimit
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &EVMClient{
		desc:    desc,
		opts:    opts,
		limiter: limiter,
		cache:   cache,
		logger:  logger,
		dialed:  make(map[string]*endpoint),
	}, nil
}

var _ port.ChainClient = (*EVMClient)(nil)

// Descriptor returns the chain this client serves.
func (c *EVMClient) Descriptor() entity.ChainDescriptor {
	return c.desc
}

// BlockNumber returns the current head block number.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.withFailover(ctx, "eth_blockNumber", func(callCtx context.Context, ep *endpoint) error {
		n, err := ep.eth.BlockNumber(callCtx)
		if err != nil {
			return err
		}
		head = n
		return nil
	})
	return head, err
}

// CallContract performs a read-only eth_call against the latest block.
func (c *EVMClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.withFailover(ctx, "eth_call", func(callCtx context.Context, ep *endpoint) error {
		res, err := ep.eth.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// CallContractCached is CallContract behind the call cache with the given TTL.
func (c *EVMClient) CallContractCached(ctx context.Context, to common.Address, data []byte, ttl time.Duration) ([]byte, error) {
	if c.cache == nil {
		return c.CallContract(ctx, to, data)
	}
	key := CallKey(c.desc.Identifier, to.Hex(), hexutil.Encode(data))
	v, err := c.cache.GetOrFetch(ClassCall, key, ttl, func() (interface{}, error) {
		return c.CallContract(ctx, to, data)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// FilterLogs fetches event logs matching the query.
func (c *EVMClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var out []types.Log
	err := c.withFailover(ctx, "eth_getLogs", func(callCtx context.Context, ep *endpoint) error {
		logs, err := ep.eth.FilterLogs(callCtx, q)
		if err != nil {
			return err
		}
		out = logs
		return nil
	})
	return out, err
}

// BatchFilterLogs runs several log queries in one JSON-RPC batch request.
// A failure of the whole batch goes through retry and failover; per-query
// errors are passed through for the caller to act on.
func (c *EVMClient) BatchFilterLogs(ctx context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	var out []port.LogBatch
	err := c.withFailover(ctx, "eth_getLogs_batch", func(callCtx context.Context, ep *endpoint) error {
		elems := make([]rpc.BatchElem, len(queries))
		for i, q := range queries {
			arg, err := filterQueryArg(q)
			if err != nil {
				return err
			}
			elems[i] = rpc.BatchElem{
				Method: "eth_getLogs",
				Args:   []interface{}{arg},
				Result: new([]types.Log),
			}
		}

		if err := ep.rpc.BatchCallContext(callCtx, elems); err != nil {
			return err
		}

		batches := make([]port.LogBatch, len(elems))
		for i, elem := range elems {
			if elem.Error != nil {
				batches[i] = port.LogBatch{Err: elem.Error}
				continue
			}
			logs, ok := elem.Result.(*[]types.Log)
			if !ok || logs == nil {
				batches[i] = port.LogBatch{Err: fmt.Errorf("unexpected eth_getLogs result type %T", elem.Result)}
				continue
			}
			batches[i] = port.LogBatch{Logs: *logs}
		}
		out = batches
		return nil
	})
	return out, err
}

// withFailover walks the endpoint list for one logical call. Transient errors
// are retried on the same endpoint first; a still-failing endpoint is given up
// on and the next is tried. Permanent errors and context cancellation stop
// the walk immediately.
func (c *EVMClient) withFailover(ctx context.Context, op string, attempt func(ctx context.Context, ep *endpoint) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var lastErr error
	for i, url := range c.desc.RPCEndpoints {
		ep, err := c.endpointFor(ctx, url)
		if err != nil {
			c.logger.Warn("Failed to dial RPC endpoint", "chain", c.desc.Identifier, "endpoint", url, "error", err)
			lastErr = err
			continue
		}

		err = retry.DoVoid(ctx, c.opts.Retry, isTransient,
			func(attemptNo int, attemptErr error, backoff time.Duration) {
				metrics.CollectRPCRetry(c.desc.Identifier, op)
				c.logger.Debug("Retrying RPC call",
					"chain", c.desc.Identifier, "op", op, "endpoint", url,
					"attempt", attemptNo, "backoff", backoff.String(), "error", attemptErr)
			},
			func() error {
				if c.limiter != nil {
					if err := c.limiter.Wait(ctx); err != nil {
						return err
					}
				}
				callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
				defer cancel()

				attemptErr := attempt(callCtx, ep)
				if attemptErr != nil && callCtx.Err() != nil && ctx.Err() == nil {
					return fmt.Errorf("%w: %v", errAttemptTimeout, attemptErr)
				}
				return attemptErr
			})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !isTransient(err) && !isRetryExhausted(err) {
			return err
		}

		lastErr = err
		if i < len(c.desc.RPCEndpoints)-1 {
			metrics.CollectEndpointFailover(c.desc.Identifier)
			c.logger.Warn("RPC endpoint exhausted, failing over",
				"chain", c.desc.Identifier, "op", op, "endpoint", url, "error", err)
		}
	}

	return &entity.EndpointsExhaustedError{
		Chain:     c.desc.Identifier,
		Operation: op,
		Endpoints: len(c.desc.RPCEndpoints),
		LastErr:   lastErr,
	}
}

// endpointFor returns the lazily dialed connection for an RPC URL.
func (c *EVMClient) endpointFor(ctx context.Context, url string) (*endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ep, ok := c.dialed[url]; ok {
		return ep, nil
	}

	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC %s: %w", url, err)
	}
	ep := &endpoint{url: url, rpc: rpcClient, eth: ethclient.NewClient(rpcClient)}
	c.dialed[url] = ep
	return ep, nil
}

// isRetryExhausted reports whether err is the retry helper giving up, which
// means the underlying cause was transient and failover should continue.
func isRetryExhausted(err error) bool {
	var exhausted *retry.ExhaustedError
	return errors.As(err, &exhausted)
}

// isTransient classifies an RPC error. Transient errors (timeouts, connection
// failures, rate limiting) are worth retrying; everything the node answered
// with deliberately (reverts, invalid params) is permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errAttemptTimeout) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// -32005 is the conventional "limit exceeded" JSON-RPC code.
		if rpcErr.ErrorCode() == -32005 {
			return true
		}
		msg := strings.ToLower(rpcErr.Error())
		return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"connection refused", "connection reset", "no such host", "timeout", "temporarily unavailable"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// filterQueryArg encodes a FilterQuery as the eth_getLogs JSON-RPC parameter.
func filterQueryArg(q ethereum.FilterQuery) (map[string]interface{}, error) {
	arg := map[string]interface{}{
		"address": q.Addresses,
		"topics":  q.Topics,
	}
	if q.BlockHash != nil {
		if q.FromBlock != nil || q.ToBlock != nil {
			return nil, errors.New("cannot specify both blockHash and block range")
		}
		arg["blockHash"] = *q.BlockHash
		return arg, nil
	}
	arg["fromBlock"] = toBlockNumArg(q.FromBlock)
	arg["toBlock"] = toBlockNumArg(q.ToBlock)
	return arg, nil
}

func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}
