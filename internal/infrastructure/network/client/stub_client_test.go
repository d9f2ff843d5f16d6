package client

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
)

// stubChainClient implements port.ChainClient with injectable behavior so the
// batcher and scanner can be exercised without a live endpoint.
type stubChainClient struct {
	desc           entity.ChainDescriptor
	blockNumberFn  func(ctx context.Context) (uint64, error)
	callContractFn func(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	filterLogsFn   func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	batchFilterFn  func(ctx context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error)
}

func (s *stubChainClient) Descriptor() entity.ChainDescriptor {
	return s.desc
}

func (s *stubChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	if s.blockNumberFn == nil {
		return 0, errors.New("stub: BlockNumber not configured")
	}
	return s.blockNumberFn(ctx)
}

func (s *stubChainClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if s.callContractFn == nil {
		return nil, errors.New("stub: CallContract not configured")
	}
	return s.callContractFn(ctx, to, data)
}

func (s *stubChainClient) CallContractCached(ctx context.Context, to common.Address, data []byte, _ time.Duration) ([]byte, error) {
	return s.CallContract(ctx, to, data)
}

func (s *stubChainClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if s.filterLogsFn == nil {
		return nil, errors.New("stub: FilterLogs not configured")
	}
	return s.filterLogsFn(ctx, q)
}

func (s *stubChainClient) BatchFilterLogs(ctx context.Context, queries []ethereum.FilterQuery) ([]port.LogBatch, error) {
	if s.batchFilterFn == nil {
		return nil, errors.New("stub: BatchFilterLogs not configured")
	}
	return s.batchFilterFn(ctx, queries)
}

// nopLogger satisfies port.Logger for tests.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
