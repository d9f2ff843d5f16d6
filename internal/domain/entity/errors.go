package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress is returned when a wallet address fails hex validation.
	ErrInvalidAddress = errors.New("invalid wallet address")
	// ErrUnknownChain is returned when a requested chain has no configuration.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrNoChainsConfigured is returned when a scan is requested with no usable chains.
	ErrNoChainsConfigured = errors.New("no chains configured")
	// ErrBatchNotExecuted is returned when batch results are read before execution.
	ErrBatchNotExecuted = errors.New("batch not executed")
)

// EndpointsExhaustedError reports that every configured endpoint for a chain
// failed for a single logical call. The endpoint list is walked fresh on the
// next call, no endpoint is blacklisted.
type EndpointsExhaustedError struct {
	Chain     string
	Operation string
	Endpoints int
	LastErr   error
}

func (e *EndpointsExhaustedError) Error() string {
	return fmt.Sprintf("chain %s: all %d endpoints exhausted for %s: %v", e.Chain, e.Endpoints, e.Operation, e.LastErr)
}

func (e *EndpointsExhaustedError) Unwrap() error {
	return e.LastErr
}

// AllChainsFailedError reports that no requested chain produced a result, as
// opposed to a partial summary that records per-chain failures alongside data.
type AllChainsFailedError struct {
	WalletAddress string
	Failures      []ChainFailure
}

func (e *AllChainsFailedError) Error() string {
	return fmt.Sprintf("wallet %s: all %d chains failed", e.WalletAddress, len(e.Failures))
}

// IsEndpointsExhausted reports whether err wraps an EndpointsExhaustedError.
func IsEndpointsExhausted(err error) bool {
	var exhausted *EndpointsExhaustedError
	return errors.As(err, &exhausted)
}
