package port

import (
	"context"

	"portfolio_tracker/internal/domain/entity"
)

// PositionAggregator runs the full scan pipeline for one wallet: concurrent
// per-chain discovery, a pricing pass, then merge into a single summary.
type PositionAggregator interface {
	// ScanAddress aggregates positions for a wallet across the requested
	// chains (all configured chains when the slice is empty). A chain that
	// fails is recorded in the summary's FailedChains rather than failing the
	// scan; the returned error is non-nil only when the address is invalid or
	// every requested chain failed.
	ScanAddress(ctx context.Context, address string, chains []string) (*entity.PortfolioSummary, error)
}
