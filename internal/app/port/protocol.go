package port

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/domain/entity"
)

// ProtocolHandler discovers a wallet's positions in one protocol. Handlers
// schedule every read through the supplied batcher so a discovery pass costs a
// single RPC round trip, and they never price positions: valuation happens in
// the aggregation layer. The only exception is a protocol whose contracts
// already report values in a USD base currency.
type ProtocolHandler interface {
	// Name returns the protocol identifier, e.g. "aave_v3".
	Name() string

	// SupportedChains lists chains this handler can discover on.
	SupportedChains() []string

	// DiscoveryTopics returns the event signatures the activity scanner probes
	// to detect that a wallet has interacted with this protocol.
	DiscoveryTopics() []common.Hash

	// Discover checks the wallet's state and returns its positions. A wallet
	// with no position returns an empty slice, not an error. Zero balances
	// never produce a Position.
	Discover(ctx context.Context, address common.Address, chain string, batch CallBatcher) ([]entity.Position, error)
}

// HandlerRegistry holds protocol handlers in registration order.
type HandlerRegistry interface {
	// HandlersFor returns the handlers supporting a chain, in registration order.
	HandlersFor(chain string) []ProtocolHandler

	// DiscoveryTargets returns scan targets for a chain, in registration order.
	DiscoveryTargets(chain string) []ScanTarget

	// Get finds a handler by protocol name.
	Get(name string) (ProtocolHandler, bool)

	// Protocols lists registered protocols for the listing endpoints.
	Protocols() []entity.ProtocolInfo
}
