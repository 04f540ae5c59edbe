// Package chains wraps per-chain RPC access behind one Connector interface.
// Each connector owns an ordered pool of endpoints and can hot-swap to the
// next endpoint when the active one degrades.
package chains

import (
	"context"
	"sync"

	"chain-sentry/internal/domain"
)

// ActivityKind classifies what a transaction did that makes it scan-worthy.
type ActivityKind string

const (
	ActivityContractCreation ActivityKind = "contract_creation"
	ActivityMintInit         ActivityKind = "mint_init"
	ActivityPoolCreation     ActivityKind = "pool_creation"
	ActivityTransfer         ActivityKind = "transfer"
)

// Activity is one scan-worthy observation extracted from a block.
type Activity struct {
	Address string       // candidate contract/token address
	Kind    ActivityKind // what the transaction did
	TxHash  string
	Height  int64
}

// Connector provides RPC access to one chain.
type Connector interface {
	// Chain identifies the network this connector talks to.
	Chain() domain.Chain

	// LatestHeight returns the newest finalized block height (slot on Solana).
	LatestHeight(ctx context.Context) (int64, error)

	// BlockActivity fetches one block and extracts scan-worthy activities.
	BlockActivity(ctx context.Context, height int64) ([]Activity, error)

	// Probe performs a lightweight liveness call against the active endpoint.
	Probe(ctx context.Context) error

	// RotateEndpoint advances to the next endpoint in the pool and returns it.
	RotateEndpoint() string

	// Endpoint returns the currently active endpoint.
	Endpoint() string
}

// endpointPool is an ordered pool of RPC endpoints with a rotating cursor.
type endpointPool struct {
	mu        sync.Mutex
	endpoints []string
	index     int
}

func newEndpointPool(endpoints []string, startIndex int) *endpointPool {
	if startIndex < 0 || startIndex >= len(endpoints) {
		startIndex = 0
	}
	return &endpointPool{endpoints: endpoints, index: startIndex}
}

// current returns the active endpoint.
func (p *endpointPool) current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints[p.index]
}

// rotate advances the cursor and returns the new active endpoint.
func (p *endpointPool) rotate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = (p.index + 1) % len(p.endpoints)
	return p.endpoints[p.index]
}

// position returns the current cursor index.
func (p *endpointPool) position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}
