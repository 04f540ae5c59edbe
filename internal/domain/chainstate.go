package domain

// ChainState is the persisted health and progress of one chain.
// Corresponds to the chain_states table. Mutated only by the owning listener.
type ChainState struct {
	Chain               Chain
	Endpoints           []string // ordered RPC endpoint pool
	EndpointIndex       int      // currently active endpoint
	LastProcessedHeight int64    // only advances forward
	ConsecutiveErrors   int
	Healthy             bool
	UpdatedAt           int64 // Unix timestamp in milliseconds
}
