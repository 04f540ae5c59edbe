package chains

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/rpcclient"
)

// EVMConnector talks to an Ethereum-compatible chain over JSON-RPC.
type EVMConnector struct {
	chain domain.Chain
	pool  *endpointPool

	mu     sync.Mutex
	client *rpcclient.Client
	opts   []rpcclient.Option
}

// NewEVMConnector creates a connector for an EVM chain over the given
// endpoint pool. startIndex restores the cursor persisted in ChainState.
func NewEVMConnector(chain domain.Chain, endpoints []string, startIndex int, opts ...rpcclient.Option) (*EVMConnector, error) {
	if !chain.IsEVM() {
		return nil, fmt.Errorf("chain %s is not EVM-compatible", chain)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("chain %s: no RPC endpoints configured", chain)
	}
	pool := newEndpointPool(endpoints, startIndex)
	return &EVMConnector{
		chain:  chain,
		pool:   pool,
		client: rpcclient.New(pool.current(), opts...),
		opts:   opts,
	}, nil
}

// Chain implements Connector.
func (c *EVMConnector) Chain() domain.Chain {
	return c.chain
}

// Endpoint implements Connector.
func (c *EVMConnector) Endpoint() string {
	return c.pool.current()
}

// EndpointIndex returns the active endpoint position, for state persistence.
func (c *EVMConnector) EndpointIndex() int {
	return c.pool.position()
}

// RotateEndpoint implements Connector. The HTTP client is rebuilt so in-flight
// calls on the old endpoint are unaffected.
func (c *EVMConnector) RotateEndpoint() string {
	next := c.pool.rotate()
	c.mu.Lock()
	c.client = rpcclient.New(next, c.opts...)
	c.mu.Unlock()
	return next
}

func (c *EVMConnector) rpc() *rpcclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// LatestHeight implements Connector via eth_blockNumber.
func (c *EVMConnector) LatestHeight(ctx context.Context) (int64, error) {
	var hexHeight string
	if err := c.rpc().Call(ctx, "eth_blockNumber", nil, &hexHeight); err != nil {
		return 0, fmt.Errorf("%s eth_blockNumber: %w", c.chain, err)
	}
	return parseHexInt(hexHeight)
}

// Probe implements Connector with a lightweight eth_chainId call.
func (c *EVMConnector) Probe(ctx context.Context) error {
	var chainID string
	if err := c.rpc().Call(ctx, "eth_chainId", nil, &chainID); err != nil {
		return fmt.Errorf("%s probe: %w", c.chain, err)
	}
	return nil
}

// evmBlock is the subset of eth_getBlockByNumber we inspect.
type evmBlock struct {
	Number       string  `json:"number"`
	Transactions []evmTx `json:"transactions"`
}

type evmTx struct {
	Hash  string  `json:"hash"`
	From  string  `json:"from"`
	To    *string `json:"to"` // nil for contract creation
	Input string  `json:"input"`
}

// evmReceipt is the subset of eth_getTransactionReceipt we inspect.
type evmReceipt struct {
	ContractAddress *string `json:"contractAddress"`
}

// BlockActivity implements Connector. Contract creations resolve the deployed
// address through the transaction receipt; calls are classified by selector.
func (c *EVMConnector) BlockActivity(ctx context.Context, height int64) ([]Activity, error) {
	params := []interface{}{fmt.Sprintf("0x%x", height), true}

	var block *evmBlock
	if err := c.rpc().Call(ctx, "eth_getBlockByNumber", params, &block); err != nil {
		return nil, fmt.Errorf("%s eth_getBlockByNumber(%d): %w", c.chain, height, err)
	}
	if block == nil {
		// Height not yet available on this endpoint
		return nil, nil
	}

	var activities []Activity
	for _, tx := range block.Transactions {
		if tx.To == nil {
			addr, err := c.contractAddress(ctx, tx.Hash)
			if err != nil {
				return nil, err
			}
			if addr != "" {
				activities = append(activities, Activity{
					Address: addr,
					Kind:    ActivityContractCreation,
					TxHash:  tx.Hash,
					Height:  height,
				})
			}
			continue
		}

		kind, ok := classifyCalldata(strings.ToLower(tx.Input))
		if !ok {
			continue
		}
		target := *tx.To
		if !common.IsHexAddress(target) {
			continue
		}
		activities = append(activities, Activity{
			Address: common.HexToAddress(target).Hex(),
			Kind:    kind,
			TxHash:  tx.Hash,
			Height:  height,
		})
	}
	return activities, nil
}

// contractAddress resolves the address deployed by a creation transaction.
func (c *EVMConnector) contractAddress(ctx context.Context, txHash string) (string, error) {
	var receipt *evmReceipt
	if err := c.rpc().Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &receipt); err != nil {
		return "", fmt.Errorf("%s eth_getTransactionReceipt(%s): %w", c.chain, txHash, err)
	}
	if receipt == nil || receipt.ContractAddress == nil {
		return "", nil
	}
	return common.HexToAddress(*receipt.ContractAddress).Hex(), nil
}

// parseHexInt parses a 0x-prefixed hex quantity.
func parseHexInt(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex quantity %q: %w", s, err)
	}
	return v, nil
}

// Verify interface compliance at compile time.
var _ Connector = (*EVMConnector)(nil)
