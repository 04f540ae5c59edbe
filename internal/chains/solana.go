package chains

import (
	"context"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/rpcclient"
)

// Program ids whose invocation marks a transaction scan-worthy.
const (
	raydiumAMMProgram  = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	pumpFunProgram     = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	splTokenProgram    = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	orcaWhirlpoolsProg = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
)

// poolPrograms are AMM programs whose initialize instructions create pools.
var poolPrograms = map[string]bool{
	raydiumAMMProgram:  true,
	pumpFunProgram:     true,
	orcaWhirlpoolsProg: true,
}

// SolanaConnector talks to a Solana RPC node.
type SolanaConnector struct {
	pool *endpointPool

	mu     sync.Mutex
	client *rpcclient.Client
	opts   []rpcclient.Option
}

// NewSolanaConnector creates a connector over the given endpoint pool.
func NewSolanaConnector(endpoints []string, startIndex int, opts ...rpcclient.Option) (*SolanaConnector, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("solana: no RPC endpoints configured")
	}
	pool := newEndpointPool(endpoints, startIndex)
	return &SolanaConnector{
		pool:   pool,
		client: rpcclient.New(pool.current(), opts...),
		opts:   opts,
	}, nil
}

// Chain implements Connector.
func (c *SolanaConnector) Chain() domain.Chain {
	return domain.ChainSolana
}

// Endpoint implements Connector.
func (c *SolanaConnector) Endpoint() string {
	return c.pool.current()
}

// EndpointIndex returns the active endpoint position, for state persistence.
func (c *SolanaConnector) EndpointIndex() int {
	return c.pool.position()
}

// RotateEndpoint implements Connector.
func (c *SolanaConnector) RotateEndpoint() string {
	next := c.pool.rotate()
	c.mu.Lock()
	c.client = rpcclient.New(next, c.opts...)
	c.mu.Unlock()
	return next
}

func (c *SolanaConnector) rpc() *rpcclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// LatestHeight implements Connector; heights are slots on Solana.
func (c *SolanaConnector) LatestHeight(ctx context.Context) (int64, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": "finalized"},
	}
	var slot int64
	if err := c.rpc().Call(ctx, "getSlot", params, &slot); err != nil {
		return 0, fmt.Errorf("solana getSlot: %w", err)
	}
	return slot, nil
}

// Probe implements Connector with a lightweight getVersion call.
func (c *SolanaConnector) Probe(ctx context.Context) error {
	var version struct {
		SolanaCore string `json:"solana-core"`
	}
	if err := c.rpc().Call(ctx, "getVersion", nil, &version); err != nil {
		return fmt.Errorf("solana probe: %w", err)
	}
	return nil
}

// solanaBlock is the subset of getBlock (jsonParsed) we inspect.
type solanaBlock struct {
	Transactions []solanaTx `json:"transactions"`
}

type solanaTx struct {
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			Instructions []solanaInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
	Meta *struct {
		Err interface{} `json:"err"`
	} `json:"meta"`
}

type solanaInstruction struct {
	ProgramID string `json:"programId"`
	Parsed    *struct {
		Type string `json:"type"`
		Info struct {
			Mint string `json:"mint"`
		} `json:"info"`
	} `json:"parsed"`
	Accounts []string `json:"accounts"`
}

// BlockActivity implements Connector. Detects initializeMint instructions via
// the parsed SPL-token form and pool creations by AMM program invocation.
func (c *SolanaConnector) BlockActivity(ctx context.Context, slot int64) ([]Activity, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"transactionDetails":             "full",
			"maxSupportedTransactionVersion": 0,
			"rewards":                        false,
		},
	}

	var block *solanaBlock
	if err := c.rpc().Call(ctx, "getBlock", params, &block); err != nil {
		return nil, fmt.Errorf("solana getBlock(%d): %w", slot, err)
	}
	if block == nil {
		// Skipped slot
		return nil, nil
	}

	var activities []Activity
	for _, tx := range block.Transactions {
		if tx.Meta != nil && tx.Meta.Err != nil {
			continue
		}
		sig := ""
		if len(tx.Transaction.Signatures) > 0 {
			sig = tx.Transaction.Signatures[0]
		}

		for _, ins := range tx.Transaction.Message.Instructions {
			switch {
			case ins.Parsed != nil && isMintInit(ins.Parsed.Type) && ins.ProgramID == splTokenProgram:
				if !IsSolanaAddress(ins.Parsed.Info.Mint) {
					continue
				}
				activities = append(activities, Activity{
					Address: ins.Parsed.Info.Mint,
					Kind:    ActivityMintInit,
					TxHash:  sig,
					Height:  slot,
				})

			case poolPrograms[ins.ProgramID] && len(ins.Accounts) > 0:
				// AMM initialize: the pool account is the first writable
				// account in every program we track.
				if !IsSolanaAddress(ins.Accounts[0]) {
					continue
				}
				activities = append(activities, Activity{
					Address: ins.Accounts[0],
					Kind:    ActivityPoolCreation,
					TxHash:  sig,
					Height:  slot,
				})
			}
		}
	}
	return activities, nil
}

func isMintInit(parsedType string) bool {
	return parsedType == "initializeMint" || parsedType == "initializeMint2"
}

// IsSolanaAddress reports whether s decodes to a 32-byte base58 value.
func IsSolanaAddress(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

// Verify interface compliance at compile time.
var _ Connector = (*SolanaConnector)(nil)
