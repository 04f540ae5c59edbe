// Package config loads runtime configuration from the environment, with an
// optional .env file for local development. Every knob has a default; bad
// values fail loudly at startup rather than surfacing mid-run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/scoring"
)

// ChainConfig holds the RPC setup for one chain.
type ChainConfig struct {
	Endpoints    []string // ordered failover pool
	WSEndpoint   string   // optional, EVM newHeads subscription
	PollInterval time.Duration
}

type Config struct {
	// Chains
	Chains map[domain.Chain]ChainConfig

	// Listener
	ListenerBatchSize   int
	DedupWindow         time.Duration
	ErrorThreshold      int
	HealthProbeInterval time.Duration

	// Queue
	QueueMaxConcurrent int
	QueueMaxAttempts   int
	QueueBaseDelay     time.Duration
	DispatchInterval   time.Duration

	// Scoring
	Weights   scoring.Weights
	ScannerID string

	// Ledger
	SigningSeedHex  string // hex ed25519 seed; empty generates an ephemeral key
	BlobDirs        []string
	BlobGateways    []string
	BlobMemoryStore bool // in-memory backend, useful for dev
	BlobProbeEvery  time.Duration

	// Storage
	PostgresDSN   string // empty selects in-memory stores
	ClickhouseDSN string // empty disables score history

	// Observability
	MetricsPort int
}

// Load reads configuration from the environment (plus .env when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenerBatchSize:   envInt("LISTENER_BATCH_SIZE", 5),
		DedupWindow:         time.Duration(envInt("DEDUP_WINDOW_SECONDS", 60)) * time.Second,
		ErrorThreshold:      envInt("CHAIN_ERROR_THRESHOLD", 3),
		HealthProbeInterval: time.Duration(envInt("HEALTH_PROBE_SECONDS", 30)) * time.Second,

		QueueMaxConcurrent: envInt("QUEUE_MAX_CONCURRENT", 10),
		QueueMaxAttempts:   envInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueBaseDelay:     time.Duration(envInt("QUEUE_BASE_DELAY_MS", 1000)) * time.Millisecond,
		DispatchInterval:   time.Duration(envInt("DISPATCH_INTERVAL_MS", 1000)) * time.Millisecond,

		ScannerID: envOr("SCANNER_ID", "chain-sentry-1"),

		SigningSeedHex:  os.Getenv("LEDGER_SIGNING_SEED"),
		BlobDirs:        splitTrim(os.Getenv("BLOB_DIRS")),
		BlobGateways:    splitTrim(os.Getenv("BLOB_GATEWAYS")),
		BlobMemoryStore: envOr("BLOB_MEMORY", "false") == "true",
		BlobProbeEvery:  time.Duration(envInt("BLOB_PROBE_SECONDS", 300)) * time.Second,

		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),

		MetricsPort: envInt("METRICS_PORT", 9090),
	}

	defaults := scoring.DefaultWeights()
	cfg.Weights = scoring.Weights{
		Bytecode:  envFloat("WEIGHT_BYTECODE", defaults.Bytecode),
		Liquidity: envFloat("WEIGHT_LIQUIDITY", defaults.Liquidity),
		Social:    envFloat("WEIGHT_SOCIAL", defaults.Social),
		TxPattern: envFloat("WEIGHT_TX_PATTERN", defaults.TxPattern),
		Developer: envFloat("WEIGHT_DEVELOPER", defaults.Developer),
		Momentum:  envFloat("WEIGHT_MOMENTUM", defaults.Momentum),
	}

	cfg.Chains = map[domain.Chain]ChainConfig{}
	chainEnvs := []struct {
		chain    domain.Chain
		rpcVar   string
		wsVar    string
		pollVar  string
		fallback string
		pollSec  int
	}{
		{domain.ChainSolana, "SOLANA_RPC_URLS", "", "SOLANA_POLL_MS", "https://api.mainnet-beta.solana.com", 1},
		{domain.ChainEthereum, "ETH_RPC_URLS", "ETH_WS_URL", "ETH_POLL_MS", "https://eth.llamarpc.com", 12},
		{domain.ChainBase, "BASE_RPC_URLS", "BASE_WS_URL", "BASE_POLL_MS", "https://mainnet.base.org", 2},
		{domain.ChainBSC, "BSC_RPC_URLS", "BSC_WS_URL", "BSC_POLL_MS", "https://bsc-dataseed.binance.org", 3},
	}
	enabled := splitTrim(envOr("CHAINS", "solana,ethereum,base,bsc"))
	for _, ce := range chainEnvs {
		if !contains(enabled, string(ce.chain)) {
			continue
		}
		endpoints := splitTrim(os.Getenv(ce.rpcVar))
		if len(endpoints) == 0 {
			endpoints = []string{ce.fallback}
		}
		poll := time.Duration(envInt(ce.pollVar, ce.pollSec*1000)) * time.Millisecond
		cc := ChainConfig{Endpoints: endpoints, PollInterval: poll}
		if ce.wsVar != "" {
			cc.WSEndpoint = os.Getenv(ce.wsVar)
		}
		cfg.Chains[ce.chain] = cc
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("no chains enabled, set CHAINS to a comma-separated subset of solana,ethereum,base,bsc")
	}
	for chain, cc := range c.Chains {
		if !chain.IsValid() {
			return fmt.Errorf("unknown chain %q in CHAINS", chain)
		}
		if len(cc.Endpoints) == 0 {
			return fmt.Errorf("chain %s has no RPC endpoints", chain)
		}
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring weights: %w", err)
	}
	if c.QueueMaxConcurrent <= 0 {
		return fmt.Errorf("QUEUE_MAX_CONCURRENT must be positive, got %d", c.QueueMaxConcurrent)
	}
	if c.QueueMaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive, got %d", c.QueueMaxAttempts)
	}
	if !c.BlobMemoryStore && len(c.BlobDirs) == 0 && len(c.BlobGateways) == 0 {
		return fmt.Errorf("no blob storage configured, set BLOB_DIRS, BLOB_GATEWAYS or BLOB_MEMORY=true")
	}
	return nil
}

// helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
