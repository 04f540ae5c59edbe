package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"chain-sentry/internal/chains"
	"chain-sentry/internal/domain"
	"chain-sentry/internal/rpcclient"
	"chain-sentry/internal/scoring"
)

// rpcScanner is the built-in baseline Scanner: cheap on-chain evidence only,
// gathered over plain RPC. Deeper analyzers plug in behind the same interface.
type rpcScanner struct {
	clients   map[domain.Chain]*rpcclient.Client
	weights   scoring.Weights
	scannerID string
	logger    zerolog.Logger
	clock     func() time.Time
}

func newRPCScanner(clients map[domain.Chain]*rpcclient.Client, weights scoring.Weights, scannerID string, logger zerolog.Logger) *rpcScanner {
	return &rpcScanner{
		clients:   clients,
		weights:   weights,
		scannerID: scannerID,
		logger:    logger.With().Str("component", "rpc_scanner").Logger(),
		clock:     time.Now,
	}
}

// Selectors whose presence in deployed bytecode marks capabilities worth
// flagging. A selector appearing in the dispatch table shows up verbatim in
// the runtime code.
var (
	mintSelector      = selectorHex("mint(address,uint256)")
	blacklistSelector = selectorHex("blacklist(address)")
	setFeeSelector    = selectorHex("setTaxFeePercent(uint256)")
)

func selectorHex(sig string) string {
	return fmt.Sprintf("%x", crypto.Keccak256([]byte(sig))[:4])
}

// Scan gathers baseline evidence for one target. Any RPC failure is returned
// as-is; the queue owns retry policy.
func (s *rpcScanner) Scan(ctx context.Context, target string, chain domain.Chain, deepScan bool) (*domain.ScanResult, error) {
	client, ok := s.clients[chain]
	if !ok {
		return nil, fmt.Errorf("no RPC client configured for chain %s", chain)
	}

	started := s.clock()
	var evidence domain.EvidenceBundle
	var err error
	if chain.IsEVM() {
		evidence, err = s.scanEVM(ctx, client, target)
	} else {
		evidence, err = s.scanSolana(ctx, client, target)
	}
	if err != nil {
		return nil, err
	}

	result := &domain.ScanResult{
		Target:     target,
		Chain:      chain,
		DeepScan:   deepScan,
		Evidence:   evidence,
		ScannerID:  s.scannerID,
		StartedAt:  started.UnixMilli(),
		DurationMs: s.clock().Sub(started).Milliseconds(),
	}

	// Headline score: the factor model over whatever evidence this pass
	// produced. The scoring engine recomputes with votes blended in.
	factors := scoring.ComputeFactors(evidence, s.weights)
	if headline, ok := scoring.ComputeBaseScore(factors); ok {
		result.RiskScore = headline
	} else {
		result.RiskScore = 50 // nothing measured, neutral headline
		result.Categories = append(result.Categories, "no_evidence")
	}
	return result, nil
}

// scanEVM inspects deployed bytecode via eth_getCode.
func (s *rpcScanner) scanEVM(ctx context.Context, client *rpcclient.Client, target string) (domain.EvidenceBundle, error) {
	var code string
	params := []interface{}{target, "latest"}
	if err := client.Call(ctx, "eth_getCode", params, &code); err != nil {
		return domain.EvidenceBundle{}, fmt.Errorf("eth_getCode(%s): %w", target, err)
	}

	code = strings.ToLower(strings.TrimPrefix(code, "0x"))
	if code == "" {
		// Plain wallet, nothing static to inspect.
		return domain.EvidenceBundle{}, nil
	}

	ev := &domain.BytecodeEvidence{
		HasMintAuthority: strings.Contains(code, mintSelector),
		// CALLER, SELFDESTRUCT: the classic drain-to-caller epilogue. A lone
		// ff byte is too common inside data sections to flag.
		CanSelfDestruct: strings.Contains(code, "33ff"),
	}
	// Sell-path restriction heuristics: owner-gated blacklist or mutable tax.
	if strings.Contains(code, blacklistSelector) {
		ev.HiddenOwnerCalls++
	}
	if strings.Contains(code, setFeeSelector) {
		ev.HiddenOwnerCalls++
	}
	// EIP-1167/1967 proxies keep almost no runtime code of their own.
	ev.ProxyIndirection = len(code) < 120

	return domain.EvidenceBundle{Bytecode: ev}, nil
}

// solanaAccountInfo is the subset of getAccountInfo (jsonParsed) we inspect.
type solanaAccountInfo struct {
	Value *struct {
		Data struct {
			Parsed *struct {
				Type string `json:"type"`
				Info struct {
					MintAuthority   *string `json:"mintAuthority"`
					FreezeAuthority *string `json:"freezeAuthority"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"value"`
}

// scanSolana inspects a mint account's authorities via getAccountInfo.
func (s *rpcScanner) scanSolana(ctx context.Context, client *rpcclient.Client, target string) (domain.EvidenceBundle, error) {
	if !chains.IsSolanaAddress(target) {
		return domain.EvidenceBundle{}, fmt.Errorf("malformed solana address %q", target)
	}

	params := []interface{}{
		target,
		map[string]interface{}{"encoding": "jsonParsed"},
	}
	var info solanaAccountInfo
	if err := client.Call(ctx, "getAccountInfo", params, &info); err != nil {
		return domain.EvidenceBundle{}, fmt.Errorf("getAccountInfo(%s): %w", target, err)
	}

	if info.Value == nil || info.Value.Data.Parsed == nil || info.Value.Data.Parsed.Type != "mint" {
		return domain.EvidenceBundle{}, nil
	}

	parsed := info.Value.Data.Parsed
	ev := &domain.BytecodeEvidence{
		HasMintAuthority: parsed.Info.MintAuthority != nil,
	}
	if parsed.Info.FreezeAuthority != nil {
		// A live freeze authority can halt transfers, the SPL honeypot shape.
		ev.HoneypotSignature = true
	}
	return domain.EvidenceBundle{Bytecode: ev}, nil
}
