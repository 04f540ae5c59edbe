package domain

// EvidenceBundle is the closed set of evidence a scanner can attach to a result.
// Each variant is optional; a nil variant means the factor was not measured and
// is omitted from scoring rather than scored as zero.
type EvidenceBundle struct {
	Bytecode  *BytecodeEvidence
	Liquidity *LiquidityEvidence
	Social    *SocialEvidence
	TxPattern *TxPatternEvidence
	Developer *DeveloperEvidence
	Momentum  *MomentumEvidence
}

// BytecodeEvidence holds static-analysis facts about the contract code.
type BytecodeEvidence struct {
	Verified          bool // source verified on an explorer
	HasMintAuthority  bool // supply can still be inflated
	HoneypotSignature bool // sell-path restriction pattern found
	CanSelfDestruct   bool
	ProxyIndirection  bool // upgradeable proxy in front of the implementation
	HiddenOwnerCalls  int  // owner-only calls reachable from transfer paths
}

// LiquidityEvidence holds pool depth and ownership facts.
type LiquidityEvidence struct {
	TotalUSD      float64 // pooled liquidity in USD
	LockedPct     float64 // share of LP tokens locked or burned, 0..1
	TopHolderPct  float64 // share held by the largest LP holder, 0..1
	RemovalEvents int     // liquidity removals observed in the last 24h
}

// SocialEvidence holds social-footprint facts gathered off-chain.
type SocialEvidence struct {
	MentionCount24h int
	UniqueAuthors   int
	BotRatio        float64 // 0..1 share of mentions attributed to bots
	SentimentScore  float64 // -1..1
}

// TxPatternEvidence holds on-chain trading behavior facts.
type TxPatternEvidence struct {
	BuySellRatio     float64 // buys per sell over 24h; very high suggests a honeypot
	UniqueBuyers24h  int
	WashTradingScore float64 // 0..1
	SniperBotCount   int
}

// DeveloperEvidence holds deployer-wallet reputation facts.
type DeveloperEvidence struct {
	KnownDeployer   bool
	Doxxed          bool
	PriorTokenCount int
	PriorRugCount   int
	WalletAgeDays   int
}

// MomentumEvidence holds short-horizon market movement facts.
type MomentumEvidence struct {
	PriceChange1hPct   float64
	PriceChange24hPct  float64
	VolumeChange24hPct float64
	HolderGrowth24hPct float64
}

// ScanResult is the scanner's output for one target.
// Read-only once produced; consumed by scoring and the transparency ledger.
type ScanResult struct {
	Target     string
	Chain      Chain
	DeepScan   bool
	Evidence   EvidenceBundle
	Categories []string // scanner-computed tags, advisory only
	RiskScore  float64  // scanner's own 0-100 headline score
	ScannerID  string   // identity of the scanner build that produced this
	StartedAt  int64    // Unix timestamp in milliseconds
	DurationMs int64
}
