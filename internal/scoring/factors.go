// Package scoring converts raw scan evidence plus crowd input into one
// comparable score on the 0-100 Alpha-to-Risk spectrum: low scores mean
// risk, high scores mean opportunity.
package scoring

import (
	"fmt"

	"chain-sentry/internal/domain"
)

// Factor names used across scoring, classification and configuration.
const (
	FactorBytecode  = "bytecode"
	FactorLiquidity = "liquidity"
	FactorSocial    = "social"
	FactorTxPattern = "tx_pattern"
	FactorDeveloper = "dev_reputation"
	FactorMomentum  = "market_momentum"
)

// Weights assigns one weight per factor. Configuration, not a design constant.
type Weights struct {
	Bytecode  float64
	Liquidity float64
	Social    float64
	TxPattern float64
	Developer float64
	Momentum  float64
}

// DefaultWeights returns the default factor weighting.
func DefaultWeights() Weights {
	return Weights{
		Bytecode:  0.25,
		Liquidity: 0.20,
		Social:    0.15,
		TxPattern: 0.15,
		Developer: 0.10,
		Momentum:  0.15,
	}
}

// Validate checks that every weight lies in [0,1] and at least one is positive.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		FactorBytecode: w.Bytecode, FactorLiquidity: w.Liquidity,
		FactorSocial: w.Social, FactorTxPattern: w.TxPattern,
		FactorDeveloper: w.Developer, FactorMomentum: w.Momentum,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s out of range: %v", name, v)
		}
	}
	if w.Bytecode+w.Liquidity+w.Social+w.TxPattern+w.Developer+w.Momentum <= 0 {
		return fmt.Errorf("all factor weights are zero")
	}
	return nil
}

// ComputeFactors maps each present evidence variant through its factor model.
// A nil variant omits the factor; omission renormalizes rather than scoring
// zero, so an unmeasured factor never craters the composite.
func ComputeFactors(ev domain.EvidenceBundle, w Weights) []domain.ThreatFactor {
	var factors []domain.ThreatFactor
	if ev.Bytecode != nil {
		score, conf, summary := scoreBytecode(ev.Bytecode)
		factors = append(factors, domain.ThreatFactor{
			Name: FactorBytecode, Weight: w.Bytecode, Score: score, Confidence: conf, Evidence: summary,
		})
	}
	if ev.Liquidity != nil {
		score, conf, summary := scoreLiquidity(ev.Liquidity)
		factors = append(factors, domain.ThreatFactor{
			Name: FactorLiquidity, Weight: w.Liquidity, Score: score, Confidence: conf, Evidence: summary,
		})
	}
	if ev.Social != nil {
		score, conf, summary := scoreSocial(ev.Social)
		factors = append(factors, domain.ThreatFactor{
			Name: FactorSocial, Weight: w.Social, Score: score, Confidence: conf, Evidence: summary,
		})
	}
	if ev.TxPattern != nil {
		score, conf, summary := scoreTxPattern(ev.TxPattern)
		factors = append(factors, domain.ThreatFactor{
			Name: FactorTxPattern, Weight: w.TxPattern, Score: score, Confidence: conf, Evidence: summary,
		})
	}
	if ev.Developer != nil {
		score, conf, summary := scoreDeveloper(ev.Developer)
		factors = append(factors, domain.ThreatFactor{
			Name: FactorDeveloper, Weight: w.Developer, Score: score, Confidence: conf, Evidence: summary,
		})
	}
	if ev.Momentum != nil {
		score, conf, summary := scoreMomentum(ev.Momentum)
		factors = append(factors, domain.ThreatFactor{
			Name: FactorMomentum, Weight: w.Momentum, Score: score, Confidence: conf, Evidence: summary,
		})
	}
	return factors
}

// scoreBytecode maps static-analysis facts to a 0-100 score. A honeypot
// signature dominates everything else.
func scoreBytecode(ev *domain.BytecodeEvidence) (float64, float64, string) {
	if ev.HoneypotSignature {
		return 5, 0.95, "sell-path restriction pattern present"
	}

	score := 70.0
	if ev.Verified {
		score += 15
	}
	if ev.HasMintAuthority {
		score -= 25
	}
	if ev.CanSelfDestruct {
		score -= 20
	}
	if ev.ProxyIndirection {
		score -= 10
	}
	score -= minf(float64(ev.HiddenOwnerCalls)*5, 20)

	conf := 0.6
	if ev.Verified {
		conf = 0.9
	}
	return clamp(score), conf, fmt.Sprintf("verified=%t mint_authority=%t self_destruct=%t proxy=%t owner_calls=%d",
		ev.Verified, ev.HasMintAuthority, ev.CanSelfDestruct, ev.ProxyIndirection, ev.HiddenOwnerCalls)
}

// scoreLiquidity maps pool depth and ownership concentration to a 0-100 score.
func scoreLiquidity(ev *domain.LiquidityEvidence) (float64, float64, string) {
	depth := minf(ev.TotalUSD/100_000, 1)
	score := 60*ev.LockedPct + 25*depth + 15 - 30*ev.TopHolderPct - minf(float64(ev.RemovalEvents)*10, 30)

	conf := 0.4
	if ev.TotalUSD > 0 {
		conf = 0.8
	}
	return clamp(score), conf, fmt.Sprintf("locked=%.0f%% depth=$%.0f top_holder=%.0f%% removals_24h=%d",
		ev.LockedPct*100, ev.TotalUSD, ev.TopHolderPct*100, ev.RemovalEvents)
}

// scoreSocial maps social footprint to a 0-100 score. Bot-heavy mention
// volume is worse than silence.
func scoreSocial(ev *domain.SocialEvidence) (float64, float64, string) {
	activity := minf(float64(ev.MentionCount24h)/500, 1)
	diversity := minf(float64(ev.UniqueAuthors)/100, 1)
	score := 50 + 25*activity + 15*diversity + 10*ev.SentimentScore - 30*ev.BotRatio

	conf := 0.3 + 0.5*minf(float64(ev.MentionCount24h)/100, 1)
	return clamp(score), conf, fmt.Sprintf("mentions_24h=%d authors=%d bot_ratio=%.2f sentiment=%.2f",
		ev.MentionCount24h, ev.UniqueAuthors, ev.BotRatio, ev.SentimentScore)
}

// scoreTxPattern maps trading behavior to a 0-100 score. An extreme
// buy/sell ratio is the classic on-chain honeypot trace.
func scoreTxPattern(ev *domain.TxPatternEvidence) (float64, float64, string) {
	score := 60.0
	if ev.BuySellRatio > 10 {
		score -= 40 * minf((ev.BuySellRatio-10)/40, 1)
	}
	score -= 30 * ev.WashTradingScore
	score -= minf(float64(ev.SniperBotCount)*2, 20)
	score += 20 * minf(float64(ev.UniqueBuyers24h)/200, 1)

	return clamp(score), 0.7, fmt.Sprintf("buy_sell_ratio=%.1f buyers_24h=%d wash=%.2f snipers=%d",
		ev.BuySellRatio, ev.UniqueBuyers24h, ev.WashTradingScore, ev.SniperBotCount)
}

// scoreDeveloper maps deployer reputation to a 0-100 score. Prior rugs
// dominate everything else.
func scoreDeveloper(ev *domain.DeveloperEvidence) (float64, float64, string) {
	score := 50.0
	if ev.KnownDeployer {
		score += 10
	}
	if ev.Doxxed {
		score += 20
	}
	score += 15 * minf(float64(ev.WalletAgeDays)/365, 1)
	score -= minf(float64(ev.PriorRugCount)*35, 50)
	if ev.PriorTokenCount > 2 && ev.PriorRugCount == 0 {
		score += 5
	}

	conf := 0.5
	if ev.KnownDeployer {
		conf = 0.75
	}
	return clamp(score), conf, fmt.Sprintf("known=%t doxxed=%t prior_tokens=%d prior_rugs=%d wallet_age_days=%d",
		ev.KnownDeployer, ev.Doxxed, ev.PriorTokenCount, ev.PriorRugCount, ev.WalletAgeDays)
}

// scoreMomentum maps short-horizon market movement to a 0-100 score.
// Monotonic non-decreasing in every input.
func scoreMomentum(ev *domain.MomentumEvidence) (float64, float64, string) {
	score := 50 +
		15*minf(maxf(ev.PriceChange1hPct/50, -1), 1) +
		10*minf(maxf(ev.PriceChange24hPct/200, -1), 1) +
		10*minf(maxf(ev.VolumeChange24hPct/300, -1), 1) +
		15*minf(maxf(ev.HolderGrowth24hPct/100, -1), 1)

	return clamp(score), 0.6, fmt.Sprintf("price_1h=%.1f%% price_24h=%.1f%% volume_24h=%.1f%% holders_24h=%.1f%%",
		ev.PriceChange1hPct, ev.PriceChange24hPct, ev.VolumeChange24hPct, ev.HolderGrowth24hPct)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
