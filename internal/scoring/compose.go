package scoring

import "chain-sentry/internal/domain"

// Score band thresholds on the Alpha-to-Risk spectrum.
const (
	HighRiskThreshold = 30.0 // final score <= 30 is high risk
	AlphaThreshold    = 71.0 // final score >= 71 is potential alpha
)

// Blend ratios for community input. The community shifts the score but can
// never fully override the model.
const (
	BaseBlendWeight      = 0.7
	CommunityBlendWeight = 0.3
)

// Category trigger thresholds.
const (
	honeypotBytecodeMax  = 20.0 // bytecode factor at or below forces honeypot
	rugPullLiquidityMax  = 20.0 // liquidity factor at or below forces rug_pull
	momentumCategoryMin  = 85.0 // momentum factor at or above suggests alpha
)

// ComputeBaseScore returns the weighted average of factor scores,
// renormalized by the sum of weights actually present so a missing factor
// does not drag the composite toward zero. Returns (0, false) when no
// factor carries weight.
func ComputeBaseScore(factors []domain.ThreatFactor) (float64, bool) {
	var weighted, total float64
	for _, f := range factors {
		weighted += f.Weight * f.Score
		total += f.Weight
	}
	if total == 0 {
		return 0, false
	}
	return weighted / total, true
}

// BlendVotes folds a reputation-weighted community average into the base
// score. With no votes the base score passes through unchanged.
func BlendVotes(baseScore float64, votes []weightedVote) float64 {
	var weighted, total float64
	for _, v := range votes {
		weighted += v.effectiveWeight * v.score
		total += v.effectiveWeight
	}
	if total == 0 {
		return baseScore
	}
	community := weighted / total
	return BaseBlendWeight*baseScore + CommunityBlendWeight*community
}

// weightedVote is a community vote with reputation already applied.
type weightedVote struct {
	score           float64
	effectiveWeight float64 // vote weight x voter reputation
}

// ClassifyBand maps a final score to its risk band.
func ClassifyBand(finalScore float64) domain.RiskBand {
	switch {
	case finalScore <= HighRiskThreshold:
		return domain.BandHighRisk
	case finalScore >= AlphaThreshold:
		return domain.BandPotentialAlpha
	default:
		return domain.BandNeutral
	}
}

// ClassifyCategory infers the dominant pattern from factor scores and the
// final composite. A near-zero bytecode score means honeypot regardless of
// the band; a near-zero liquidity score means rug pull.
func ClassifyCategory(factors []domain.ThreatFactor, finalScore float64) domain.Category {
	byName := make(map[string]float64, len(factors))
	for _, f := range factors {
		byName[f.Name] = f.Score
	}

	if score, ok := byName[FactorBytecode]; ok && score <= honeypotBytecodeMax {
		return domain.CategoryHoneypot
	}
	if score, ok := byName[FactorLiquidity]; ok && score <= rugPullLiquidityMax {
		return domain.CategoryRugPull
	}
	if score, ok := byName[FactorMomentum]; ok && score >= momentumCategoryMin {
		if finalScore >= AlphaThreshold {
			return domain.CategoryViralOutbreak
		}
		return domain.CategoryAlphaSignal
	}
	switch {
	case finalScore >= AlphaThreshold:
		return domain.CategoryAlphaSignal
	case finalScore > HighRiskThreshold:
		return domain.CategoryClean
	default:
		return domain.CategoryUnknown
	}
}

// ComputeConfidence combines average factor confidence with vote
// corroboration: more votes raise confidence independent of the score.
func ComputeConfidence(factors []domain.ThreatFactor, voteCount int) float64 {
	if len(factors) == 0 {
		return 0
	}
	var sum float64
	for _, f := range factors {
		sum += f.Confidence
	}
	avg := sum / float64(len(factors))
	corroboration := minf(float64(voteCount)/10, 1)
	return 0.8*avg + 0.2*corroboration
}
