package domain

// RiskBand classifies a final score on the Alpha-to-Risk spectrum.
type RiskBand string

const (
	BandHighRisk       RiskBand = "high_risk"       // 0-30, auto-alert
	BandNeutral        RiskBand = "neutral"         // 31-70
	BandPotentialAlpha RiskBand = "potential_alpha" // 71-100, fast-tracked
)

// String returns the string representation of RiskBand.
func (b RiskBand) String() string {
	return string(b)
}

// IsValid checks if the band is a valid value.
func (b RiskBand) IsValid() bool {
	return b == BandHighRisk || b == BandNeutral || b == BandPotentialAlpha
}

// Category names the dominant threat or opportunity pattern of a score.
type Category string

const (
	CategoryHoneypot      Category = "honeypot"
	CategoryRugPull       Category = "rug_pull"
	CategoryAlphaSignal   Category = "alpha_signal"
	CategoryViralOutbreak Category = "viral_outbreak"
	CategoryClean         Category = "clean"
	CategoryUnknown       Category = "unknown"
)

// String returns the string representation of Category.
func (c Category) String() string {
	return string(c)
}

// ThreatFactor is one weighted component of a composite score.
// Ephemeral; recomputed per scoring call.
type ThreatFactor struct {
	Name       string
	Weight     float64 // 0..1, from configuration
	Score      float64 // 0..100
	Confidence float64 // 0..1
	Evidence   string  // human-readable summary of what drove the score
}

// ThreatScore is the composite result of one scoring call.
// Derived data; the ledger entry, not this struct, is the source of truth.
type ThreatScore struct {
	Target     string
	Chain      Chain
	BaseScore  float64 // weighted factor average before community blending
	FinalScore float64 // after the 70/30 community blend
	Band       RiskBand
	Category   Category
	Confidence float64
	Factors    []ThreatFactor
	VoteCount  int
	ComputedAt int64 // Unix timestamp in milliseconds
}
