package domain

// ScorePoint is one row of score history for analytics.
// Corresponds to the score_history table in ClickHouse.
type ScorePoint struct {
	Target     string
	Chain      Chain
	ScanID     string
	BaseScore  float64
	FinalScore float64
	Band       RiskBand
	ComputedAt int64 // Unix timestamp in milliseconds
}
