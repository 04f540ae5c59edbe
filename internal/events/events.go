// Package events carries the typed notifications the core emits toward the
// external alert fan-out. One buffered channel per event kind keeps consumers
// statically known; publishing is fire-and-forget and never blocks a worker.
package events

import "chain-sentry/internal/domain"

// ScanQueued is emitted when a new scan request enters the backlog.
type ScanQueued struct {
	ScanID  string
	Request domain.ScanRequest
	At      int64 // Unix timestamp in milliseconds
}

// ScanCompleted is emitted when a worker finishes a scan successfully.
type ScanCompleted struct {
	ScanID     string
	Target     string
	Chain      domain.Chain
	RiskScore  float64
	DurationMs int64
}

// ScanFailed is emitted when a scan exhausts its retry budget.
type ScanFailed struct {
	ScanID   string
	Target   string
	Chain    domain.Chain
	Reason   string
	Attempts int
}

// HighRiskDetected is emitted when the scanner itself reports a score at or
// below the high-risk threshold.
type HighRiskDetected struct {
	ScanID    string
	Target    string
	Chain     domain.Chain
	RiskScore float64
}

// HighRiskAlert is emitted when the composite final score lands in the
// high-risk band.
type HighRiskAlert struct {
	Target     string
	Chain      domain.Chain
	FinalScore float64
	Category   domain.Category
}

// AlphaSignalAlert is emitted when the composite final score lands in the
// potential-alpha band.
type AlphaSignalAlert struct {
	Target     string
	Chain      domain.Chain
	FinalScore float64
	Category   domain.Category
}

// LedgerCommitted is emitted when a scan result is sealed into the ledger.
type LedgerCommitted struct {
	EntryID    string
	ScanID     string
	DataHash   string
	StorageRef string
}
