package domain

// ScanRequest asks for one address on one chain to be scanned.
// Immutable once created; produced by the chain listener or an external caller.
type ScanRequest struct {
	Target    string   // contract/token address
	Chain     Chain    // network the target lives on
	Priority  Priority // queue placement
	Requester string   // "chain-listener", "api", voter identity, ...
	DeepScan  bool     // request the scanner's expensive path
}

// QueuedScan is a ScanRequest tracked by the scan queue.
// Corresponds to the queued_scans table. Mutated only by queue workers.
type QueuedScan struct {
	ScanID      string // PRIMARY KEY, deterministic hash
	Request     ScanRequest
	Status      ScanStatus
	Attempts    int
	MaxAttempts int
	EnqueuedAt  int64  // Unix timestamp in milliseconds
	NotBefore   int64  // earliest dispatch time (ms); backoff gate after a failure
	LastError   string // most recent failure, empty on success
	RiskScore   *float64
	StorageRef  string // ledger storage locator, set after commit
	Signature   string // ledger signature, set after commit
	CompletedAt *int64 // terminal transition time (ms)
}
