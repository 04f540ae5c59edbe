package domain

// LedgerEntry proves a scan result existed and was not later altered.
// Corresponds to the ledger_entries table. Append-only: DataHash, Signature
// and PublicKey are write-once; only VerificationCount may grow.
type LedgerEntry struct {
	EntryID           string // PRIMARY KEY, deterministic hash
	ScanID            string // originating queued scan
	DataHash          string // hex SHA-256 of the canonical payload
	StorageRef        string // content-addressed locator in blob storage
	Signature         string // hex ed25519 signature over the signed envelope
	PublicKey         string // hex ed25519 public key of the signer
	ScannerID         string
	CreatedAt         int64 // Unix timestamp in milliseconds
	VerificationCount int64
}

// LedgerDispute records disagreement with an entry without touching it.
// Additive metadata for human review, never an edit path.
type LedgerDispute struct {
	DisputeID string
	EntryID   string
	Disputer  string
	Reason    string
	CreatedAt int64
}

// Verdict is a third-party verifier's judgement of an entry.
type Verdict string

const (
	VerdictValid    Verdict = "valid"
	VerdictInvalid  Verdict = "invalid"
	VerdictDisputed Verdict = "disputed"
)

// IsValid checks if the verdict is a valid value.
func (v Verdict) IsValid() bool {
	return v == VerdictValid || v == VerdictInvalid || v == VerdictDisputed
}

// VerificationRecord is one crowd-audit vote against a ledger entry.
type VerificationRecord struct {
	EntryID   string
	Verifier  string
	Verdict   Verdict
	CreatedAt int64
}
