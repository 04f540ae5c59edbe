package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"chain-sentry/internal/domain"
)

// ComputeScanID computes a deterministic scan_id using SHA256.
// Formula: SHA256(target|chain|requester|enqueue_ns)
// Returns hex-encoded hash (64 characters).
func ComputeScanID(target string, chain domain.Chain, requester string, enqueueNs int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d", target, string(chain), requester, enqueueNs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeEntryID computes a deterministic ledger entry_id using SHA256.
// Formula: SHA256(scan_id|data_hash)
func ComputeEntryID(scanID, dataHash string) string {
	data := fmt.Sprintf("%s|%s", scanID, dataHash)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeDisputeID computes a deterministic dispute_id using SHA256.
// Formula: SHA256(entry_id|disputer|created_ms)
func ComputeDisputeID(entryID, disputer string, createdMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", entryID, disputer, createdMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
