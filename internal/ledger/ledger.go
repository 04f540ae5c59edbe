// Package ledger makes every finalized scan result independently verifiable
// and immutable: canonical serialization, SHA-256 hashing, ed25519 signing,
// redundant blob storage and third-party re-verification. Nothing in this
// package ever rewrites history; corrections happen as new entries plus
// dispute records.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/events"
	"chain-sentry/internal/idhash"
	"chain-sentry/internal/ledger/blobstore"
	"chain-sentry/internal/observability"
	"chain-sentry/internal/storage"
)

// signedEnvelope is the structure the ledger signs. It is rebuilt from the
// entry's own fields during verification, so a verifier needs nothing beyond
// the entry and the retrieved payload.
type signedEnvelope struct {
	DataHash    string `json:"data_hash"`
	ScannerID   string `json:"scanner_id"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Options contains configuration for creating a Service.
type Options struct {
	Entries storage.LedgerStore
	Scans   storage.ScanStore // for cross-linking storage ref back onto the scan
	Blobs   *blobstore.Redundant
	Signer  *Signer
	Bus     *events.Bus
	Metrics *observability.Metrics // optional
	Logger  zerolog.Logger
	Clock   func() time.Time
}

// Service is the transparency ledger.
type Service struct {
	entries storage.LedgerStore
	scans   storage.ScanStore
	blobs   *blobstore.Redundant
	signer  *Signer
	bus     *events.Bus
	metrics *observability.Metrics
	logger  zerolog.Logger
	clock   func() time.Time
}

// New creates a ledger service.
func New(opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		entries: opts.Entries,
		scans:   opts.Scans,
		blobs:   opts.Blobs,
		signer:  opts.Signer,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		logger:  opts.Logger.With().Str("component", "ledger").Logger(),
		clock:   clock,
	}
}

// StoreScanResult seals a finalized scan result into the ledger: canonical
// serialization, hash, signature, redundant upload, entry insert, and a
// cross-link back onto the originating scan. Failure of every storage
// backend is a hard error, never swallowed.
func (s *Service) StoreScanResult(ctx context.Context, scanID string, result *domain.ScanResult) (*domain.LedgerEntry, error) {
	canonical, err := idhash.CanonicalJSON(result)
	if err != nil {
		return nil, fmt.Errorf("canonicalize scan result: %w", err)
	}
	dataHash := idhash.HashBytes(canonical)

	now := s.clock().UnixMilli()
	envelope, err := idhash.CanonicalJSON(signedEnvelope{
		DataHash:    dataHash,
		ScannerID:   result.ScannerID,
		TimestampMs: now,
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalize envelope: %w", err)
	}

	locator, err := s.blobs.Put(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("store payload: %w", err)
	}

	entry := &domain.LedgerEntry{
		EntryID:    idhash.ComputeEntryID(scanID, dataHash),
		ScanID:     scanID,
		DataHash:   dataHash,
		StorageRef: locator,
		Signature:  s.signer.Sign(envelope),
		PublicKey:  s.signer.PublicKeyHex(),
		ScannerID:  result.ScannerID,
		CreatedAt:  now,
	}
	if err := s.entries.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("persist ledger entry: %w", err)
	}

	s.crossLink(ctx, scanID, entry)

	s.bus.PublishLedgerCommitted(events.LedgerCommitted{
		EntryID:    entry.EntryID,
		ScanID:     scanID,
		DataHash:   dataHash,
		StorageRef: locator,
	})
	s.logger.Info().Str("entry_id", entry.EntryID).Str("scan_id", scanID).
		Str("locator", locator).Msg("ledger entry committed")
	return entry, nil
}

// crossLink writes the storage ref and signature back onto the scan row.
// Best effort: the entry itself is already durable.
func (s *Service) crossLink(ctx context.Context, scanID string, entry *domain.LedgerEntry) {
	scan, err := s.scans.GetByID(ctx, scanID)
	if err != nil {
		s.logger.Warn().Err(err).Str("scan_id", scanID).Msg("cross-link: load scan failed")
		return
	}
	scan.StorageRef = entry.StorageRef
	scan.Signature = entry.Signature
	if err := s.scans.Update(ctx, scan); err != nil {
		s.logger.Warn().Err(err).Str("scan_id", scanID).Msg("cross-link: update scan failed")
	}
}

// VerifyResult is the outcome of re-deriving an entry's hash and signature.
type VerifyResult struct {
	Valid  bool
	Reason string // human-readable, empty when valid
	Entry  *domain.LedgerEntry
}

// VerifyEntry retrieves the payload by its locator, recomputes the hash and
// signature, and compares both against the stored entry. A mismatch is
// reported, never repaired. When verifier is non-empty, a verification
// record is appended and the entry's verification count incremented.
//
// Payload retrieval failure across every backend is a transport error, not
// an integrity verdict, and is returned as an error.
func (s *Service) VerifyEntry(ctx context.Context, entryID, verifier string) (*VerifyResult, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("load entry %s: %w", entryID, err)
	}

	payload, err := s.blobs.Get(ctx, entry.StorageRef)
	if err != nil {
		return nil, fmt.Errorf("retrieve payload: %w", err)
	}

	result := s.check(entry, payload)

	verdict := domain.VerdictValid
	if !result.Valid {
		verdict = domain.VerdictInvalid
	}
	if s.metrics != nil {
		s.metrics.LedgerVerifications.WithLabelValues(string(verdict)).Inc()
	}

	if verifier != "" {
		record := &domain.VerificationRecord{
			EntryID:   entryID,
			Verifier:  verifier,
			Verdict:   verdict,
			CreatedAt: s.clock().UnixMilli(),
		}
		if err := s.entries.InsertVerification(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("entry_id", entryID).Msg("record verification failed")
		}
		if err := s.entries.IncrementVerificationCount(ctx, entryID); err != nil {
			s.logger.Warn().Err(err).Str("entry_id", entryID).Msg("bump verification count failed")
		}
	}

	if !result.Valid {
		s.logger.Error().Str("entry_id", entryID).Str("reason", result.Reason).
			Msg("ledger entry failed verification")
	}
	return result, nil
}

// check re-derives hash and signature from the retrieved payload.
func (s *Service) check(entry *domain.LedgerEntry, payload []byte) *VerifyResult {
	recomputed := idhash.HashBytes(payload)
	if recomputed != entry.DataHash {
		return &VerifyResult{
			Valid: false,
			Reason: fmt.Sprintf("payload hash mismatch: stored %s, recomputed %s",
				entry.DataHash, recomputed),
			Entry: entry,
		}
	}

	envelope, err := idhash.CanonicalJSON(signedEnvelope{
		DataHash:    entry.DataHash,
		ScannerID:   entry.ScannerID,
		TimestampMs: entry.CreatedAt,
	})
	if err != nil {
		return &VerifyResult{Valid: false, Reason: "envelope canonicalization failed", Entry: entry}
	}
	if ok, reason := VerifySignature(entry.PublicKey, entry.Signature, envelope); !ok {
		return &VerifyResult{Valid: false, Reason: reason, Entry: entry}
	}
	return &VerifyResult{Valid: true, Entry: entry}
}

// Dispute appends a dispute record against an entry. The entry itself is
// never altered; disputes are additive metadata for human review.
func (s *Service) Dispute(ctx context.Context, entryID, disputer, reason string) (*domain.LedgerDispute, error) {
	if disputer == "" || reason == "" {
		return nil, fmt.Errorf("%w: disputer and reason are required", storage.ErrInvalidInput)
	}
	if _, err := s.entries.GetByID(ctx, entryID); err != nil {
		return nil, fmt.Errorf("load entry %s: %w", entryID, err)
	}

	now := s.clock().UnixMilli()
	dispute := &domain.LedgerDispute{
		DisputeID: idhash.ComputeDisputeID(entryID, disputer, now),
		EntryID:   entryID,
		Disputer:  disputer,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := s.entries.InsertDispute(ctx, dispute); err != nil {
		return nil, fmt.Errorf("persist dispute: %w", err)
	}
	s.logger.Warn().Str("entry_id", entryID).Str("disputer", disputer).Msg("ledger entry disputed")
	return dispute, nil
}
