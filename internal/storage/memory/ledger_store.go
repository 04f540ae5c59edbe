package memory

import (
	"context"
	"sort"
	"sync"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
// Entries are append-only: nothing here rewrites hash or signature fields,
// only the verification count may grow.
type LedgerStore struct {
	mu            sync.RWMutex
	entries       map[string]*domain.LedgerEntry // keyed by entry_id
	byScan        map[string]string              // scan_id -> entry_id
	disputes      map[string][]*domain.LedgerDispute
	verifications map[string][]*domain.VerificationRecord
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		entries:       make(map[string]*domain.LedgerEntry),
		byScan:        make(map[string]string),
		disputes:      make(map[string][]*domain.LedgerDispute),
		verifications: make(map[string][]*domain.VerificationRecord),
	}
}

// Insert adds a new entry. Returns ErrDuplicateKey if entry_id exists.
func (s *LedgerStore) Insert(_ context.Context, e *domain.LedgerEntry) error {
	if e == nil || e.EntryID == "" || e.ScanID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.EntryID]; exists {
		return storage.ErrDuplicateKey
	}

	entryCopy := *e
	s.entries[e.EntryID] = &entryCopy
	s.byScan[e.ScanID] = e.EntryID
	return nil
}

// GetByID retrieves an entry by its ID. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetByID(_ context.Context, entryID string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[entryID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	entryCopy := *e
	return &entryCopy, nil
}

// GetByScanID retrieves the entry for a scan. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetByScanID(_ context.Context, scanID string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entryID, exists := s.byScan[scanID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	entryCopy := *s.entries[entryID]
	return &entryCopy, nil
}

// IncrementVerificationCount bumps verification_count by one.
func (s *LedgerStore) IncrementVerificationCount(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[entryID]
	if !exists {
		return storage.ErrNotFound
	}
	e.VerificationCount++
	return nil
}

// InsertVerification appends a crowd-audit verification record.
func (s *LedgerStore) InsertVerification(_ context.Context, r *domain.VerificationRecord) error {
	if r == nil || r.EntryID == "" || r.Verifier == "" || !r.Verdict.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *r
	s.verifications[r.EntryID] = append(s.verifications[r.EntryID], &recordCopy)
	return nil
}

// InsertDispute appends a dispute record. Never mutates the entry.
func (s *LedgerStore) InsertDispute(_ context.Context, d *domain.LedgerDispute) error {
	if d == nil || d.DisputeID == "" || d.EntryID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	disputeCopy := *d
	s.disputes[d.EntryID] = append(s.disputes[d.EntryID], &disputeCopy)
	return nil
}

// GetDisputes retrieves all disputes for an entry, ordered by time ASC.
func (s *LedgerStore) GetDisputes(_ context.Context, entryID string) ([]*domain.LedgerDispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	disputes := s.disputes[entryID]
	result := make([]*domain.LedgerDispute, 0, len(disputes))
	for _, d := range disputes {
		disputeCopy := *d
		result = append(result, &disputeCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.LedgerStore = (*LedgerStore)(nil)
