package memory

import (
	"context"
	"sort"
	"sync"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// ScanStore is an in-memory implementation of storage.ScanStore.
type ScanStore struct {
	mu   sync.RWMutex
	data map[string]*domain.QueuedScan // keyed by scan_id
}

// NewScanStore creates a new in-memory scan store.
func NewScanStore() *ScanStore {
	return &ScanStore{
		data: make(map[string]*domain.QueuedScan),
	}
}

// Insert adds a new queued scan. Returns ErrDuplicateKey if scan_id exists.
func (s *ScanStore) Insert(_ context.Context, scan *domain.QueuedScan) error {
	if scan == nil || scan.ScanID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[scan.ScanID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	scanCopy := copyScan(scan)
	s.data[scan.ScanID] = scanCopy
	return nil
}

// Update replaces an existing scan. Returns ErrNotFound if not exists.
func (s *ScanStore) Update(_ context.Context, scan *domain.QueuedScan) error {
	if scan == nil || scan.ScanID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[scan.ScanID]; !exists {
		return storage.ErrNotFound
	}

	s.data[scan.ScanID] = copyScan(scan)
	return nil
}

// GetByID retrieves a scan by its ID. Returns ErrNotFound if not exists.
func (s *ScanStore) GetByID(_ context.Context, scanID string) (*domain.QueuedScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scan, exists := s.data[scanID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyScan(scan), nil
}

// GetByStatus retrieves all scans in the given status, ordered by enqueue time ASC.
func (s *ScanStore) GetByStatus(_ context.Context, status domain.ScanStatus) ([]*domain.QueuedScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.QueuedScan
	for _, scan := range s.data {
		if scan.Status == status {
			result = append(result, copyScan(scan))
		}
	}

	sortByEnqueueTime(result)
	return result, nil
}

// GetActive retrieves scans left in pending or processing state, ordered by
// enqueue time ASC.
func (s *ScanStore) GetActive(_ context.Context) ([]*domain.QueuedScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.QueuedScan
	for _, scan := range s.data {
		if scan.Status == domain.StatusPending || scan.Status == domain.StatusProcessing {
			result = append(result, copyScan(scan))
		}
	}

	sortByEnqueueTime(result)
	return result, nil
}

// GetByTimeRange retrieves scans enqueued within [start, end] (inclusive).
func (s *ScanStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.QueuedScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.QueuedScan
	for _, scan := range s.data {
		if scan.EnqueuedAt >= start && scan.EnqueuedAt <= end {
			result = append(result, copyScan(scan))
		}
	}

	sortByEnqueueTime(result)
	return result, nil
}

// copyScan deep-copies a scan, including its pointer fields.
func copyScan(scan *domain.QueuedScan) *domain.QueuedScan {
	scanCopy := *scan
	if scan.RiskScore != nil {
		v := *scan.RiskScore
		scanCopy.RiskScore = &v
	}
	if scan.CompletedAt != nil {
		v := *scan.CompletedAt
		scanCopy.CompletedAt = &v
	}
	return &scanCopy
}

func sortByEnqueueTime(scans []*domain.QueuedScan) {
	sort.Slice(scans, func(i, j int) bool {
		return scans[i].EnqueuedAt < scans[j].EnqueuedAt
	})
}

// Verify interface compliance at compile time.
var _ storage.ScanStore = (*ScanStore)(nil)
