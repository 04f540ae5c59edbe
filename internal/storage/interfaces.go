package storage

import (
	"context"

	"chain-sentry/internal/domain"
)

// ScanStore provides access to queued_scans storage.
type ScanStore interface {
	// Insert adds a new queued scan. Returns ErrDuplicateKey if scan_id exists.
	Insert(ctx context.Context, s *domain.QueuedScan) error

	// Update replaces the mutable fields of an existing scan (status, attempts,
	// timing, error, ledger cross-links). Returns ErrNotFound if not exists.
	Update(ctx context.Context, s *domain.QueuedScan) error

	// GetByID retrieves a scan by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, scanID string) (*domain.QueuedScan, error)

	// GetByStatus retrieves all scans in the given status, ordered by enqueue time ASC.
	GetByStatus(ctx context.Context, status domain.ScanStatus) ([]*domain.QueuedScan, error)

	// GetActive retrieves scans left in pending or processing state, used for
	// crash-recovery rehydration. Ordered by enqueue time ASC.
	GetActive(ctx context.Context) ([]*domain.QueuedScan, error)

	// GetByTimeRange retrieves scans enqueued within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.QueuedScan, error)
}

// ChainStateStore provides access to chain_states storage.
type ChainStateStore interface {
	// Upsert inserts or replaces the state row for a chain.
	Upsert(ctx context.Context, s *domain.ChainState) error

	// Get retrieves the state for a chain. Returns ErrNotFound if not exists.
	Get(ctx context.Context, chain domain.Chain) (*domain.ChainState, error)

	// GetAll retrieves states for every chain that has one.
	GetAll(ctx context.Context) ([]*domain.ChainState, error)
}

// VoteStore provides access to community_votes storage. Append-only.
type VoteStore interface {
	// Insert adds a new vote.
	Insert(ctx context.Context, v *domain.CommunityVote) error

	// GetByTarget retrieves all votes for (target, chain), ordered by time ASC.
	GetByTarget(ctx context.Context, target string, chain domain.Chain) ([]*domain.CommunityVote, error)

	// CountByTarget returns the number of votes for (target, chain).
	CountByTarget(ctx context.Context, target string, chain domain.Chain) (int, error)
}

// LedgerStore provides access to ledger_entries and their audit metadata.
// Entries are append-only: hash and signature fields are never updated, only
// verification_count may increase.
type LedgerStore interface {
	// Insert adds a new entry. Returns ErrDuplicateKey if entry_id exists.
	Insert(ctx context.Context, e *domain.LedgerEntry) error

	// GetByID retrieves an entry by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, entryID string) (*domain.LedgerEntry, error)

	// GetByScanID retrieves the entry for a scan. Returns ErrNotFound if not exists.
	GetByScanID(ctx context.Context, scanID string) (*domain.LedgerEntry, error)

	// IncrementVerificationCount bumps verification_count by one.
	IncrementVerificationCount(ctx context.Context, entryID string) error

	// InsertVerification appends a crowd-audit verification record.
	InsertVerification(ctx context.Context, r *domain.VerificationRecord) error

	// InsertDispute appends a dispute record. Never mutates the entry.
	InsertDispute(ctx context.Context, d *domain.LedgerDispute) error

	// GetDisputes retrieves all disputes for an entry, ordered by time ASC.
	GetDisputes(ctx context.Context, entryID string) ([]*domain.LedgerDispute, error)
}

// ScoreHistoryStore provides access to score_history timeseries storage.
type ScoreHistoryStore interface {
	// InsertBulk adds multiple points.
	InsertBulk(ctx context.Context, points []*domain.ScorePoint) error

	// GetByTarget retrieves all points for (target, chain), ordered by time ASC.
	GetByTarget(ctx context.Context, target string, chain domain.Chain) ([]*domain.ScorePoint, error)
}
