package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL. Append-only:
// the UPDATE surface is limited to the verification counter.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// Insert adds a new entry. Returns ErrDuplicateKey if entry_id exists.
func (s *LedgerStore) Insert(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (
			entry_id, scan_id, data_hash, storage_ref, signature,
			public_key, scanner_id, created_at, verification_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EntryID,
		e.ScanID,
		e.DataHash,
		e.StorageRef,
		e.Signature,
		e.PublicKey,
		e.ScannerID,
		e.CreatedAt,
		e.VerificationCount,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByID retrieves an entry by its ID. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetByID(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	query := `
		SELECT entry_id, scan_id, data_hash, storage_ref, signature,
		       public_key, scanner_id, created_at, verification_count
		FROM ledger_entries
		WHERE entry_id = $1
	`

	e, err := scanEntry(s.pool.QueryRow(ctx, query, entryID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ledger entry by id: %w", err)
	}
	return e, nil
}

// GetByScanID retrieves the entry for a scan. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetByScanID(ctx context.Context, scanID string) (*domain.LedgerEntry, error) {
	query := `
		SELECT entry_id, scan_id, data_hash, storage_ref, signature,
		       public_key, scanner_id, created_at, verification_count
		FROM ledger_entries
		WHERE scan_id = $1
	`

	e, err := scanEntry(s.pool.QueryRow(ctx, query, scanID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ledger entry by scan id: %w", err)
	}
	return e, nil
}

// IncrementVerificationCount bumps verification_count by one.
func (s *LedgerStore) IncrementVerificationCount(ctx context.Context, entryID string) error {
	query := `UPDATE ledger_entries SET verification_count = verification_count + 1 WHERE entry_id = $1`

	tag, err := s.pool.Exec(ctx, query, entryID)
	if err != nil {
		return fmt.Errorf("increment verification count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// InsertVerification appends a crowd-audit verification record.
func (s *LedgerStore) InsertVerification(ctx context.Context, r *domain.VerificationRecord) error {
	query := `
		INSERT INTO ledger_verifications (entry_id, verifier, verdict, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, r.EntryID, r.Verifier, string(r.Verdict), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

// InsertDispute appends a dispute record. Never mutates the entry.
func (s *LedgerStore) InsertDispute(ctx context.Context, d *domain.LedgerDispute) error {
	query := `
		INSERT INTO ledger_disputes (dispute_id, entry_id, disputer, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query, d.DisputeID, d.EntryID, d.Disputer, d.Reason, d.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

// GetDisputes retrieves all disputes for an entry, ordered by time ASC.
func (s *LedgerStore) GetDisputes(ctx context.Context, entryID string) ([]*domain.LedgerDispute, error) {
	query := `
		SELECT dispute_id, entry_id, disputer, reason, created_at
		FROM ledger_disputes
		WHERE entry_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("get disputes: %w", err)
	}
	defer rows.Close()

	var disputes []*domain.LedgerDispute
	for rows.Next() {
		var d domain.LedgerDispute
		err := rows.Scan(&d.DisputeID, &d.EntryID, &d.Disputer, &d.Reason, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger_disputes row: %w", err)
		}
		disputes = append(disputes, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger_disputes rows: %w", err)
	}

	return disputes, nil
}

// scanEntry scans a single row into a LedgerEntry.
func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := row.Scan(
		&e.EntryID,
		&e.ScanID,
		&e.DataHash,
		&e.StorageRef,
		&e.Signature,
		&e.PublicKey,
		&e.ScannerID,
		&e.CreatedAt,
		&e.VerificationCount,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
