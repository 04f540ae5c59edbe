package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// ScanStore implements storage.ScanStore using PostgreSQL.
type ScanStore struct {
	pool *Pool
}

// NewScanStore creates a new ScanStore.
func NewScanStore(pool *Pool) *ScanStore {
	return &ScanStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScanStore = (*ScanStore)(nil)

const scanColumns = `
	scan_id, target, chain, priority, requester, deep_scan,
	status, attempts, max_attempts, enqueued_at, not_before,
	last_error, risk_score, storage_ref, signature, completed_at
`

// Insert adds a new queued scan. Returns ErrDuplicateKey if scan_id exists.
func (s *ScanStore) Insert(ctx context.Context, scan *domain.QueuedScan) error {
	query := `
		INSERT INTO queued_scans (
			scan_id, target, chain, priority, requester, deep_scan,
			status, attempts, max_attempts, enqueued_at, not_before,
			last_error, risk_score, storage_ref, signature, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query,
		scan.ScanID,
		scan.Request.Target,
		string(scan.Request.Chain),
		string(scan.Request.Priority),
		scan.Request.Requester,
		scan.Request.DeepScan,
		string(scan.Status),
		scan.Attempts,
		scan.MaxAttempts,
		scan.EnqueuedAt,
		scan.NotBefore,
		scan.LastError,
		scan.RiskScore,
		scan.StorageRef,
		scan.Signature,
		scan.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of an existing scan. Returns ErrNotFound
// if the scan does not exist.
func (s *ScanStore) Update(ctx context.Context, scan *domain.QueuedScan) error {
	query := `
		UPDATE queued_scans SET
			status = $2, attempts = $3, not_before = $4, last_error = $5,
			risk_score = $6, storage_ref = $7, signature = $8, completed_at = $9
		WHERE scan_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		scan.ScanID,
		string(scan.Status),
		scan.Attempts,
		scan.NotBefore,
		scan.LastError,
		scan.RiskScore,
		scan.StorageRef,
		scan.Signature,
		scan.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a scan by its ID. Returns ErrNotFound if not exists.
func (s *ScanStore) GetByID(ctx context.Context, scanID string) (*domain.QueuedScan, error) {
	query := `SELECT ` + scanColumns + ` FROM queued_scans WHERE scan_id = $1`

	row := s.pool.QueryRow(ctx, query, scanID)
	scan, err := scanRow(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get scan by id: %w", err)
	}
	return scan, nil
}

// GetByStatus retrieves all scans in the given status, ordered by enqueue time ASC.
func (s *ScanStore) GetByStatus(ctx context.Context, status domain.ScanStatus) ([]*domain.QueuedScan, error) {
	query := `
		SELECT ` + scanColumns + `
		FROM queued_scans
		WHERE status = $1
		ORDER BY enqueued_at ASC, scan_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("get scans by status: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// GetActive retrieves scans left in pending or processing state, ordered by
// enqueue time ASC.
func (s *ScanStore) GetActive(ctx context.Context) ([]*domain.QueuedScan, error) {
	query := `
		SELECT ` + scanColumns + `
		FROM queued_scans
		WHERE status IN ('pending', 'processing')
		ORDER BY enqueued_at ASC, scan_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active scans: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// GetByTimeRange retrieves scans enqueued within [start, end] (inclusive).
func (s *ScanStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.QueuedScan, error) {
	query := `
		SELECT ` + scanColumns + `
		FROM queued_scans
		WHERE enqueued_at >= $1 AND enqueued_at <= $2
		ORDER BY enqueued_at ASC, scan_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get scans by time range: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRow scans a single row into a QueuedScan.
func scanRow(row pgx.Row) (*domain.QueuedScan, error) {
	var scan domain.QueuedScan
	var chainStr, priorityStr, statusStr string

	err := row.Scan(
		&scan.ScanID,
		&scan.Request.Target,
		&chainStr,
		&priorityStr,
		&scan.Request.Requester,
		&scan.Request.DeepScan,
		&statusStr,
		&scan.Attempts,
		&scan.MaxAttempts,
		&scan.EnqueuedAt,
		&scan.NotBefore,
		&scan.LastError,
		&scan.RiskScore,
		&scan.StorageRef,
		&scan.Signature,
		&scan.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	scan.Request.Chain = domain.Chain(chainStr)
	scan.Request.Priority = domain.Priority(priorityStr)
	scan.Status = domain.ScanStatus(statusStr)
	return &scan, nil
}

// scanRows scans multiple rows into a slice of QueuedScan.
func scanRows(rows pgx.Rows) ([]*domain.QueuedScan, error) {
	var scans []*domain.QueuedScan

	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued_scans row: %w", err)
		}
		scans = append(scans, scan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued_scans rows: %w", err)
	}

	return scans, nil
}
