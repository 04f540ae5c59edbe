package clickhouse

import (
	"context"
	"fmt"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// ScoreHistoryStore implements storage.ScoreHistoryStore using ClickHouse.
// Score history is an append-only timeseries; the MergeTree ordering key
// handles read-side ordering.
type ScoreHistoryStore struct {
	conn *Conn
}

// NewScoreHistoryStore creates a new ScoreHistoryStore.
func NewScoreHistoryStore(conn *Conn) *ScoreHistoryStore {
	return &ScoreHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// InsertBulk adds multiple points in one batch.
func (s *ScoreHistoryStore) InsertBulk(ctx context.Context, points []*domain.ScorePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO score_history (
			target, chain, scan_id, base_score, final_score, band, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Target, string(p.Chain), p.ScanID,
			p.BaseScore, p.FinalScore, string(p.Band), uint64(p.ComputedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTarget retrieves all points for (target, chain), ordered by time ASC.
func (s *ScoreHistoryStore) GetByTarget(ctx context.Context, target string, chain domain.Chain) ([]*domain.ScorePoint, error) {
	query := `
		SELECT target, chain, scan_id, base_score, final_score, band, computed_at
		FROM score_history
		WHERE target = ? AND chain = ?
		ORDER BY computed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, target, string(chain))
	if err != nil {
		return nil, fmt.Errorf("query score history by target: %w", err)
	}
	defer rows.Close()

	var points []*domain.ScorePoint
	for rows.Next() {
		var p domain.ScorePoint
		var chainStr, bandStr string
		var computedAt uint64

		err := rows.Scan(&p.Target, &chainStr, &p.ScanID, &p.BaseScore, &p.FinalScore, &bandStr, &computedAt)
		if err != nil {
			return nil, fmt.Errorf("scan score history row: %w", err)
		}

		p.Chain = domain.Chain(chainStr)
		p.Band = domain.RiskBand(bandStr)
		p.ComputedAt = int64(computedAt)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score history rows: %w", err)
	}

	return points, nil
}
