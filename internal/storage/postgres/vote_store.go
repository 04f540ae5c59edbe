package postgres

import (
	"context"
	"fmt"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// VoteStore implements storage.VoteStore using PostgreSQL. Append-only.
type VoteStore struct {
	pool *Pool
}

// NewVoteStore creates a new VoteStore.
func NewVoteStore(pool *Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VoteStore = (*VoteStore)(nil)

// Insert adds a new vote.
func (s *VoteStore) Insert(ctx context.Context, v *domain.CommunityVote) error {
	query := `
		INSERT INTO community_votes (
			voter, target, chain, score, weight, comment, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		v.Voter,
		v.Target,
		string(v.Chain),
		v.Score,
		v.Weight,
		v.Comment,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// GetByTarget retrieves all votes for (target, chain), ordered by time ASC.
func (s *VoteStore) GetByTarget(ctx context.Context, target string, chain domain.Chain) ([]*domain.CommunityVote, error) {
	query := `
		SELECT voter, target, chain, score, weight, comment, created_at
		FROM community_votes
		WHERE target = $1 AND chain = $2
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, target, string(chain))
	if err != nil {
		return nil, fmt.Errorf("get votes by target: %w", err)
	}
	defer rows.Close()

	var votes []*domain.CommunityVote
	for rows.Next() {
		var v domain.CommunityVote
		var chainStr string
		err := rows.Scan(&v.Voter, &v.Target, &chainStr, &v.Score, &v.Weight, &v.Comment, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan community_votes row: %w", err)
		}
		v.Chain = domain.Chain(chainStr)
		votes = append(votes, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate community_votes rows: %w", err)
	}

	return votes, nil
}

// CountByTarget returns the number of votes for (target, chain).
func (s *VoteStore) CountByTarget(ctx context.Context, target string, chain domain.Chain) (int, error) {
	query := `SELECT COUNT(*) FROM community_votes WHERE target = $1 AND chain = $2`

	var count int
	if err := s.pool.QueryRow(ctx, query, target, string(chain)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count votes by target: %w", err)
	}
	return count, nil
}
