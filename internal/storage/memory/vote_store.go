package memory

import (
	"context"
	"sort"
	"sync"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// voteKey identifies the vote list for one target on one chain.
type voteKey struct {
	target string
	chain  domain.Chain
}

// VoteStore is an in-memory implementation of storage.VoteStore.
type VoteStore struct {
	mu   sync.RWMutex
	data map[voteKey][]*domain.CommunityVote
}

// NewVoteStore creates a new in-memory vote store.
func NewVoteStore() *VoteStore {
	return &VoteStore{
		data: make(map[voteKey][]*domain.CommunityVote),
	}
}

// Insert adds a new vote. Append-only: duplicates by the same voter are kept.
func (s *VoteStore) Insert(_ context.Context, v *domain.CommunityVote) error {
	if v == nil || v.Voter == "" || v.Target == "" || !v.Chain.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey{target: v.Target, chain: v.Chain}
	voteCopy := *v
	s.data[key] = append(s.data[key], &voteCopy)
	return nil
}

// GetByTarget retrieves all votes for (target, chain), ordered by time ASC.
func (s *VoteStore) GetByTarget(_ context.Context, target string, chain domain.Chain) ([]*domain.CommunityVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	votes := s.data[voteKey{target: target, chain: chain}]
	result := make([]*domain.CommunityVote, 0, len(votes))
	for _, v := range votes {
		voteCopy := *v
		result = append(result, &voteCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

// CountByTarget returns the number of votes for (target, chain).
func (s *VoteStore) CountByTarget(_ context.Context, target string, chain domain.Chain) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data[voteKey{target: target, chain: chain}]), nil
}

// Verify interface compliance at compile time.
var _ storage.VoteStore = (*VoteStore)(nil)
