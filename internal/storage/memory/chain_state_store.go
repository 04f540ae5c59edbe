package memory

import (
	"context"
	"sort"
	"sync"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// ChainStateStore is an in-memory implementation of storage.ChainStateStore.
type ChainStateStore struct {
	mu   sync.RWMutex
	data map[domain.Chain]*domain.ChainState
}

// NewChainStateStore creates a new in-memory chain state store.
func NewChainStateStore() *ChainStateStore {
	return &ChainStateStore{
		data: make(map[domain.Chain]*domain.ChainState),
	}
}

// Upsert inserts or replaces the state row for a chain.
func (s *ChainStateStore) Upsert(_ context.Context, state *domain.ChainState) error {
	if state == nil || !state.Chain.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[state.Chain] = copyState(state)
	return nil
}

// Get retrieves the state for a chain. Returns ErrNotFound if not exists.
func (s *ChainStateStore) Get(_ context.Context, chain domain.Chain) (*domain.ChainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.data[chain]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyState(state), nil
}

// GetAll retrieves states for every chain that has one, ordered by chain name.
func (s *ChainStateStore) GetAll(_ context.Context) ([]*domain.ChainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ChainState, 0, len(s.data))
	for _, state := range s.data {
		result = append(result, copyState(state))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Chain < result[j].Chain
	})
	return result, nil
}

// copyState deep-copies a state, including its endpoint slice.
func copyState(state *domain.ChainState) *domain.ChainState {
	stateCopy := *state
	if state.Endpoints != nil {
		stateCopy.Endpoints = make([]string, len(state.Endpoints))
		copy(stateCopy.Endpoints, state.Endpoints)
	}
	return &stateCopy
}

// Verify interface compliance at compile time.
var _ storage.ChainStateStore = (*ChainStateStore)(nil)
