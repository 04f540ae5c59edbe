package postgres

import (
	"context"
	"fmt"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

// ChainStateStore implements storage.ChainStateStore using PostgreSQL.
type ChainStateStore struct {
	pool *Pool
}

// NewChainStateStore creates a new ChainStateStore.
func NewChainStateStore(pool *Pool) *ChainStateStore {
	return &ChainStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ChainStateStore = (*ChainStateStore)(nil)

// Upsert inserts or replaces the state row for a chain.
func (s *ChainStateStore) Upsert(ctx context.Context, state *domain.ChainState) error {
	query := `
		INSERT INTO chain_states (
			chain, endpoints, endpoint_index, last_processed_height,
			consecutive_errors, healthy, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chain) DO UPDATE SET
			endpoints = EXCLUDED.endpoints,
			endpoint_index = EXCLUDED.endpoint_index,
			last_processed_height = EXCLUDED.last_processed_height,
			consecutive_errors = EXCLUDED.consecutive_errors,
			healthy = EXCLUDED.healthy,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		string(state.Chain),
		state.Endpoints,
		state.EndpointIndex,
		state.LastProcessedHeight,
		state.ConsecutiveErrors,
		state.Healthy,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chain state: %w", err)
	}
	return nil
}

// Get retrieves the state for a chain. Returns ErrNotFound if not exists.
func (s *ChainStateStore) Get(ctx context.Context, chain domain.Chain) (*domain.ChainState, error) {
	query := `
		SELECT chain, endpoints, endpoint_index, last_processed_height,
		       consecutive_errors, healthy, updated_at
		FROM chain_states
		WHERE chain = $1
	`

	var state domain.ChainState
	var chainStr string
	err := s.pool.QueryRow(ctx, query, string(chain)).Scan(
		&chainStr,
		&state.Endpoints,
		&state.EndpointIndex,
		&state.LastProcessedHeight,
		&state.ConsecutiveErrors,
		&state.Healthy,
		&state.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get chain state: %w", err)
	}
	state.Chain = domain.Chain(chainStr)
	return &state, nil
}

// GetAll retrieves states for every chain that has one.
func (s *ChainStateStore) GetAll(ctx context.Context) ([]*domain.ChainState, error) {
	query := `
		SELECT chain, endpoints, endpoint_index, last_processed_height,
		       consecutive_errors, healthy, updated_at
		FROM chain_states
		ORDER BY chain ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all chain states: %w", err)
	}
	defer rows.Close()

	var states []*domain.ChainState
	for rows.Next() {
		var state domain.ChainState
		var chainStr string
		err := rows.Scan(
			&chainStr,
			&state.Endpoints,
			&state.EndpointIndex,
			&state.LastProcessedHeight,
			&state.ConsecutiveErrors,
			&state.Healthy,
			&state.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chain_states row: %w", err)
		}
		state.Chain = domain.Chain(chainStr)
		states = append(states, &state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain_states rows: %w", err)
	}

	return states, nil
}
