package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/storage"
)

func TestChainStateStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewChainStateStore(pool)
	ctx := context.Background()

	state := &domain.ChainState{
		Chain:               domain.ChainSolana,
		Endpoints:           []string{"https://rpc-a.example", "https://rpc-b.example"},
		EndpointIndex:       1,
		LastProcessedHeight: 250000000,
		ConsecutiveErrors:   2,
		Healthy:             true,
		UpdatedAt:           1700000000000,
	}

	err := store.Upsert(ctx, state)
	require.NoError(t, err)

	retrieved, err := store.Get(ctx, domain.ChainSolana)
	require.NoError(t, err)

	assert.Equal(t, domain.ChainSolana, retrieved.Chain)
	assert.Equal(t, state.Endpoints, retrieved.Endpoints)
	assert.Equal(t, 1, retrieved.EndpointIndex)
	assert.Equal(t, int64(250000000), retrieved.LastProcessedHeight)
	assert.Equal(t, 2, retrieved.ConsecutiveErrors)
	assert.True(t, retrieved.Healthy)
	assert.Equal(t, int64(1700000000000), retrieved.UpdatedAt)
}

func TestChainStateStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewChainStateStore(pool)
	ctx := context.Background()

	state := &domain.ChainState{
		Chain:               domain.ChainEthereum,
		Endpoints:           []string{"https://rpc-a.example"},
		LastProcessedHeight: 100,
		Healthy:             true,
		UpdatedAt:           1000,
	}
	require.NoError(t, store.Upsert(ctx, state))

	state.LastProcessedHeight = 200
	state.Healthy = false
	state.ConsecutiveErrors = 5
	state.UpdatedAt = 2000
	require.NoError(t, store.Upsert(ctx, state))

	retrieved, err := store.Get(ctx, domain.ChainEthereum)
	require.NoError(t, err)

	assert.Equal(t, int64(200), retrieved.LastProcessedHeight)
	assert.False(t, retrieved.Healthy)
	assert.Equal(t, 5, retrieved.ConsecutiveErrors)
	assert.Equal(t, int64(2000), retrieved.UpdatedAt)
}

func TestChainStateStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewChainStateStore(pool)
	ctx := context.Background()

	_, err := store.Get(ctx, domain.ChainBase)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChainStateStore_GetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewChainStateStore(pool)
	ctx := context.Background()

	states := []*domain.ChainState{
		{Chain: domain.ChainSolana, Endpoints: []string{"https://sol.example"}, Healthy: true, UpdatedAt: 1000},
		{Chain: domain.ChainBase, Endpoints: []string{"https://base.example"}, Healthy: true, UpdatedAt: 2000},
	}
	for _, s := range states {
		require.NoError(t, store.Upsert(ctx, s))
	}

	all, err := store.GetAll(ctx)
	require.NoError(t, err)

	// Ordered by chain name ASC.
	require.Len(t, all, 2)
	assert.Equal(t, domain.ChainBase, all[0].Chain)
	assert.Equal(t, domain.ChainSolana, all[1].Chain)
}
