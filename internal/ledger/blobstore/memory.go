package blobstore

import (
	"context"
	"fmt"
	"sync"

	"chain-sentry/internal/idhash"
)

// MemoryBackend is an in-memory Backend, used in tests and as a hot cache
// tier in front of slower backends.
type MemoryBackend struct {
	name string
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an in-memory backend.
func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{name: name, data: make(map[string][]byte)}
}

// Name implements Backend.
func (b *MemoryBackend) Name() string { return b.name }

// Put implements Backend.
func (b *MemoryBackend) Put(_ context.Context, payload []byte) (string, error) {
	locator := idhash.HashBytes(payload)
	b.mu.Lock()
	defer b.mu.Unlock()
	// Store a copy to prevent external mutation
	stored := make([]byte, len(payload))
	copy(stored, payload)
	b.data[locator] = stored
	return locator, nil
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, locator string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	payload, ok := b.data[locator]
	if !ok {
		return nil, fmt.Errorf("backend %s: locator %s not found", b.name, locator)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Probe implements Backend; memory is always reachable.
func (b *MemoryBackend) Probe(context.Context) error { return nil }

// Overwrite replaces the payload stored at a locator without re-deriving the
// address. Exists to simulate backend corruption in integrity tests.
func (b *MemoryBackend) Overwrite(locator string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[locator] = payload
}

// Verify interface compliance at compile time.
var _ Backend = (*MemoryBackend)(nil)
