package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"chain-sentry/internal/idhash"
)

// FilesystemBackend stores payloads as files under a root directory,
// sharded by locator prefix.
type FilesystemBackend struct {
	name string
	root string
}

// NewFilesystemBackend creates a filesystem backend rooted at dir.
func NewFilesystemBackend(name, dir string) (*FilesystemBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backend %s: create root %s: %w", name, dir, err)
	}
	return &FilesystemBackend{name: name, root: dir}, nil
}

// Name implements Backend.
func (b *FilesystemBackend) Name() string { return b.name }

func (b *FilesystemBackend) path(locator string) string {
	shard := locator
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(b.root, shard, locator+".json")
}

// Put implements Backend.
func (b *FilesystemBackend) Put(_ context.Context, payload []byte) (string, error) {
	locator := idhash.HashBytes(payload)
	path := b.path(locator)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("backend %s: %w", b.name, err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("backend %s: write %s: %w", b.name, locator, err)
	}
	return locator, nil
}

// Get implements Backend.
func (b *FilesystemBackend) Get(_ context.Context, locator string) ([]byte, error) {
	payload, err := os.ReadFile(b.path(locator))
	if err != nil {
		return nil, fmt.Errorf("backend %s: read %s: %w", b.name, locator, err)
	}
	return payload, nil
}

// Probe implements Backend by checking the root is still a writable directory.
func (b *FilesystemBackend) Probe(context.Context) error {
	probe := filepath.Join(b.root, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("backend %s: probe write: %w", b.name, err)
	}
	return os.Remove(probe)
}

// Verify interface compliance at compile time.
var _ Backend = (*FilesystemBackend)(nil)
