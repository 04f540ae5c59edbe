// Package blobstore provides content-addressed payload storage across
// multiple independent backends. The ledger must keep functioning with only
// one healthy backend and must not assume consistency across them.
package blobstore

import "context"

// Backend stores opaque payloads by content-addressed locator. Every
// implementation derives the locator from the payload hash, so independent
// backends agree on the address of identical content.
type Backend interface {
	// Name identifies the backend in health tracking and logs.
	Name() string

	// Put stores the payload and returns its locator.
	Put(ctx context.Context, payload []byte) (string, error)

	// Get retrieves a payload by locator.
	Get(ctx context.Context, locator string) ([]byte, error)

	// Probe performs a lightweight liveness check.
	Probe(ctx context.Context) error
}
