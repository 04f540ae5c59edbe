package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"chain-sentry/internal/idhash"
)

// DefaultGatewayTimeout bounds every gateway HTTP call.
const DefaultGatewayTimeout = 30 * time.Second

// GatewayBackend stores payloads in a remote content-addressed HTTP gateway
// (an IPFS-pinning-style service): PUT /blobs/{locator}, GET /blobs/{locator}.
type GatewayBackend struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewGatewayBackend creates a gateway backend against baseURL.
func NewGatewayBackend(name, baseURL string) *GatewayBackend {
	return &GatewayBackend{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultGatewayTimeout},
	}
}

// Name implements Backend.
func (b *GatewayBackend) Name() string { return b.name }

// Put implements Backend.
func (b *GatewayBackend) Put(ctx context.Context, payload []byte) (string, error) {
	locator := idhash.HashBytes(payload)
	url := fmt.Sprintf("%s/blobs/%s", b.baseURL, locator)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("backend %s: create request: %w", b.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend %s: put %s: %w", b.name, locator, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("backend %s: put %s: unexpected status %d", b.name, locator, resp.StatusCode)
	}
	return locator, nil
}

// Get implements Backend.
func (b *GatewayBackend) Get(ctx context.Context, locator string) ([]byte, error) {
	url := fmt.Sprintf("%s/blobs/%s", b.baseURL, locator)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("backend %s: create request: %w", b.name, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s: get %s: %w", b.name, locator, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend %s: get %s: unexpected status %d", b.name, locator, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Probe implements Backend via the gateway health endpoint.
func (b *GatewayBackend) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("backend %s: create request: %w", b.name, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: probe: %w", b.name, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend %s: probe: unexpected status %d", b.name, resp.StatusCode)
	}
	return nil
}

// Verify interface compliance at compile time.
var _ Backend = (*GatewayBackend)(nil)
