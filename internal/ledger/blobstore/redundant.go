package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"chain-sentry/internal/observability"
)

// ErrNoBackends is returned when a Redundant store is built without backends.
var ErrNoBackends = errors.New("no storage backends configured")

// ErrNoHealthyBackends is returned by Put when every backend is currently
// marked unhealthy and nothing was attempted.
var ErrNoHealthyBackends = errors.New("no healthy storage backends")

// Redundant fans writes out to every healthy backend and reads from any
// backend that still holds the payload. Writes succeed when at least one
// backend accepts the payload; all-backends failure is a hard error.
// Unhealthy backends are skipped on Put but remain read candidates, since
// historical reads must survive a backend later going unhealthy.
type Redundant struct {
	backends []Backend
	logger   zerolog.Logger
	metrics  *observability.Metrics

	mu     sync.RWMutex
	health map[string]bool
}

// NewRedundant creates a redundant store over the given backends. All
// backends start healthy until a probe says otherwise.
func NewRedundant(backends []Backend, logger zerolog.Logger) (*Redundant, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	health := make(map[string]bool, len(backends))
	for _, b := range backends {
		health[b.Name()] = true
	}
	return &Redundant{
		backends: backends,
		logger:   logger.With().Str("component", "blobstore").Logger(),
		health:   health,
	}, nil
}

// Put stores the payload on every healthy backend. Returns the locator on
// the first success; later failures are logged, not fatal.
func (r *Redundant) Put(ctx context.Context, payload []byte) (string, error) {
	var locator string
	var errs []error

	for _, b := range r.backends {
		if !r.healthy(b.Name()) {
			continue
		}
		loc, err := b.Put(ctx, payload)
		if err != nil {
			errs = append(errs, err)
			if r.metrics != nil {
				r.metrics.BackendPutErrors.WithLabelValues(b.Name()).Inc()
			}
			r.logger.Warn().Err(err).Str("backend", b.Name()).Msg("backend put failed")
			continue
		}
		if locator == "" {
			locator = loc
		}
	}

	if locator == "" {
		if len(errs) == 0 {
			return "", ErrNoHealthyBackends
		}
		return "", fmt.Errorf("all storage backends failed: %w", errors.Join(errs...))
	}
	return locator, nil
}

// Get retrieves the payload by locator, trying every backend regardless of
// health flags.
func (r *Redundant) Get(ctx context.Context, locator string) ([]byte, error) {
	var errs []error
	for _, b := range r.backends {
		payload, err := b.Get(ctx, locator)
		if err != nil {
			errs = append(errs, err)
			if r.metrics != nil {
				r.metrics.BackendGetErrors.WithLabelValues(b.Name()).Inc()
			}
			continue
		}
		return payload, nil
	}
	return nil, fmt.Errorf("locator %s unavailable on every backend: %w", locator, errors.Join(errs...))
}

// SetMetrics attaches backend error counters. Call before the store is
// shared across goroutines.
func (r *Redundant) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// ProbeAll refreshes the health flag of every backend.
func (r *Redundant) ProbeAll(ctx context.Context) {
	for _, b := range r.backends {
		err := b.Probe(ctx)
		healthy := err == nil

		r.mu.Lock()
		was := r.health[b.Name()]
		r.health[b.Name()] = healthy
		r.mu.Unlock()

		if was != healthy {
			if healthy {
				r.logger.Info().Str("backend", b.Name()).Msg("storage backend recovered")
			} else {
				r.logger.Warn().Err(err).Str("backend", b.Name()).Msg("storage backend unhealthy")
			}
		}
	}
}

// HealthSnapshot returns a copy of the per-backend health flags.
func (r *Redundant) HealthSnapshot() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

func (r *Redundant) healthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health[name]
}
