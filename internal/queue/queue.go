// Package queue turns scan requests into executed scans: a durable,
// priority-ordered backlog dispatched to a bounded pool of workers with
// retry-with-backoff semantics. Status transitions are persisted so the
// backlog survives a restart.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/events"
	"chain-sentry/internal/idhash"
	"chain-sentry/internal/observability"
	"chain-sentry/internal/storage"
)

// Default configuration values.
const (
	DefaultMaxConcurrent     = 10
	DefaultMaxAttempts       = 3
	DefaultBaseRetryDelay    = 5 * time.Second
	DefaultDispatchInterval  = 1 * time.Second
	DefaultHighRiskThreshold = 30.0
)

// Scanner is the external capability that performs the actual analysis.
// Any returned error is treated as retryable.
type Scanner interface {
	Scan(ctx context.Context, target string, chain domain.Chain, deepScan bool) (*domain.ScanResult, error)
}

// ResultHandler receives successfully completed scan results, typically the
// scoring/ledger pipeline. Handler failures must not fail the scan; the
// handler owns its own error reporting.
type ResultHandler interface {
	HandleResult(ctx context.Context, scan *domain.QueuedScan, result *domain.ScanResult)
}

// Options contains configuration for creating a Queue.
type Options struct {
	Store             storage.ScanStore
	Scanner           Scanner
	Bus               *events.Bus
	Handler           ResultHandler // optional
	MaxConcurrent     int
	MaxAttempts       int
	BaseRetryDelay    time.Duration
	DispatchInterval  time.Duration
	HighRiskThreshold float64
	Metrics           *observability.Metrics // optional
	Logger            zerolog.Logger
	Clock             func() time.Time // defaults to time.Now
}

// Queue is the scan scheduler. All backlog mutation happens under mu; the
// persisted row is the source of truth across restarts.
type Queue struct {
	store             storage.ScanStore
	scanner           Scanner
	bus               *events.Bus
	handler           ResultHandler
	maxConcurrent     int
	maxAttempts       int
	baseRetryDelay    time.Duration
	dispatchInterval  time.Duration
	highRiskThreshold float64
	metrics           *observability.Metrics
	logger            zerolog.Logger
	clock             func() time.Time

	mu       sync.Mutex
	ready    backlog          // due items, priority-ordered
	delayed  []*item          // backoff-gated items awaiting NotBefore
	index    map[string]*item // scanID -> queued item, nil once in flight
	inFlight int
	paused   bool
	seq      int64

	wg sync.WaitGroup
}

// item is one backlog entry.
type item struct {
	scan *domain.QueuedScan
	seq  int64 // FIFO tiebreaker within a priority class
	pos  int   // heap position
}

// New creates a Queue.
func New(opts Options) *Queue {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	baseDelay := opts.BaseRetryDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseRetryDelay
	}
	interval := opts.DispatchInterval
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}
	threshold := opts.HighRiskThreshold
	if threshold <= 0 {
		threshold = DefaultHighRiskThreshold
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Queue{
		store:             opts.Store,
		scanner:           opts.Scanner,
		bus:               opts.Bus,
		handler:           opts.Handler,
		maxConcurrent:     maxConcurrent,
		maxAttempts:       maxAttempts,
		baseRetryDelay:    baseDelay,
		dispatchInterval:  interval,
		highRiskThreshold: threshold,
		metrics:           opts.Metrics,
		logger:            opts.Logger.With().Str("component", "scan_queue").Logger(),
		clock:             clock,
		index:             make(map[string]*item),
	}
}

// Add validates and persists a new scan request, places it in the backlog and
// returns its stable scan id. Persist failures propagate to the caller.
func (q *Queue) Add(ctx context.Context, req domain.ScanRequest) (string, error) {
	if req.Target == "" {
		return "", fmt.Errorf("%w: empty target", storage.ErrInvalidInput)
	}
	if !req.Chain.IsValid() {
		return "", fmt.Errorf("%w: unknown chain %q", storage.ErrInvalidInput, req.Chain)
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	if !req.Priority.IsValid() {
		return "", fmt.Errorf("%w: unknown priority %q", storage.ErrInvalidInput, req.Priority)
	}

	now := q.clock()
	scan := &domain.QueuedScan{
		ScanID:      idhash.ComputeScanID(req.Target, req.Chain, req.Requester, now.UnixNano()),
		Request:     req,
		Status:      domain.StatusPending,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  now.UnixMilli(),
	}

	if err := q.store.Insert(ctx, scan); err != nil {
		return "", fmt.Errorf("persist scan: %w", err)
	}

	q.mu.Lock()
	q.pushLocked(scan)
	q.mu.Unlock()

	q.bus.PublishScanQueued(events.ScanQueued{ScanID: scan.ScanID, Request: req, At: scan.EnqueuedAt})
	q.logger.Debug().Str("scan_id", scan.ScanID).Str("target", req.Target).
		Str("chain", req.Chain.String()).Str("priority", req.Priority.String()).Msg("scan queued")
	return scan.ScanID, nil
}

// Run rehydrates unfinished scans from durable storage and then drives the
// dispatch loop until the context is cancelled. In-flight workers are awaited
// before returning.
func (q *Queue) Run(ctx context.Context) error {
	if err := q.rehydrate(ctx); err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}

	ticker := time.NewTicker(q.dispatchInterval)
	defer ticker.Stop()

	q.logger.Info().Int("max_concurrent", q.maxConcurrent).
		Dur("dispatch_interval", q.dispatchInterval).Msg("queue started")

	for {
		select {
		case <-ctx.Done():
			q.logger.Info().Msg("queue stopping, waiting for in-flight scans")
			q.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			q.dispatch(ctx)
		}
	}
}

// rehydrate reloads pending and processing rows. Scans that were processing
// when the process died are reset to pending; their attempt count is kept so
// the retry budget still bounds them.
func (q *Queue) rehydrate(ctx context.Context) error {
	active, err := q.store.GetActive(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, scan := range active {
		if scan.Status == domain.StatusProcessing {
			scan.Status = domain.StatusPending
			if err := q.store.Update(ctx, scan); err != nil {
				return fmt.Errorf("reset scan %s: %w", scan.ScanID, err)
			}
		}
		q.mu.Lock()
		q.pushLocked(scan)
		q.mu.Unlock()
		restored++
	}

	if restored > 0 {
		q.logger.Info().Int("restored", restored).Msg("rehydrated unfinished scans")
	}
	return nil
}

// dispatch moves due delayed items into the ready heap and hands work to
// workers while capacity remains.
func (q *Queue) dispatch(ctx context.Context) {
	now := q.clock().UnixMilli()

	q.mu.Lock()
	if q.paused {
		q.mu.Unlock()
		return
	}

	// Promote backoff-gated items whose delay has elapsed.
	remaining := q.delayed[:0]
	for _, it := range q.delayed {
		if it.scan.NotBefore <= now {
			heap.Push(&q.ready, it)
		} else {
			remaining = append(remaining, it)
		}
	}
	q.delayed = remaining

	var launch []*item
	for q.ready.Len() > 0 && q.inFlight < q.maxConcurrent {
		it := heap.Pop(&q.ready).(*item)
		q.index[it.scan.ScanID] = nil // in flight, no longer cancellable
		q.inFlight++
		launch = append(launch, it)
	}
	q.mu.Unlock()

	for _, it := range launch {
		q.wg.Add(1)
		go q.execute(ctx, it.scan)
	}
}

// execute runs one scan attempt to completion or rescheduling.
func (q *Queue) execute(ctx context.Context, scan *domain.QueuedScan) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		q.inFlight--
		if scan.Status.IsTerminal() {
			delete(q.index, scan.ScanID)
		}
		q.mu.Unlock()
	}()

	scan.Status = domain.StatusProcessing
	scan.Attempts++
	if err := q.store.Update(ctx, scan); err != nil {
		q.logger.Error().Err(err).Str("scan_id", scan.ScanID).Msg("mark processing failed")
		// Storage trouble: return the scan to the backlog untouched.
		scan.Status = domain.StatusPending
		scan.Attempts--
		q.mu.Lock()
		q.pushLocked(scan)
		q.mu.Unlock()
		return
	}

	req := scan.Request
	started := q.clock()
	result, err := q.scanner.Scan(ctx, req.Target, req.Chain, req.DeepScan)
	if err != nil {
		q.handleFailure(ctx, scan, err)
		return
	}

	now := q.clock().UnixMilli()
	scan.Status = domain.StatusCompleted
	scan.LastError = ""
	scan.RiskScore = &result.RiskScore
	scan.CompletedAt = &now
	if err := q.store.Update(ctx, scan); err != nil {
		q.logger.Error().Err(err).Str("scan_id", scan.ScanID).Msg("persist completion failed")
	}

	q.bus.PublishScanCompleted(events.ScanCompleted{
		ScanID:     scan.ScanID,
		Target:     req.Target,
		Chain:      req.Chain,
		RiskScore:  result.RiskScore,
		DurationMs: q.clock().Sub(started).Milliseconds(),
	})
	if result.RiskScore <= q.highRiskThreshold {
		q.bus.PublishHighRiskDetected(events.HighRiskDetected{
			ScanID:    scan.ScanID,
			Target:    req.Target,
			Chain:     req.Chain,
			RiskScore: result.RiskScore,
		})
	}

	if q.handler != nil {
		q.handler.HandleResult(ctx, scan, result)
	}
}

// handleFailure reschedules with exponential backoff or fails permanently
// once attempts are exhausted.
func (q *Queue) handleFailure(ctx context.Context, scan *domain.QueuedScan, scanErr error) {
	scan.LastError = scanErr.Error()

	if scan.Attempts < scan.MaxAttempts {
		delay := q.baseRetryDelay * time.Duration(1<<scan.Attempts)
		scan.Status = domain.StatusPending
		scan.NotBefore = q.clock().Add(delay).UnixMilli()
		if err := q.store.Update(ctx, scan); err != nil {
			q.logger.Error().Err(err).Str("scan_id", scan.ScanID).Msg("persist retry failed")
		}
		q.mu.Lock()
		q.pushLocked(scan)
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.ScansRetried.Inc()
		}
		q.logger.Warn().Err(scanErr).Str("scan_id", scan.ScanID).
			Int("attempt", scan.Attempts).Dur("retry_in", delay).Msg("scan failed, rescheduled")
		return
	}

	now := q.clock().UnixMilli()
	scan.Status = domain.StatusFailed
	scan.CompletedAt = &now
	if err := q.store.Update(ctx, scan); err != nil {
		q.logger.Error().Err(err).Str("scan_id", scan.ScanID).Msg("persist failure failed")
	}
	q.bus.PublishScanFailed(events.ScanFailed{
		ScanID:   scan.ScanID,
		Target:   scan.Request.Target,
		Chain:    scan.Request.Chain,
		Reason:   scanErr.Error(),
		Attempts: scan.Attempts,
	})
	q.logger.Error().Err(scanErr).Str("scan_id", scan.ScanID).
		Int("attempts", scan.Attempts).Msg("scan failed permanently")
}

// Cancel removes a still-queued scan. Returns false once the scan is in
// flight or already terminal; executing scanner calls are never interrupted.
func (q *Queue) Cancel(ctx context.Context, scanID string) bool {
	q.mu.Lock()
	it, ok := q.index[scanID]
	if !ok || it == nil {
		q.mu.Unlock()
		return false
	}
	q.removeLocked(it)
	delete(q.index, scanID)
	q.mu.Unlock()

	now := q.clock().UnixMilli()
	it.scan.Status = domain.StatusFailed
	it.scan.LastError = "cancelled by caller"
	it.scan.CompletedAt = &now
	if err := q.store.Update(ctx, it.scan); err != nil {
		q.logger.Error().Err(err).Str("scan_id", scanID).Msg("persist cancellation failed")
	}
	return true
}

// SetPriority re-homes a queued scan. Returns false once in flight.
func (q *Queue) SetPriority(ctx context.Context, scanID string, p domain.Priority) bool {
	if !p.IsValid() {
		return false
	}

	q.mu.Lock()
	it, ok := q.index[scanID]
	if !ok || it == nil {
		q.mu.Unlock()
		return false
	}
	it.scan.Request.Priority = p
	if it.pos >= 0 {
		heap.Fix(&q.ready, it.pos)
	}
	q.mu.Unlock()

	if err := q.store.Update(ctx, it.scan); err != nil {
		q.logger.Error().Err(err).Str("scan_id", scanID).Msg("persist priority change failed")
	}
	return true
}

// Pause stops dispatching without dropping queued work.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.logger.Warn().Msg("queue paused")
}

// Resume restarts dispatching.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.logger.Info().Msg("queue resumed")
}

// Stats is a point-in-time snapshot of queue state.
type Stats struct {
	Ready    int
	Delayed  int
	InFlight int
	Paused   bool
}

// Stats returns a snapshot of the in-memory backlog.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Ready:    q.ready.Len(),
		Delayed:  len(q.delayed),
		InFlight: q.inFlight,
		Paused:   q.paused,
	}
}

// pushLocked places a scan into ready or delayed depending on its backoff
// gate. Caller holds mu.
func (q *Queue) pushLocked(scan *domain.QueuedScan) {
	q.seq++
	it := &item{scan: scan, seq: q.seq, pos: -1}
	q.index[scan.ScanID] = it
	if scan.NotBefore > q.clock().UnixMilli() {
		q.delayed = append(q.delayed, it)
		return
	}
	heap.Push(&q.ready, it)
}

// removeLocked deletes an item from whichever structure holds it. Caller
// holds mu.
func (q *Queue) removeLocked(it *item) {
	if it.pos >= 0 {
		heap.Remove(&q.ready, it.pos)
		return
	}
	for i, d := range q.delayed {
		if d == it {
			q.delayed = append(q.delayed[:i], q.delayed[i+1:]...)
			return
		}
	}
}
