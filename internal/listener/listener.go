// Package listener discovers scan-worthy addresses: one poll loop per
// configured chain, endpoint failover after sustained RPC failure, and a
// periodic health probe that lets unhealthy chains recover. A slow or
// unhealthy chain never starves the others.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chain-sentry/internal/chains"
	"chain-sentry/internal/domain"
	"chain-sentry/internal/events"
	"chain-sentry/internal/observability"
	"chain-sentry/internal/storage"
)

// Default configuration values.
const (
	DefaultPollInterval   = 1 * time.Second
	DefaultProbeInterval  = 30 * time.Second
	DefaultDedupWindow    = 60 * time.Second
	DefaultErrorThreshold = 3
	DefaultBatchSize      = 5
)

// ScanSubmitter accepts discovered scan requests, typically the scan queue.
type ScanSubmitter interface {
	Add(ctx context.Context, req domain.ScanRequest) (string, error)
}

// Options contains configuration for creating a Listener.
type Options struct {
	Connectors     []chains.Connector
	States         storage.ChainStateStore
	Submitter      ScanSubmitter
	Bus            *events.Bus
	PollIntervals  map[domain.Chain]time.Duration // per-chain cadence tunable
	ProbeInterval  time.Duration
	DedupWindow    time.Duration
	ErrorThreshold int
	BatchSize      int                    // max blocks advanced per tick
	Metrics        *observability.Metrics // optional
	Logger         zerolog.Logger
	Clock          func() time.Time
}

// chainRuntime is the per-chain mutable state, owned by its poll loop; the
// probe loop shares it under mu.
type chainRuntime struct {
	connector chains.Connector
	poke      chan struct{}
	mu        sync.Mutex
	state     *domain.ChainState
}

// Listener drives discovery for every configured chain.
type Listener struct {
	runtimes       []*chainRuntime
	states         storage.ChainStateStore
	submitter      ScanSubmitter
	bus            *events.Bus
	pollIntervals  map[domain.Chain]time.Duration
	probeInterval  time.Duration
	dedupWindow    time.Duration
	errorThreshold int
	batchSize      int
	metrics        *observability.Metrics
	logger         zerolog.Logger
	clock          func() time.Time

	dedupMu sync.Mutex
	recent  map[string]int64 // "target|chain" -> last enqueue ms

	startMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Listener. Configuration errors (no connectors) fail loudly.
func New(opts Options) (*Listener, error) {
	if len(opts.Connectors) == 0 {
		return nil, errors.New("no chain connectors configured")
	}

	probeInterval := opts.ProbeInterval
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	dedupWindow := opts.DedupWindow
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	errorThreshold := opts.ErrorThreshold
	if errorThreshold <= 0 {
		errorThreshold = DefaultErrorThreshold
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	runtimes := make([]*chainRuntime, 0, len(opts.Connectors))
	for _, c := range opts.Connectors {
		runtimes = append(runtimes, &chainRuntime{connector: c, poke: make(chan struct{}, 1)})
	}

	return &Listener{
		runtimes:       runtimes,
		states:         opts.States,
		submitter:      opts.Submitter,
		bus:            opts.Bus,
		pollIntervals:  opts.PollIntervals,
		probeInterval:  probeInterval,
		dedupWindow:    dedupWindow,
		errorThreshold: errorThreshold,
		batchSize:      batchSize,
		metrics:        opts.Metrics,
		logger:         opts.Logger.With().Str("component", "chain_listener").Logger(),
		clock:          clock,
		recent:         make(map[string]int64),
	}, nil
}

// Start begins polling all chains. Idempotent: a second Start is a no-op.
func (l *Listener) Start(ctx context.Context) {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	if l.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		if err := l.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error().Err(err).Msg("listener stopped with error")
		}
	}()
}

// Stop ceases polling. Idempotent.
func (l *Listener) Stop() {
	l.startMu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.startMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run restores persisted chain state and blocks driving one poll loop per
// chain plus the shared health probe loop, until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	for _, rt := range l.runtimes {
		if err := l.restoreState(ctx, rt); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rt := range l.runtimes {
		g.Go(func() error {
			l.pollLoop(gctx, rt)
			return nil
		})
	}
	g.Go(func() error {
		l.probeLoop(gctx)
		return nil
	})

	l.logger.Info().Int("chains", len(l.runtimes)).Msg("listener started")
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// restoreState loads the persisted row for a chain or seeds a fresh one.
func (l *Listener) restoreState(ctx context.Context, rt *chainRuntime) error {
	chain := rt.connector.Chain()
	state, err := l.states.Get(ctx, chain)
	switch {
	case err == nil:
		l.logger.Info().Str("chain", chain.String()).
			Int64("last_height", state.LastProcessedHeight).Msg("chain state restored")
	case errors.Is(err, storage.ErrNotFound):
		state = &domain.ChainState{
			Chain:     chain,
			Healthy:   true,
			UpdatedAt: l.clock().UnixMilli(),
		}
		if err := l.states.Upsert(ctx, state); err != nil {
			return fmt.Errorf("seed state for %s: %w", chain, err)
		}
	default:
		return fmt.Errorf("load state for %s: %w", chain, err)
	}
	rt.state = state
	if l.metrics != nil {
		l.metrics.RecordChainHealth(chain.String(), state.Healthy)
		l.metrics.LastProcessedHeight.WithLabelValues(chain.String()).Set(float64(state.LastProcessedHeight))
	}
	return nil
}

// pollLoop drives one chain at its configured cadence.
func (l *Listener) pollLoop(ctx context.Context, rt *chainRuntime) {
	chain := rt.connector.Chain()
	interval, ok := l.pollIntervals[chain]
	if !ok || interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info().Str("chain", chain.String()).Dur("interval", interval).Msg("poll loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pollOnce(ctx, rt)
		case <-rt.poke:
			l.pollOnce(ctx, rt)
		}
	}
}

// Poke wakes a chain's poll loop ahead of its ticker, typically driven by a
// websocket newHeads subscription. No-op for unknown chains; never blocks.
func (l *Listener) Poke(chain domain.Chain) {
	for _, rt := range l.runtimes {
		if rt.connector.Chain() == chain {
			select {
			case rt.poke <- struct{}{}:
			default:
			}
			return
		}
	}
}

// pollOnce advances one chain by at most batchSize blocks.
func (l *Listener) pollOnce(ctx context.Context, rt *chainRuntime) {
	rt.mu.Lock()
	healthy := rt.state.Healthy
	rt.mu.Unlock()
	if !healthy {
		return
	}

	chain := rt.connector.Chain()
	latest, err := rt.connector.LatestHeight(ctx)
	if err != nil {
		l.recordError(ctx, rt, err)
		return
	}

	rt.mu.Lock()
	last := rt.state.LastProcessedHeight
	rt.mu.Unlock()

	if last == 0 {
		// First run: start at the tip, no historical backfill.
		l.advanceHeight(ctx, rt, latest)
		return
	}

	for height := last + 1; height <= latest && height <= last+int64(l.batchSize); height++ {
		activities, err := rt.connector.BlockActivity(ctx, height)
		if err != nil {
			l.recordError(ctx, rt, err)
			return
		}
		for _, act := range activities {
			l.emit(ctx, chain, act)
		}
		if l.metrics != nil {
			l.metrics.BlocksProcessed.WithLabelValues(chain.String()).Inc()
		}
		l.advanceHeight(ctx, rt, height)
	}
	l.recordSuccess(ctx, rt)
}

// emit converts one activity into a scan request, unless the same target was
// enqueued within the dedup window.
func (l *Listener) emit(ctx context.Context, chain domain.Chain, act chains.Activity) {
	if l.metrics != nil {
		l.metrics.ActivitiesExtracted.WithLabelValues(chain.String(), string(act.Kind)).Inc()
	}
	if l.isDuplicate(act.Address, chain) {
		if l.metrics != nil {
			l.metrics.ScanRequestsDeduped.WithLabelValues(chain.String()).Inc()
		}
		return
	}

	priority := domain.PriorityHigh
	if act.Kind == chains.ActivityTransfer {
		priority = domain.PriorityNormal
	}
	req := domain.ScanRequest{
		Target:    act.Address,
		Chain:     chain,
		Priority:  priority,
		Requester: "chain-listener",
	}
	if _, err := l.submitter.Add(ctx, req); err != nil {
		l.logger.Error().Err(err).Str("chain", chain.String()).
			Str("target", act.Address).Msg("enqueue scan failed")
		return
	}
	l.markEnqueued(act.Address, chain)
	if l.metrics != nil {
		l.metrics.ScanRequestsEmitted.WithLabelValues(chain.String()).Inc()
	}
	l.logger.Debug().Str("chain", chain.String()).Str("target", act.Address).
		Str("kind", string(act.Kind)).Int64("height", act.Height).Msg("scan request emitted")
}

// isDuplicate reports whether (target, chain) was enqueued within the dedup
// window. Expired entries are evicted lazily.
func (l *Listener) isDuplicate(target string, chain domain.Chain) bool {
	key := target + "|" + chain.String()
	now := l.clock().UnixMilli()
	windowMs := l.dedupWindow.Milliseconds()

	l.dedupMu.Lock()
	defer l.dedupMu.Unlock()
	if ts, ok := l.recent[key]; ok && now-ts < windowMs {
		return true
	}
	for k, ts := range l.recent {
		if now-ts >= windowMs {
			delete(l.recent, k)
		}
	}
	return false
}

func (l *Listener) markEnqueued(target string, chain domain.Chain) {
	l.dedupMu.Lock()
	l.recent[target+"|"+chain.String()] = l.clock().UnixMilli()
	l.dedupMu.Unlock()
}

// advanceHeight persists forward progress; heights never move backwards.
func (l *Listener) advanceHeight(ctx context.Context, rt *chainRuntime, height int64) {
	rt.mu.Lock()
	if height > rt.state.LastProcessedHeight {
		rt.state.LastProcessedHeight = height
	}
	rt.state.UpdatedAt = l.clock().UnixMilli()
	snapshot := *rt.state
	rt.mu.Unlock()

	if l.metrics != nil {
		l.metrics.LastProcessedHeight.WithLabelValues(snapshot.Chain.String()).Set(float64(snapshot.LastProcessedHeight))
	}
	if err := l.states.Upsert(ctx, &snapshot); err != nil {
		l.logger.Error().Err(err).Str("chain", snapshot.Chain.String()).Msg("persist chain state failed")
	}
}

// recordError counts a failed RPC call; at the threshold the chain is marked
// unhealthy and rotated to its next endpoint with the counter reset.
func (l *Listener) recordError(ctx context.Context, rt *chainRuntime, rpcErr error) {
	chain := rt.connector.Chain()
	if l.metrics != nil {
		l.metrics.RPCErrors.WithLabelValues(chain.String()).Inc()
	}

	rt.mu.Lock()
	rt.state.ConsecutiveErrors++
	count := rt.state.ConsecutiveErrors
	rotated := false
	if count >= l.errorThreshold {
		endpoint := rt.connector.RotateEndpoint()
		rt.state.Healthy = false
		rt.state.ConsecutiveErrors = 0
		rotated = true
		l.logger.Warn().Str("chain", chain.String()).Str("endpoint", endpoint).
			Msg("chain unhealthy, rotated to next endpoint")
	}
	l.syncEndpointLocked(rt)
	rt.state.UpdatedAt = l.clock().UnixMilli()
	snapshot := *rt.state
	rt.mu.Unlock()

	if rotated && l.metrics != nil {
		l.metrics.EndpointRotations.WithLabelValues(chain.String()).Inc()
		l.metrics.RecordChainHealth(chain.String(), false)
	}
	if !rotated {
		l.logger.Warn().Err(rpcErr).Str("chain", chain.String()).
			Int("consecutive_errors", count).Msg("rpc call failed")
	}
	if err := l.states.Upsert(ctx, &snapshot); err != nil {
		l.logger.Error().Err(err).Str("chain", chain.String()).Msg("persist chain state failed")
	}
}

// recordSuccess decays the error counter after a clean poll.
func (l *Listener) recordSuccess(ctx context.Context, rt *chainRuntime) {
	rt.mu.Lock()
	changed := rt.state.ConsecutiveErrors > 0
	if changed {
		rt.state.ConsecutiveErrors--
		rt.state.UpdatedAt = l.clock().UnixMilli()
	}
	snapshot := *rt.state
	rt.mu.Unlock()

	if changed {
		if err := l.states.Upsert(ctx, &snapshot); err != nil {
			l.logger.Error().Err(err).Str("chain", snapshot.Chain.String()).Msg("persist chain state failed")
		}
	}
}

// probeLoop periodically probes every chain, including unhealthy ones, so a
// recovered endpoint brings its chain back.
func (l *Listener) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(l.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rt := range l.runtimes {
				l.probeChain(ctx, rt)
			}
		}
	}
}

// probeChain restores health on a successful lightweight call and decays the
// error counter by one.
func (l *Listener) probeChain(ctx context.Context, rt *chainRuntime) {
	chain := rt.connector.Chain()
	err := rt.connector.Probe(ctx)

	rt.mu.Lock()
	if err != nil {
		if !rt.state.Healthy {
			rt.mu.Unlock()
			return
		}
		rt.mu.Unlock()
		l.recordError(ctx, rt, err)
		return
	}

	recovered := !rt.state.Healthy
	rt.state.Healthy = true
	if rt.state.ConsecutiveErrors > 0 {
		rt.state.ConsecutiveErrors--
	}
	l.syncEndpointLocked(rt)
	rt.state.UpdatedAt = l.clock().UnixMilli()
	snapshot := *rt.state
	rt.mu.Unlock()

	if l.metrics != nil {
		l.metrics.RecordChainHealth(chain.String(), true)
	}
	if recovered {
		l.logger.Info().Str("chain", chain.String()).Msg("chain health restored")
	}
	if err := l.states.Upsert(ctx, &snapshot); err != nil {
		l.logger.Error().Err(err).Str("chain", chain.String()).Msg("persist chain state failed")
	}
}

// syncEndpointLocked mirrors the connector's endpoint cursor into the
// persisted state. Caller holds rt.mu.
func (l *Listener) syncEndpointLocked(rt *chainRuntime) {
	type indexed interface{ EndpointIndex() int }
	if c, ok := rt.connector.(indexed); ok {
		rt.state.EndpointIndex = c.EndpointIndex()
	}
}

// HealthSnapshot returns a copy of every chain's current state.
func (l *Listener) HealthSnapshot() []domain.ChainState {
	out := make([]domain.ChainState, 0, len(l.runtimes))
	for _, rt := range l.runtimes {
		rt.mu.Lock()
		if rt.state != nil {
			out = append(out, *rt.state)
		}
		rt.mu.Unlock()
	}
	return out
}
