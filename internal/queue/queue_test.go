package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/events"
	"chain-sentry/internal/observability"
	"chain-sentry/internal/storage/memory"
)

// fakeClock is a hand-advanced clock so backoff gates are deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingScanner returns canned results and remembers execution order.
type recordingScanner struct {
	mu      sync.Mutex
	order   []string
	score   float64
	err     error
	started chan string   // optional, signals each Scan entry
	release chan struct{} // optional, blocks Scan until closed
}

func (s *recordingScanner) Scan(_ context.Context, target string, chain domain.Chain, deepScan bool) (*domain.ScanResult, error) {
	s.mu.Lock()
	s.order = append(s.order, target)
	s.mu.Unlock()
	if s.started != nil {
		s.started <- target
	}
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ScanResult{Target: target, Chain: chain, DeepScan: deepScan, RiskScore: s.score}, nil
}

func (s *recordingScanner) targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// recordingHandler captures HandleResult invocations.
type recordingHandler struct {
	mu      sync.Mutex
	results []*domain.ScanResult
}

func (h *recordingHandler) HandleResult(_ context.Context, _ *domain.QueuedScan, result *domain.ScanResult) {
	h.mu.Lock()
	h.results = append(h.results, result)
	h.mu.Unlock()
}

type queueFixture struct {
	q       *Queue
	store   *memory.ScanStore
	scanner *recordingScanner
	handler *recordingHandler
	bus     *events.Bus
	clock   *fakeClock
}

func newQueueFixture(t *testing.T, mutate func(*Options)) *queueFixture {
	t.Helper()
	store := memory.NewScanStore()
	scanner := &recordingScanner{score: 60}
	handler := &recordingHandler{}
	bus := events.NewBus(32)
	clock := newFakeClock()

	opts := Options{
		Store:          store,
		Scanner:        scanner,
		Bus:            bus,
		Handler:        handler,
		MaxConcurrent:  1,
		MaxAttempts:    3,
		BaseRetryDelay: time.Second,
		Logger:         zerolog.Nop(),
		Clock:          clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &queueFixture{
		q: New(opts), store: store, scanner: scanner, handler: handler, bus: bus, clock: clock,
	}
}

// drain runs one dispatch round and waits for launched workers to finish.
func (f *queueFixture) drain(ctx context.Context) {
	f.q.dispatch(ctx)
	f.q.wg.Wait()
}

func addScan(t *testing.T, f *queueFixture, target string, p domain.Priority) string {
	t.Helper()
	id, err := f.q.Add(context.Background(), domain.ScanRequest{
		Target: target, Chain: domain.ChainEthereum, Priority: p, Requester: "test",
	})
	if err != nil {
		t.Fatalf("Add(%s) failed: %v", target, err)
	}
	// Distinct enqueue nanos keep scan ids unique.
	f.clock.Advance(time.Millisecond)
	return id
}

func TestAdd_Validation(t *testing.T) {
	f := newQueueFixture(t, nil)
	ctx := context.Background()

	if _, err := f.q.Add(ctx, domain.ScanRequest{Chain: domain.ChainEthereum}); err == nil {
		t.Error("Expected error for empty target")
	}
	if _, err := f.q.Add(ctx, domain.ScanRequest{Target: "0xabc", Chain: "dogechain"}); err == nil {
		t.Error("Expected error for unknown chain")
	}
	if _, err := f.q.Add(ctx, domain.ScanRequest{
		Target: "0xabc", Chain: domain.ChainEthereum, Priority: "urgent",
	}); err == nil {
		t.Error("Expected error for unknown priority")
	}
}

func TestAdd_PersistsPending(t *testing.T) {
	f := newQueueFixture(t, nil)
	ctx := context.Background()

	id := addScan(t, f, "0xabc", "")

	scan, err := f.store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if scan.Status != domain.StatusPending {
		t.Errorf("Expected pending, got %s", scan.Status)
	}
	if scan.Request.Priority != domain.PriorityNormal {
		t.Errorf("Empty priority should default to normal, got %s", scan.Request.Priority)
	}
	if scan.MaxAttempts != 3 {
		t.Errorf("Expected max attempts 3, got %d", scan.MaxAttempts)
	}

	select {
	case e := <-f.bus.ScanQueued():
		if e.ScanID != id {
			t.Errorf("queued event scan id mismatch: %s", e.ScanID)
		}
	default:
		t.Error("Expected a scan-queued event")
	}
}

func TestDispatch_PriorityOrder(t *testing.T) {
	f := newQueueFixture(t, nil)
	ctx := context.Background()

	addScan(t, f, "low", domain.PriorityLow)
	addScan(t, f, "normal", domain.PriorityNormal)
	addScan(t, f, "high", domain.PriorityHigh)

	// MaxConcurrent is 1: each round executes exactly one scan.
	for i := 0; i < 3; i++ {
		f.drain(ctx)
	}

	got := f.scanner.targets()
	want := []string{"high", "normal", "low"}
	if len(got) != 3 {
		t.Fatalf("Expected 3 executions, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Execution order %v, want %v", got, want)
		}
	}
}

func TestDispatch_FIFOWithinPriority(t *testing.T) {
	f := newQueueFixture(t, nil)
	ctx := context.Background()

	addScan(t, f, "first", domain.PriorityNormal)
	addScan(t, f, "second", domain.PriorityNormal)

	f.drain(ctx)
	f.drain(ctx)

	got := f.scanner.targets()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("Expected FIFO within a priority class, got %v", got)
	}
}

func TestDispatch_ConcurrencyCap(t *testing.T) {
	started := make(chan string, 8)
	release := make(chan struct{})
	f := newQueueFixture(t, func(o *Options) {
		o.MaxConcurrent = 2
	})
	f.scanner.started = started
	f.scanner.release = release
	ctx := context.Background()

	for _, target := range []string{"a", "b", "c", "d"} {
		addScan(t, f, target, domain.PriorityNormal)
	}

	f.q.dispatch(ctx)
	<-started
	<-started

	stats := f.q.Stats()
	if stats.InFlight != 2 {
		t.Errorf("Expected 2 in flight, got %d", stats.InFlight)
	}
	if stats.Ready != 2 {
		t.Errorf("Expected 2 still ready, got %d", stats.Ready)
	}

	// A dispatch round at capacity must not launch more work.
	f.q.dispatch(ctx)
	select {
	case target := <-started:
		t.Errorf("Scan %s launched past the concurrency cap", target)
	default:
	}

	close(release)
	f.q.wg.Wait()

	f.q.dispatch(ctx)
	<-started
	<-started
	f.q.wg.Wait()

	if got := len(f.scanner.targets()); got != 4 {
		t.Errorf("Expected all 4 scans executed, got %d", got)
	}
}

func TestExecute_Completion(t *testing.T) {
	f := newQueueFixture(t, func(o *Options) {
		o.HighRiskThreshold = 30
	})
	f.scanner.score = 72.5
	ctx := context.Background()

	id := addScan(t, f, "0xabc", domain.PriorityNormal)
	f.drain(ctx)

	scan, err := f.store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if scan.Status != domain.StatusCompleted {
		t.Errorf("Expected completed, got %s", scan.Status)
	}
	if scan.RiskScore == nil || *scan.RiskScore != 72.5 {
		t.Errorf("Expected risk score 72.5, got %v", scan.RiskScore)
	}
	if scan.CompletedAt == nil {
		t.Error("Expected completion timestamp")
	}
	if scan.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", scan.Attempts)
	}

	select {
	case e := <-f.bus.ScanCompleted():
		if e.ScanID != id || e.RiskScore != 72.5 {
			t.Errorf("completed event mismatch: %+v", e)
		}
	default:
		t.Error("Expected a scan-completed event")
	}
	select {
	case <-f.bus.HighRiskDetected():
		t.Error("Score above threshold must not raise high-risk")
	default:
	}

	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	if len(f.handler.results) != 1 {
		t.Fatalf("Expected handler invoked once, got %d", len(f.handler.results))
	}
}

func TestExecute_HighRiskDetected(t *testing.T) {
	f := newQueueFixture(t, func(o *Options) {
		o.HighRiskThreshold = 30
	})
	f.scanner.score = 12
	ctx := context.Background()

	id := addScan(t, f, "0xbad", domain.PriorityHigh)
	f.drain(ctx)

	select {
	case e := <-f.bus.HighRiskDetected():
		if e.ScanID != id || e.RiskScore != 12 {
			t.Errorf("high-risk event mismatch: %+v", e)
		}
	default:
		t.Error("Expected a high-risk-detected event")
	}
}

func TestExecute_RetryWithBackoff(t *testing.T) {
	f := newQueueFixture(t, func(o *Options) {
		o.MaxAttempts = 3
		o.BaseRetryDelay = time.Second
	})
	f.scanner.err = errors.New("rpc timeout")
	ctx := context.Background()

	id := addScan(t, f, "0xabc", domain.PriorityNormal)
	f.drain(ctx)

	scan, err := f.store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if scan.Status != domain.StatusPending {
		t.Errorf("Expected pending after first failure, got %s", scan.Status)
	}
	if scan.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", scan.Attempts)
	}
	if scan.LastError == "" {
		t.Error("Expected last error recorded")
	}
	// attempts=1: gate is base * 2^1 past now.
	wantGate := f.clock.Now().UnixMilli() + 2000
	if scan.NotBefore != wantGate {
		t.Errorf("Expected backoff gate %d, got %d", wantGate, scan.NotBefore)
	}

	// Before the gate the scan must not redispatch.
	f.drain(ctx)
	if got := len(f.scanner.targets()); got != 1 {
		t.Errorf("Scan redispatched before its backoff gate: %d executions", got)
	}
	if stats := f.q.Stats(); stats.Delayed != 1 {
		t.Errorf("Expected 1 delayed, got %d", stats.Delayed)
	}

	// Past the gate it runs again.
	f.clock.Advance(3 * time.Second)
	f.drain(ctx)
	if got := len(f.scanner.targets()); got != 2 {
		t.Errorf("Expected second attempt after the gate, got %d executions", got)
	}
}

func TestExecute_FailsPermanently(t *testing.T) {
	f := newQueueFixture(t, func(o *Options) {
		o.MaxAttempts = 2
		o.BaseRetryDelay = time.Second
	})
	f.scanner.err = errors.New("rpc down")
	ctx := context.Background()

	id := addScan(t, f, "0xabc", domain.PriorityNormal)

	f.drain(ctx)
	f.clock.Advance(time.Minute)
	f.drain(ctx)

	scan, err := f.store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if scan.Status != domain.StatusFailed {
		t.Errorf("Expected failed after exhausting attempts, got %s", scan.Status)
	}
	if scan.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", scan.Attempts)
	}

	select {
	case e := <-f.bus.ScanFailed():
		if e.ScanID != id || e.Attempts != 2 {
			t.Errorf("failed event mismatch: %+v", e)
		}
	default:
		t.Error("Expected a scan-failed event")
	}

	// Exhausted scans must not linger in the backlog.
	f.clock.Advance(time.Minute)
	f.drain(ctx)
	if got := len(f.scanner.targets()); got != 2 {
		t.Errorf("Failed scan redispatched: %d executions", got)
	}
}

func TestExecute_RetriesAreCounted(t *testing.T) {
	m := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	f := newQueueFixture(t, func(o *Options) {
		o.Metrics = m
		o.MaxAttempts = 2
		o.BaseRetryDelay = time.Second
	})
	f.scanner.err = errors.New("rpc down")
	ctx := context.Background()

	addScan(t, f, "0xabc", domain.PriorityNormal)

	// First failure reschedules and counts a retry.
	f.drain(ctx)
	if got := testutil.ToFloat64(m.ScansRetried); got != 1 {
		t.Errorf("Expected 1 retry counted, got %v", got)
	}

	// Second failure exhausts the budget: permanent, no further retry.
	f.clock.Advance(time.Minute)
	f.drain(ctx)
	if got := testutil.ToFloat64(m.ScansRetried); got != 1 {
		t.Errorf("Permanent failure must not count as a retry, got %v", got)
	}
}

func TestCancel(t *testing.T) {
	f := newQueueFixture(t, nil)
	ctx := context.Background()

	id := addScan(t, f, "0xabc", domain.PriorityNormal)

	if !f.q.Cancel(ctx, id) {
		t.Fatal("Expected cancel of a queued scan to succeed")
	}
	scan, err := f.store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if scan.Status != domain.StatusFailed || scan.LastError != "cancelled by caller" {
		t.Errorf("Expected cancelled row, got status=%s err=%q", scan.Status, scan.LastError)
	}

	f.drain(ctx)
	if got := len(f.scanner.targets()); got != 0 {
		t.Errorf("Cancelled scan executed anyway: %d executions", got)
	}

	if f.q.Cancel(ctx, id) {
		t.Error("Second cancel should report false")
	}
	if f.q.Cancel(ctx, "no-such-scan") {
		t.Error("Cancel of unknown scan should report false")
	}
}

func TestCancel_InFlight(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	f := newQueueFixture(t, nil)
	f.scanner.started = started
	f.scanner.release = release
	ctx := context.Background()

	id := addScan(t, f, "0xabc", domain.PriorityNormal)
	f.q.dispatch(ctx)
	<-started

	if f.q.Cancel(ctx, id) {
		t.Error("In-flight scans are not cancellable")
	}

	close(release)
	f.q.wg.Wait()
}

func TestSetPriority(t *testing.T) {
	f := newQueueFixture(t, nil)
	ctx := context.Background()

	addScan(t, f, "first", domain.PriorityNormal)
	addScan(t, f, "second", domain.PriorityNormal)

	// Bump the later scan above the earlier one.
	var secondID string
	scans, err := f.store.GetByStatus(ctx, domain.StatusPending)
	if err != nil {
		t.Fatalf("GetByStatus failed: %v", err)
	}
	for _, s := range scans {
		if s.Request.Target == "second" {
			secondID = s.ScanID
		}
	}
	if !f.q.SetPriority(ctx, secondID, domain.PriorityHigh) {
		t.Fatal("Expected priority change of a queued scan to succeed")
	}

	f.drain(ctx)
	f.drain(ctx)
	got := f.scanner.targets()
	if len(got) != 2 || got[0] != "second" {
		t.Errorf("Expected bumped scan first, got %v", got)
	}

	if f.q.SetPriority(ctx, secondID, domain.PriorityLow) {
		t.Error("Priority change after execution should report false")
	}
	if f.q.SetPriority(ctx, "no-such-scan", domain.PriorityHigh) {
		t.Error("Priority change of unknown scan should report false")
	}
}

func TestPauseResume(t *testing.T) {
	f := newQueueFixture(t, nil)
	ctx := context.Background()

	addScan(t, f, "0xabc", domain.PriorityNormal)

	f.q.Pause()
	f.drain(ctx)
	if got := len(f.scanner.targets()); got != 0 {
		t.Errorf("Paused queue dispatched %d scans", got)
	}
	if !f.q.Stats().Paused {
		t.Error("Stats should report paused")
	}

	f.q.Resume()
	f.drain(ctx)
	if got := len(f.scanner.targets()); got != 1 {
		t.Errorf("Expected 1 execution after resume, got %d", got)
	}
}

func TestRehydrate(t *testing.T) {
	f := newQueueFixture(t, nil)
	ctx := context.Background()

	// A scan that was mid-flight when the process died.
	orphan := &domain.QueuedScan{
		ScanID: "orphan1",
		Request: domain.ScanRequest{
			Target: "0xabc", Chain: domain.ChainEthereum, Priority: domain.PriorityNormal,
		},
		Status:      domain.StatusProcessing,
		Attempts:    1,
		MaxAttempts: 3,
		EnqueuedAt:  f.clock.Now().UnixMilli() - 1000,
	}
	if err := f.store.Insert(ctx, orphan); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	done := &domain.QueuedScan{
		ScanID: "done1",
		Request: domain.ScanRequest{
			Target: "0xdef", Chain: domain.ChainEthereum, Priority: domain.PriorityNormal,
		},
		Status:      domain.StatusCompleted,
		MaxAttempts: 3,
		EnqueuedAt:  f.clock.Now().UnixMilli() - 2000,
	}
	if err := f.store.Insert(ctx, done); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := f.q.rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate failed: %v", err)
	}

	restored, err := f.store.GetByID(ctx, "orphan1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if restored.Status != domain.StatusPending {
		t.Errorf("Orphaned processing scan should reset to pending, got %s", restored.Status)
	}
	if restored.Attempts != 1 {
		t.Errorf("Attempt count must survive rehydration, got %d", restored.Attempts)
	}
	if stats := f.q.Stats(); stats.Ready != 1 {
		t.Errorf("Expected 1 ready after rehydration, got %d", stats.Ready)
	}

	// The restored scan executes within its remaining budget.
	f.drain(ctx)
	got := f.scanner.targets()
	if len(got) != 1 || got[0] != "0xabc" {
		t.Errorf("Expected the orphan to execute, got %v", got)
	}
}
