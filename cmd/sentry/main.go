// The sentry daemon watches configured chains for scan-worthy activity, runs
// scans through the priority queue, scores results and commits them to the
// transparency ledger.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chain-sentry/internal/chains"
	"chain-sentry/internal/config"
	"chain-sentry/internal/domain"
	"chain-sentry/internal/events"
	"chain-sentry/internal/ledger"
	"chain-sentry/internal/ledger/blobstore"
	"chain-sentry/internal/listener"
	"chain-sentry/internal/observability"
	"chain-sentry/internal/queue"
	"chain-sentry/internal/rpcclient"
	"chain-sentry/internal/scoring"
	"chain-sentry/internal/storage"
	chstore "chain-sentry/internal/storage/clickhouse"
	"chain-sentry/internal/storage/memory"
	"chain-sentry/internal/storage/migrations"
	pgstore "chain-sentry/internal/storage/postgres"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		sig = <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("forcing immediate exit")
		os.Exit(1)
	}()

	if err := run(ctx, cfg, logger); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("sentry stopped with error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	metrics := observability.NewMetrics("")

	// Stores: in-memory unless a Postgres DSN is configured.
	var (
		scanStore  storage.ScanStore       = memory.NewScanStore()
		stateStore storage.ChainStateStore = memory.NewChainStateStore()
		voteStore  storage.VoteStore       = memory.NewVoteStore()
		entryStore storage.LedgerStore     = memory.NewLedgerStore()
	)
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		scanStore = pgstore.NewScanStore(pool)
		stateStore = pgstore.NewChainStateStore(pool)
		voteStore = pgstore.NewVoteStore(pool)
		entryStore = pgstore.NewLedgerStore(pool)
		logger.Info().Msg("postgres storage ready")
	} else {
		logger.Warn().Msg("no POSTGRES_DSN set, state will not survive a restart")
	}

	// Score history: ClickHouse when configured, otherwise in memory.
	var historyStore storage.ScoreHistoryStore = memory.NewScoreHistoryStore()
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		historyStore = chstore.NewScoreHistoryStore(conn)
		logger.Info().Msg("clickhouse score history ready")
	}

	// Chain connectors and per-chain scanner clients.
	var connectors []chains.Connector
	scanClients := make(map[domain.Chain]*rpcclient.Client)
	pollIntervals := make(map[domain.Chain]time.Duration)
	for chain, cc := range cfg.Chains {
		startIndex := 0
		if state, err := stateStore.Get(ctx, chain); err == nil {
			startIndex = state.EndpointIndex
		}

		var conn chains.Connector
		var err error
		if chain == domain.ChainSolana {
			conn, err = chains.NewSolanaConnector(cc.Endpoints, startIndex)
		} else {
			conn, err = chains.NewEVMConnector(chain, cc.Endpoints, startIndex)
		}
		if err != nil {
			return fmt.Errorf("connector for %s: %w", chain, err)
		}
		connectors = append(connectors, conn)
		scanClients[chain] = rpcclient.New(cc.Endpoints[startIndex])
		pollIntervals[chain] = cc.PollInterval
	}

	bus := events.NewBus(0)

	// Ledger: signer + redundant blob storage.
	signer, err := buildSigner(cfg, logger)
	if err != nil {
		return err
	}
	blobs, err := buildBlobstore(cfg, logger)
	if err != nil {
		return err
	}
	blobs.SetMetrics(metrics)
	ledgerSvc := ledger.New(ledger.Options{
		Entries: entryStore,
		Scans:   scanStore,
		Blobs:   blobs,
		Signer:  signer,
		Bus:     bus,
		Metrics: metrics,
		Logger:  logger,
	})

	engine, err := scoring.NewEngine(scoring.Options{
		Votes:   voteStore,
		History: historyStore,
		Bus:     bus,
		Weights: cfg.Weights,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	scanner := newRPCScanner(scanClients, cfg.Weights, cfg.ScannerID, logger)
	pipeline := newResultPipeline(engine, ledgerSvc, metrics, logger)

	scanQueue := queue.New(queue.Options{
		Store:            scanStore,
		Scanner:          scanner,
		Bus:              bus,
		Handler:          pipeline,
		MaxConcurrent:    cfg.QueueMaxConcurrent,
		MaxAttempts:      cfg.QueueMaxAttempts,
		BaseRetryDelay:   cfg.QueueBaseDelay,
		DispatchInterval: cfg.DispatchInterval,
		Metrics:          metrics,
		Logger:           logger,
	})

	chainListener, err := listener.New(listener.Options{
		Connectors:     connectors,
		States:         stateStore,
		Submitter:      scanQueue,
		Bus:            bus,
		PollIntervals:  pollIntervals,
		ProbeInterval:  cfg.HealthProbeInterval,
		DedupWindow:    cfg.DedupWindow,
		ErrorThreshold: cfg.ErrorThreshold,
		BatchSize:      cfg.ListenerBatchSize,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	// Periodic maintenance: blob backend probes and a stats snapshot.
	maintenance := cron.New()
	_, err = maintenance.AddFunc("@every 5m", func() {
		blobs.ProbeAll(ctx)
		stats := scanQueue.Stats()
		metrics.RecordQueueStats(stats.Ready, stats.Delayed, stats.InFlight)
		metrics.EventsDropped.Set(float64(bus.Dropped()))
		logger.Info().Int("ready", stats.Ready).Int("delayed", stats.Delayed).
			Int("in_flight", stats.InFlight).Int64("events_dropped", bus.Dropped()).
			Msg("queue stats")
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	maintenance.Start()
	defer maintenance.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return scanQueue.Run(gctx) })
	g.Go(func() error { return chainListener.Run(gctx) })
	g.Go(func() error { drainEvents(gctx, bus, metrics, logger); return nil })

	// EVM newHeads subscriptions wake the poll loops ahead of their tickers.
	for chain, cc := range cfg.Chains {
		if cc.WSEndpoint == "" || !chain.IsEVM() {
			continue
		}
		sub := chains.NewHeadSubscriber(cc.WSEndpoint, nil, logger)
		g.Go(func() error { return sub.Run(gctx) })
		g.Go(func() error {
			for range sub.Heads() {
				chainListener.Poke(chain)
			}
			return nil
		})
	}

	// Metrics endpoint.
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux(),
	}
	g.Go(func() error {
		logger.Info().Int("port", cfg.MetricsPort).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	logger.Info().Int("chains", len(connectors)).Str("scanner_id", cfg.ScannerID).Msg("sentry started")
	return g.Wait()
}

// buildSigner restores the configured signing key or generates an ephemeral
// one, which is only acceptable for development.
func buildSigner(cfg *config.Config, logger zerolog.Logger) (*ledger.Signer, error) {
	if cfg.SigningSeedHex != "" {
		signer, err := ledger.SignerFromSeedHex(cfg.SigningSeedHex)
		if err != nil {
			return nil, fmt.Errorf("LEDGER_SIGNING_SEED: %w", err)
		}
		return signer, nil
	}
	signer, err := ledger.GenerateSigner()
	if err != nil {
		return nil, err
	}
	logger.Warn().Str("public_key", signer.PublicKeyHex()).
		Msg("no LEDGER_SIGNING_SEED set, generated ephemeral signing key")
	return signer, nil
}

// buildBlobstore assembles the redundant blob store from configured backends.
func buildBlobstore(cfg *config.Config, logger zerolog.Logger) (*blobstore.Redundant, error) {
	var backends []blobstore.Backend
	if cfg.BlobMemoryStore {
		backends = append(backends, blobstore.NewMemoryBackend("memory"))
	}
	for i, dir := range cfg.BlobDirs {
		fs, err := blobstore.NewFilesystemBackend(fmt.Sprintf("fs-%d", i), dir)
		if err != nil {
			return nil, fmt.Errorf("blob dir %s: %w", dir, err)
		}
		backends = append(backends, fs)
	}
	for i, gw := range cfg.BlobGateways {
		backends = append(backends, blobstore.NewGatewayBackend(fmt.Sprintf("gateway-%d", i), gw))
	}
	return blobstore.NewRedundant(backends, logger)
}

// drainEvents consumes bus events for logging and metrics. Alert delivery
// transports would subscribe here.
func drainEvents(ctx context.Context, bus *events.Bus, metrics *observability.Metrics, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-bus.ScanCompleted():
			metrics.ScansCompleted.Inc()
			metrics.ScanDuration.Observe(float64(e.DurationMs) / 1000)
		case e := <-bus.ScanFailed():
			metrics.ScansFailed.Inc()
			logger.Warn().Str("scan_id", e.ScanID).Str("target", e.Target).
				Str("reason", e.Reason).Int("attempts", e.Attempts).Msg("scan failed permanently")
		case e := <-bus.HighRiskAlert():
			logger.Warn().Str("target", e.Target).Str("chain", e.Chain.String()).
				Float64("score", e.FinalScore).Str("category", e.Category.String()).
				Msg("HIGH RISK")
		case e := <-bus.AlphaSignalAlert():
			logger.Info().Str("target", e.Target).Str("chain", e.Chain.String()).
				Float64("score", e.FinalScore).Str("category", e.Category.String()).
				Msg("alpha signal")
		case e := <-bus.LedgerCommitted():
			logger.Debug().Str("entry_id", e.EntryID).Str("scan_id", e.ScanID).Msg("ledger entry committed")
		case <-bus.ScanQueued():
		case <-bus.HighRiskDetected():
		}
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
