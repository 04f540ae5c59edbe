package main

import (
	"context"

	"github.com/rs/zerolog"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/ledger"
	"chain-sentry/internal/observability"
	"chain-sentry/internal/scoring"
)

// resultPipeline takes completed scans through scoring and into the ledger.
// It implements queue.ResultHandler; failures are logged and counted but never
// fail the scan, which is already durably completed.
type resultPipeline struct {
	engine  *scoring.Engine
	ledger  *ledger.Service
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func newResultPipeline(engine *scoring.Engine, ledgerSvc *ledger.Service, metrics *observability.Metrics, logger zerolog.Logger) *resultPipeline {
	return &resultPipeline{
		engine:  engine,
		ledger:  ledgerSvc,
		metrics: metrics,
		logger:  logger.With().Str("component", "result_pipeline").Logger(),
	}
}

// HandleResult implements queue.ResultHandler.
func (p *resultPipeline) HandleResult(ctx context.Context, scan *domain.QueuedScan, result *domain.ScanResult) {
	score, err := p.engine.Score(ctx, result)
	if err != nil {
		p.logger.Error().Err(err).Str("scan_id", scan.ScanID).
			Str("target", result.Target).Msg("scoring failed")
	} else {
		p.metrics.ScoresComputed.Inc()
		p.metrics.ScoresByBand.WithLabelValues(score.Band.String()).Inc()
	}

	if _, err := p.ledger.StoreScanResult(ctx, scan.ScanID, result); err != nil {
		p.logger.Error().Err(err).Str("scan_id", scan.ScanID).
			Str("target", result.Target).Msg("ledger commit failed")
		return
	}
	p.metrics.LedgerEntriesCommitted.Inc()
}
