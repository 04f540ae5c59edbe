package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/events"
	"chain-sentry/internal/observability"
	"chain-sentry/internal/storage"
)

// ReputationSource looks up a voter's reputation. External to the core;
// unknown voters default to 1.0.
type ReputationSource interface {
	GetVoterReputation(ctx context.Context, identity string) float64
}

// StaticReputation returns a fixed reputation for every voter.
type StaticReputation float64

// GetVoterReputation implements ReputationSource.
func (r StaticReputation) GetVoterReputation(context.Context, string) float64 {
	return float64(r)
}

// Options contains configuration for creating an Engine.
type Options struct {
	Votes      storage.VoteStore
	History    storage.ScoreHistoryStore // optional, best-effort analytics
	Reputation ReputationSource          // defaults to StaticReputation(1.0)
	Bus        *events.Bus
	Weights    Weights
	Metrics    *observability.Metrics // optional
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// Engine computes composite threat scores and accepts community votes.
type Engine struct {
	votes      storage.VoteStore
	history    storage.ScoreHistoryStore
	reputation ReputationSource
	bus        *events.Bus
	weights    Weights
	metrics    *observability.Metrics
	logger     zerolog.Logger
	clock      func() time.Time
}

// NewEngine creates a scoring engine. Weight validation fails loudly.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("scoring weights: %w", err)
	}
	reputation := opts.Reputation
	if reputation == nil {
		reputation = StaticReputation(1.0)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		votes:      opts.Votes,
		history:    opts.History,
		reputation: reputation,
		bus:        opts.Bus,
		weights:    opts.Weights,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "scoring_engine").Logger(),
		clock:      clock,
	}, nil
}

// Score computes the composite threat score for a scan result and fires the
// band alerts. The returned ThreatScore is derived data; the ledger entry is
// the durable record.
func (e *Engine) Score(ctx context.Context, result *domain.ScanResult) (*domain.ThreatScore, error) {
	factors := ComputeFactors(result.Evidence, e.weights)
	base, ok := ComputeBaseScore(factors)
	if !ok {
		return nil, fmt.Errorf("scan of %s on %s produced no scoreable evidence", result.Target, result.Chain)
	}

	votes, err := e.votes.GetByTarget(ctx, result.Target, result.Chain)
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	weighted := make([]weightedVote, 0, len(votes))
	for _, v := range votes {
		weighted = append(weighted, weightedVote{
			score:           v.Score,
			effectiveWeight: v.Weight * e.reputation.GetVoterReputation(ctx, v.Voter),
		})
	}

	final := BlendVotes(base, weighted)
	band := ClassifyBand(final)
	score := &domain.ThreatScore{
		Target:     result.Target,
		Chain:      result.Chain,
		BaseScore:  base,
		FinalScore: final,
		Band:       band,
		Category:   ClassifyCategory(factors, final),
		Confidence: ComputeConfidence(factors, len(votes)),
		Factors:    factors,
		VoteCount:  len(votes),
		ComputedAt: e.clock().UnixMilli(),
	}

	switch band {
	case domain.BandHighRisk:
		e.bus.PublishHighRiskAlert(events.HighRiskAlert{
			Target: score.Target, Chain: score.Chain, FinalScore: final, Category: score.Category,
		})
	case domain.BandPotentialAlpha:
		e.bus.PublishAlphaSignalAlert(events.AlphaSignalAlert{
			Target: score.Target, Chain: score.Chain, FinalScore: final, Category: score.Category,
		})
	}

	e.recordHistory(ctx, score)

	e.logger.Info().Str("target", score.Target).Str("chain", score.Chain.String()).
		Float64("base", base).Float64("final", final).
		Str("band", band.String()).Str("category", score.Category.String()).
		Int("votes", score.VoteCount).Msg("score computed")
	return score, nil
}

// recordHistory appends a score point for analytics. Best effort: history is
// derived data and must never fail a scoring call.
func (e *Engine) recordHistory(ctx context.Context, score *domain.ThreatScore) {
	if e.history == nil {
		return
	}
	point := &domain.ScorePoint{
		Target:     score.Target,
		Chain:      score.Chain,
		BaseScore:  score.BaseScore,
		FinalScore: score.FinalScore,
		Band:       score.Band,
		ComputedAt: score.ComputedAt,
	}
	if err := e.history.InsertBulk(ctx, []*domain.ScorePoint{point}); err != nil {
		e.logger.Warn().Err(err).Str("target", score.Target).Msg("score history write failed")
	}
}

// SubmitVote validates and persists a community vote. Voter reputation is
// applied at scoring time, not here.
func (e *Engine) SubmitVote(ctx context.Context, vote domain.CommunityVote) error {
	if vote.Voter == "" || vote.Target == "" {
		return fmt.Errorf("%w: voter and target are required", storage.ErrInvalidInput)
	}
	if !vote.Chain.IsValid() {
		return fmt.Errorf("%w: unknown chain %q", storage.ErrInvalidInput, vote.Chain)
	}
	if vote.Score < 0 || vote.Score > 100 {
		return fmt.Errorf("%w: vote score %v outside [0,100]", storage.ErrInvalidInput, vote.Score)
	}
	if vote.Weight <= 0 {
		vote.Weight = 1.0
	}
	if vote.CreatedAt == 0 {
		vote.CreatedAt = e.clock().UnixMilli()
	}

	if err := e.votes.Insert(ctx, &vote); err != nil {
		return fmt.Errorf("persist vote: %w", err)
	}
	if e.metrics != nil {
		e.metrics.VotesSubmitted.Inc()
	}
	e.logger.Debug().Str("voter", vote.Voter).Str("target", vote.Target).
		Float64("score", vote.Score).Msg("community vote recorded")
	return nil
}
