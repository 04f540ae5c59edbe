package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"chain-sentry/internal/domain"
	"chain-sentry/internal/events"
	"chain-sentry/internal/observability"
	"chain-sentry/internal/storage"
	"chain-sentry/internal/storage/memory"
)

func newTestEngine(t *testing.T, votes storage.VoteStore, reputation ReputationSource) (*Engine, *events.Bus) {
	t.Helper()
	bus := events.NewBus(8)
	engine, err := NewEngine(Options{
		Votes:      votes,
		Reputation: reputation,
		Bus:        bus,
		Weights:    DefaultWeights(),
		Logger:     zerolog.Nop(),
		Clock:      func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine, bus
}

func TestNewEngine_RejectsBadWeights(t *testing.T) {
	_, err := NewEngine(Options{Weights: Weights{Bytecode: 2}, Logger: zerolog.Nop()})
	if err == nil {
		t.Error("Expected error for out-of-range weights")
	}
}

func TestScore_NoVotes(t *testing.T) {
	engine, _ := newTestEngine(t, memory.NewVoteStore(), nil)

	result := &domain.ScanResult{
		Target: "0xabc",
		Chain:  domain.ChainEthereum,
		Evidence: domain.EvidenceBundle{
			Bytecode: &domain.BytecodeEvidence{Verified: true},
		},
	}

	score, err := engine.Score(context.Background(), result)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if score.BaseScore != 85 {
		t.Errorf("Expected base 85 from verified clean bytecode, got %v", score.BaseScore)
	}
	if score.FinalScore != score.BaseScore {
		t.Errorf("With no votes final should equal base: %v != %v", score.FinalScore, score.BaseScore)
	}
	if score.Band != domain.BandPotentialAlpha {
		t.Errorf("Expected potential_alpha band, got %s", score.Band)
	}
	if score.VoteCount != 0 {
		t.Errorf("Expected 0 votes, got %d", score.VoteCount)
	}
	if score.ComputedAt != 1_700_000_000_000 {
		t.Errorf("Expected clock timestamp, got %d", score.ComputedAt)
	}
}

func TestScore_NoEvidence(t *testing.T) {
	engine, _ := newTestEngine(t, memory.NewVoteStore(), nil)

	_, err := engine.Score(context.Background(), &domain.ScanResult{
		Target: "0xabc",
		Chain:  domain.ChainEthereum,
	})
	if err == nil {
		t.Error("Expected error when no evidence variant is present")
	}
}

func TestScore_BlendsVotes(t *testing.T) {
	votes := memory.NewVoteStore()
	engine, _ := newTestEngine(t, votes, nil)
	ctx := context.Background()

	for _, v := range []domain.CommunityVote{
		{Voter: "alice", Target: "0xabc", Chain: domain.ChainEthereum, Score: 20, Weight: 1},
		{Voter: "bob", Target: "0xabc", Chain: domain.ChainEthereum, Score: 40, Weight: 1},
	} {
		if err := engine.SubmitVote(ctx, v); err != nil {
			t.Fatalf("SubmitVote failed: %v", err)
		}
	}

	score, err := engine.Score(ctx, &domain.ScanResult{
		Target: "0xabc",
		Chain:  domain.ChainEthereum,
		Evidence: domain.EvidenceBundle{
			Bytecode: &domain.BytecodeEvidence{Verified: true},
		},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	// base 85, community mean 30: 0.7*85 + 0.3*30 = 68.5
	if score.FinalScore != 68.5 {
		t.Errorf("Expected blended final 68.5, got %v", score.FinalScore)
	}
	if score.Band != domain.BandNeutral {
		t.Errorf("Expected neutral band after blending, got %s", score.Band)
	}
	if score.VoteCount != 2 {
		t.Errorf("Expected 2 votes, got %d", score.VoteCount)
	}
}

func TestScore_AppliesVoterReputation(t *testing.T) {
	votes := memory.NewVoteStore()
	// Reputation 0 neutralizes every vote.
	engine, _ := newTestEngine(t, votes, StaticReputation(0))
	ctx := context.Background()

	if err := engine.SubmitVote(ctx, domain.CommunityVote{
		Voter: "sybil", Target: "0xabc", Chain: domain.ChainEthereum, Score: 0, Weight: 1,
	}); err != nil {
		t.Fatalf("SubmitVote failed: %v", err)
	}

	score, err := engine.Score(ctx, &domain.ScanResult{
		Target: "0xabc",
		Chain:  domain.ChainEthereum,
		Evidence: domain.EvidenceBundle{
			Bytecode: &domain.BytecodeEvidence{Verified: true},
		},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score.FinalScore != score.BaseScore {
		t.Errorf("Zero-reputation votes should not move the score: %v != %v",
			score.FinalScore, score.BaseScore)
	}
}

func TestScore_HighRiskAlert(t *testing.T) {
	engine, bus := newTestEngine(t, memory.NewVoteStore(), nil)

	score, err := engine.Score(context.Background(), &domain.ScanResult{
		Target: "0xbad",
		Chain:  domain.ChainBase,
		Evidence: domain.EvidenceBundle{
			Bytecode: &domain.BytecodeEvidence{HoneypotSignature: true},
		},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if score.Band != domain.BandHighRisk {
		t.Fatalf("Expected high_risk band, got %s", score.Band)
	}
	if score.Category != domain.CategoryHoneypot {
		t.Errorf("Expected honeypot category, got %s", score.Category)
	}

	select {
	case alert := <-bus.HighRiskAlert():
		if alert.Target != "0xbad" || alert.FinalScore != score.FinalScore {
			t.Errorf("Alert payload mismatch: %+v", alert)
		}
	default:
		t.Error("Expected a high-risk alert on the bus")
	}
}

func TestScore_HoneypotCategoryWithoutHighRiskBand(t *testing.T) {
	engine, bus := newTestEngine(t, memory.NewVoteStore(), nil)

	// A honeypot bytecode signature forces the category, but enough neutral
	// evidence keeps the composite above the alert line.
	score, err := engine.Score(context.Background(), &domain.ScanResult{
		Target: "0xmixed",
		Chain:  domain.ChainSolana,
		Evidence: domain.EvidenceBundle{
			Bytecode:  &domain.BytecodeEvidence{HoneypotSignature: true},
			Social:    &domain.SocialEvidence{},
			TxPattern: &domain.TxPatternEvidence{},
			Momentum:  &domain.MomentumEvidence{},
		},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	// bytecode 5*.25 + social 50*.15 + tx 60*.15 + momentum 50*.15, over .70
	if score.BaseScore <= 30 || score.BaseScore >= 40 {
		t.Errorf("Expected base in (30,40), got %v", score.BaseScore)
	}
	if score.Band != domain.BandNeutral {
		t.Errorf("Expected neutral band, got %s", score.Band)
	}
	if score.Category != domain.CategoryHoneypot {
		t.Errorf("Honeypot category must override the band, got %s", score.Category)
	}

	select {
	case alert := <-bus.HighRiskAlert():
		t.Errorf("No alert expected above the high-risk line, got %+v", alert)
	default:
	}

	// Without the supporting evidence the composite collapses and exactly one
	// alert fires.
	score, err = engine.Score(context.Background(), &domain.ScanResult{
		Target: "0xmixed",
		Chain:  domain.ChainSolana,
		Evidence: domain.EvidenceBundle{
			Bytecode: &domain.BytecodeEvidence{HoneypotSignature: true},
		},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score.Band != domain.BandHighRisk {
		t.Fatalf("Expected high_risk band, got %s", score.Band)
	}

	select {
	case <-bus.HighRiskAlert():
	default:
		t.Fatal("Expected a high-risk alert on the bus")
	}
	select {
	case alert := <-bus.HighRiskAlert():
		t.Errorf("Alert fired more than once: %+v", alert)
	default:
	}
}

func TestScore_AlphaAlert(t *testing.T) {
	engine, bus := newTestEngine(t, memory.NewVoteStore(), nil)

	score, err := engine.Score(context.Background(), &domain.ScanResult{
		Target: "0xgem",
		Chain:  domain.ChainEthereum,
		Evidence: domain.EvidenceBundle{
			Bytecode: &domain.BytecodeEvidence{Verified: true},
		},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score.Band != domain.BandPotentialAlpha {
		t.Fatalf("Expected potential_alpha band, got %s", score.Band)
	}

	select {
	case alert := <-bus.AlphaSignalAlert():
		if alert.Target != "0xgem" {
			t.Errorf("Alert payload mismatch: %+v", alert)
		}
	default:
		t.Error("Expected an alpha-signal alert on the bus")
	}
}

func TestScore_RecordsHistory(t *testing.T) {
	history := memory.NewScoreHistoryStore()
	bus := events.NewBus(8)
	engine, err := NewEngine(Options{
		Votes:   memory.NewVoteStore(),
		History: history,
		Bus:     bus,
		Weights: DefaultWeights(),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.Score(ctx, &domain.ScanResult{
		Target: "0xabc",
		Chain:  domain.ChainEthereum,
		Evidence: domain.EvidenceBundle{
			Bytecode: &domain.BytecodeEvidence{Verified: true},
		},
	}); err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	points, err := history.GetByTarget(ctx, "0xabc", domain.ChainEthereum)
	if err != nil {
		t.Fatalf("GetByTarget failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 history point, got %d", len(points))
	}
	if points[0].FinalScore != 85 {
		t.Errorf("Expected final 85 in history, got %v", points[0].FinalScore)
	}
}

func TestSubmitVote_Validation(t *testing.T) {
	engine, _ := newTestEngine(t, memory.NewVoteStore(), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		vote domain.CommunityVote
	}{
		{"missing voter", domain.CommunityVote{Target: "0xabc", Chain: domain.ChainEthereum, Score: 50}},
		{"missing target", domain.CommunityVote{Voter: "alice", Chain: domain.ChainEthereum, Score: 50}},
		{"bad chain", domain.CommunityVote{Voter: "alice", Target: "0xabc", Chain: "dogechain", Score: 50}},
		{"score too high", domain.CommunityVote{Voter: "alice", Target: "0xabc", Chain: domain.ChainEthereum, Score: 101}},
		{"score negative", domain.CommunityVote{Voter: "alice", Target: "0xabc", Chain: domain.ChainEthereum, Score: -1}},
	}
	for _, tc := range cases {
		err := engine.SubmitVote(ctx, tc.vote)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestSubmitVote_Defaults(t *testing.T) {
	votes := memory.NewVoteStore()
	engine, _ := newTestEngine(t, votes, nil)
	ctx := context.Background()

	if err := engine.SubmitVote(ctx, domain.CommunityVote{
		Voter: "alice", Target: "0xabc", Chain: domain.ChainEthereum, Score: 50,
	}); err != nil {
		t.Fatalf("SubmitVote failed: %v", err)
	}

	stored, err := votes.GetByTarget(ctx, "0xabc", domain.ChainEthereum)
	if err != nil {
		t.Fatalf("GetByTarget failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("Expected 1 vote, got %d", len(stored))
	}
	if stored[0].Weight != 1.0 {
		t.Errorf("Expected default weight 1.0, got %v", stored[0].Weight)
	}
	if stored[0].CreatedAt != 1_700_000_000_000 {
		t.Errorf("Expected clock timestamp, got %d", stored[0].CreatedAt)
	}
}

func TestSubmitVote_CountsAcceptedVotes(t *testing.T) {
	m := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	engine, err := NewEngine(Options{
		Votes:   memory.NewVoteStore(),
		Bus:     events.NewBus(8),
		Weights: DefaultWeights(),
		Metrics: m,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	ctx := context.Background()

	if err := engine.SubmitVote(ctx, domain.CommunityVote{
		Voter: "alice", Target: "0xabc", Chain: domain.ChainEthereum, Score: 50,
	}); err != nil {
		t.Fatalf("SubmitVote failed: %v", err)
	}
	if got := testutil.ToFloat64(m.VotesSubmitted); got != 1 {
		t.Errorf("Expected 1 vote counted, got %v", got)
	}

	// Rejected votes are not counted.
	if err := engine.SubmitVote(ctx, domain.CommunityVote{
		Target: "0xabc", Chain: domain.ChainEthereum, Score: 50,
	}); err == nil {
		t.Fatal("Expected validation error for empty voter")
	}
	if got := testutil.ToFloat64(m.VotesSubmitted); got != 1 {
		t.Errorf("Rejected vote must not count, got %v", got)
	}
}
